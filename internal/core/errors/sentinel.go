package errors

// 预定义哨兵错误（用于 errors.Is 比较）
var (
	// 订阅相关
	ErrAlreadyClosed        = New(CodeAlreadyClosed, "connection already closed")
	ErrMissingHandler       = New(CodeMissingHandler, "global subscription requires a handler")
	ErrUnsupportedMatchMode = New(CodeUnsupportedMatchMode, "unsupported match mode")
	ErrInvalidPattern       = New(CodeInvalidPattern, "invalid pattern")
	ErrInvalidChannel       = New(CodeInvalidChannel, "invalid channel")
	ErrNotFound             = New(CodeNotFound, "subscription not found")

	// 引擎相关
	ErrEngineUnavailable   = New(CodeEngineUnavailable, "no engine available for publish")
	ErrEngineNotRegistered = New(CodeEngineNotRegistered, "engine is not registered")
	ErrEngineFailure       = New(CodeEngineFailure, "engine call failed")

	// 系统
	ErrQueueFull     = New(CodeQueueFull, "queue is full")
	ErrServiceClosed = New(CodeServiceClosed, "service closed")
	ErrRateLimited   = New(CodeRateLimited, "rate limit exceeded")
	ErrInvalidParam  = New(CodeInvalidParam, "invalid parameter")
)

// IsSubscribeRejected 检查是否为订阅请求本身被拒绝（调用方的问题，而非系统问题）
func IsSubscribeRejected(err error) bool {
	return IsCode(err, CodeMissingHandler) ||
		IsCode(err, CodeUnsupportedMatchMode) ||
		IsCode(err, CodeInvalidPattern) ||
		IsCode(err, CodeInvalidChannel)
}

// IsRetryable 检查错误是否可重试
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTimeout, CodeNetworkError, CodeQueueFull, CodeRateLimited, CodeEngineFailure:
		return true
	default:
		return false
	}
}
