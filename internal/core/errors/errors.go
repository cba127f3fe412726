// Package errors 提供统一的错误处理机制
//
// 所有错误都可以通过 errors.Is() 按错误码比较，通过 errors.As() 取出 *Error。
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode 错误码类型
type ErrorCode string

// 错误码定义
const (
	// 请求错误
	CodeInvalidParam         ErrorCode = "INVALID_PARAM"
	CodeInvalidChannel       ErrorCode = "INVALID_CHANNEL"
	CodeInvalidPattern       ErrorCode = "INVALID_PATTERN"
	CodeUnsupportedMatchMode ErrorCode = "UNSUPPORTED_MATCH_MODE"
	CodeMissingHandler       ErrorCode = "MISSING_HANDLER"
	CodeConfigError          ErrorCode = "CONFIG_ERROR"

	// 资源状态
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeAlreadyClosed  ErrorCode = "ALREADY_CLOSED"
	CodeQueueFull      ErrorCode = "QUEUE_FULL"
	CodeRateLimited    ErrorCode = "RATE_LIMITED"
	CodeServiceClosed  ErrorCode = "SERVICE_CLOSED"
	CodeNotImplemented ErrorCode = "NOT_IMPLEMENTED"

	// 引擎
	CodeEngineUnavailable   ErrorCode = "ENGINE_UNAVAILABLE"
	CodeEngineNotRegistered ErrorCode = "ENGINE_NOT_REGISTERED"
	CodeEngineFailure       ErrorCode = "ENGINE_FAILURE"

	// 系统错误
	CodeInternal     ErrorCode = "INTERNAL_ERROR"
	CodeNetworkError ErrorCode = "NETWORK_ERROR"
	CodeTimeout      ErrorCode = "TIMEOUT"
	CodeInvalidData  ErrorCode = "INVALID_DATA"
)

// Error 统一错误类型
type Error struct {
	Code    ErrorCode         // 错误码
	Message string            // 错误消息
	Cause   error             // 原始错误
	Details map[string]string // 额外详情
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 支持 errors.Is 进行错误码比较
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail 添加详情，返回副本，哨兵错误可以安全调用
func (e *Error) WithDetail(key, value string) *Error {
	cp := *e
	cp.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Detail 获取详情
func (e *Error) Detail(key string) string {
	if e.Details == nil {
		return ""
	}
	return e.Details[key]
}

// New 创建新错误
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf 创建格式化错误
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf 格式化包装错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// GetCode 从错误中提取错误码
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode 检查错误是否为指定错误码
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Is 重导出 errors.Is
var Is = errors.Is

// As 重导出 errors.As
var As = errors.As

// Join 重导出 errors.Join
var Join = errors.Join
