package websocket

import (
	coreerrors "relaybus-core/internal/core/errors"
)

// 命令类型
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPublish     = "publish"

	OpAck   = "ack"
	OpError = "error"
)

// Command 客户端命令，文本帧承载的 JSON
//
//	{"op":"subscribe","channel":"news.*","match":"nats","as":"binary"}
//	{"op":"unsubscribe","channel":"news.*"}
//	{"op":"publish","channel":"news.sports","message":"goal","local":false}
type Command struct {
	Op      string `json:"op"`
	ID      string `json:"id,omitempty"` // 请求ID，原样回传
	Channel string `json:"channel"`
	Match   string `json:"match,omitempty"`
	As      string `json:"as,omitempty"`
	Message string `json:"message,omitempty"`
	Local   bool   `json:"local,omitempty"` // 只投递本节点，不经引擎
}

// Reply 命令应答
type Reply struct {
	Op             string `json:"op"`            // ack / error
	ID             string `json:"id,omitempty"`  // 对应的请求ID
	Ref            string `json:"ref,omitempty"` // 对应的命令类型
	Channel        string `json:"channel,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Matched        *int   `json:"matched,omitempty"` // 本地发布命中的订阅数
	Removed        *bool  `json:"removed,omitempty"`
	Code           string `json:"code,omitempty"`
	Error          string `json:"error,omitempty"`
	Retryable      bool   `json:"retryable,omitempty"` // 客户端可稍后重发同一命令
}

func ackFor(cmd *Command) *Reply {
	return &Reply{Op: OpAck, ID: cmd.ID, Ref: cmd.Op, Channel: cmd.Channel}
}

func errorFor(cmd *Command, err error) *Reply {
	r := &Reply{
		Op:        OpError,
		Error:     err.Error(),
		Code:      string(coreerrors.GetCode(err)),
		Retryable: coreerrors.IsRetryable(err),
	}
	if cmd != nil {
		r.ID, r.Ref, r.Channel = cmd.ID, cmd.Op, cmd.Channel
	}
	return r
}
