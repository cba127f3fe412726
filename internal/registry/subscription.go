// Package registry 持有全部活跃订阅
//
// 每个 (owner, channel) 至多一条订阅，重复写入即替换。
// owner 为连接 ID，全局订阅的 owner 为空字符串。
package registry

import (
	"time"

	"github.com/google/uuid"

	"relaybus-core/internal/match"
)

// Encoding 直接下发时的帧编码
type Encoding string

const (
	EncodingText   Encoding = "text"
	EncodingBinary Encoding = "binary"
)

// Normalize 空值视为 text
func (e Encoding) Normalize() Encoding {
	if e == "" {
		return EncodingText
	}
	return e
}

// Valid 是否为已知编码（空值有效）
func (e Encoding) Valid() bool {
	switch e {
	case "", EncodingText, EncodingBinary:
		return true
	default:
		return false
	}
}

// Conn 订阅所属连接，由传输层实现
type Conn interface {
	ID() string
	IsClosed() bool
	// OnClose 注册关闭回调，连接已关闭时返回 false
	OnClose(fn func() error) bool
	Transmit(message []byte, enc Encoding) error
}

// Handler 消息回调
type Handler func(channel string, message []byte)

// Key 订阅唯一键
type Key struct {
	Owner   string
	Channel string
}

// Subscription 一条订阅，创建后不可修改
type Subscription struct {
	ID        string
	Owner     string
	Channel   string
	Mode      match.Mode
	Pattern   *match.Pattern
	Handler   Handler
	As        Encoding
	Conn      Conn
	CreatedAt time.Time
}

// NewSubscription 创建订阅，conn 为 nil 表示全局订阅
func NewSubscription(conn Conn, pattern *match.Pattern, handler Handler, as Encoding) *Subscription {
	sub := &Subscription{
		ID:        uuid.NewString(),
		Channel:   pattern.String(),
		Mode:      pattern.Mode(),
		Pattern:   pattern,
		Handler:   handler,
		As:        as.Normalize(),
		Conn:      conn,
		CreatedAt: time.Now(),
	}
	if conn != nil {
		sub.Owner = conn.ID()
	}
	return sub
}

// Key 订阅键
func (s *Subscription) Key() Key {
	return Key{Owner: s.Owner, Channel: s.Channel}
}

// IsGlobal 是否为全局订阅
func (s *Subscription) IsGlobal() bool {
	return s.Conn == nil
}

// Matches 频道是否命中本订阅
func (s *Subscription) Matches(channel string) bool {
	return s.Pattern.Match(channel)
}
