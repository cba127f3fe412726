// Package match 编译并匹配频道模式
//
// 支持四种方言：
//   - exact：字面量相等
//   - redis-glob：* ? [...] 与反斜杠转义，语义同 Redis PSUBSCRIBE
//   - nats-wildcard：以 . 分隔，* 匹配一个 token，> 匹配末尾一个或多个 token
//   - rabbitmq-topic：以 . 分隔，* 匹配一个 token，# 匹配零个或多个 token
//
// 未知方言一律拒绝（ErrUnsupportedMatchMode），不会退化为 exact。
package match

import (
	"strings"

	coreerrors "relaybus-core/internal/core/errors"
)

// Mode 模式方言
type Mode string

const (
	ModeExact    Mode = "exact"
	ModeRedis    Mode = "redis-glob"
	ModeNATS     Mode = "nats-wildcard"
	ModeRabbitMQ Mode = "rabbitmq-topic"
)

var modeAliases = map[string]Mode{
	"":               ModeExact,
	"exact":          ModeExact,
	"redis-glob":     ModeRedis,
	"redis":          ModeRedis,
	"glob":           ModeRedis,
	"nats-wildcard":  ModeNATS,
	"nats":           ModeNATS,
	"rabbitmq-topic": ModeRabbitMQ,
	"rabbitmq":       ModeRabbitMQ,
	"amqp":           ModeRabbitMQ,
	"topic":          ModeRabbitMQ,
}

// ParseMode 解析方言名称，空字符串为 exact
func ParseMode(s string) (Mode, error) {
	if m, ok := modeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m, nil
	}
	return "", coreerrors.Newf(coreerrors.CodeUnsupportedMatchMode, "unsupported match mode %q", s)
}

// Normalize 返回规范化后的方言
func (m Mode) Normalize() (Mode, error) {
	return ParseMode(string(m))
}

// String 实现 fmt.Stringer
func (m Mode) String() string {
	if m == "" {
		return string(ModeExact)
	}
	return string(m)
}

// IsPattern 是否为通配方言
func (m Mode) IsPattern() bool {
	n, err := m.Normalize()
	return err == nil && n != ModeExact
}
