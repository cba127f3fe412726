package broker

import (
	"context"

	coreerrors "relaybus-core/internal/core/errors"
	corelog "relaybus-core/internal/core/log"
	"relaybus-core/internal/engine"
)

// Type 引擎类型
type Type string

const (
	TypeNone   Type = "none"
	TypeMemory Type = "memory"
	TypeRedis  Type = "redis"
)

// Engine 可由工厂创建、可健康检查、可关闭的引擎
type Engine interface {
	engine.Engine
	engine.Named

	Ping(ctx context.Context) error
	Close() error
}

// Reconnector 连接恢复后需要总线重放订阅的引擎
type Reconnector interface {
	OnReconnect(fn func())
}

var (
	_ Engine          = (*MemoryEngine)(nil)
	_ Engine          = (*RedisEngine)(nil)
	_ engine.Resetter = (*MemoryEngine)(nil)
	_ engine.Resetter = (*RedisEngine)(nil)
	_ Reconnector     = (*RedisEngine)(nil)
)

// Config 引擎配置
type Config struct {
	Type   Type   // 类型：none / memory / redis
	NodeID string // 节点ID

	// Redis 配置
	Redis *RedisConfig

	// 内存交换点，为空时使用进程级默认交换点
	Hub *MemoryHub

	Logger corelog.Logger
}

var defaultHub = NewMemoryHub()

// DefaultHub 进程级默认交换点
func DefaultHub() *MemoryHub {
	return defaultHub
}

// NewEngine 创建引擎，d 接收来自其他节点的消息
// TypeNone 返回 (nil, nil)，表示单机运行
func NewEngine(ctx context.Context, config *Config, d engine.Deliverer) (Engine, error) {
	if config == nil {
		return nil, coreerrors.New(coreerrors.CodeConfigError, "engine config is required")
	}

	switch config.Type {
	case TypeNone, "":
		return nil, nil

	case TypeMemory:
		hub := config.Hub
		if hub == nil {
			hub = defaultHub
		}
		return hub.Attach(ctx, config.NodeID, d, config.Logger), nil

	case TypeRedis:
		if config.Redis == nil {
			return nil, coreerrors.New(coreerrors.CodeConfigError, "redis config is required for redis engine")
		}
		r, err := NewRedisEngine(ctx, config.Redis, config.NodeID, d, config.Logger)
		if err != nil {
			return nil, err
		}
		return r, nil

	default:
		return nil, coreerrors.Newf(coreerrors.CodeConfigError, "unsupported engine type: %s", config.Type)
	}
}
