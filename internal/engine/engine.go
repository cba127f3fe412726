// Package engine 定义传播引擎契约与引擎注册表
//
// 引擎负责把订阅、退订和发布同步到外部系统（其他进程或节点）。
// 外部系统推送过来的消息通过 Deliverer.PublishLocal 只做本地投递，
// 不会再次转发给任何引擎。
package engine

import (
	"fmt"

	"relaybus-core/internal/match"
)

// Engine 传播引擎
// 实现必须是可比较类型（通常为指针），注册表以接口值作为引擎标识
type Engine interface {
	// Subscribe 同步订阅意图，false 表示已知失败
	Subscribe(channel string, mode match.Mode) bool
	// Unsubscribe 同步退订意图，false 表示已知失败
	Unsubscribe(channel string, mode match.Mode) bool
	// Publish 向外部系统发布
	Publish(channel string, message []byte)
}

// Named 可选接口，提供日志与指标中使用的引擎名
type Named interface {
	Name() string
}

// Resetter 可选接口，Reset 重放前在引擎队列上调用
// 有状态的引擎（例如按引用计数订阅的）应在此丢弃已同步的订阅，随后的重放会重新建立
type Resetter interface {
	ResetState()
}

// NameOf 引擎名称
func NameOf(e Engine) string {
	if e == nil {
		return "<nil>"
	}
	if n, ok := e.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", e)
}

// Deliverer 本地投递入口，引擎收到外部消息时调用
type Deliverer interface {
	// PublishLocal 只投递给本地订阅者，返回命中的订阅数
	PublishLocal(channel string, message []byte) int
}

// DelivererFunc 函数适配器
type DelivererFunc func(channel string, message []byte) int

// PublishLocal 实现 Deliverer
func (f DelivererFunc) PublishLocal(channel string, message []byte) int {
	return f(channel, message)
}

// Interest 需要同步给引擎的一条订阅
type Interest struct {
	Channel string
	Mode    match.Mode
}

// ============================================================================
// 发布路由
// ============================================================================

type routeKind uint8

const (
	routeDefault routeKind = iota
	routeEngine
	routeLocal
)

// Route 发布路由，零值为默认引擎
type Route struct {
	kind   routeKind
	engine Engine
}

// DefaultRoute 发往默认引擎
func DefaultRoute() Route {
	return Route{}
}

// Via 只发往指定引擎，e 为 nil 时等同 DefaultRoute
func Via(e Engine) Route {
	if e == nil {
		return Route{}
	}
	return Route{kind: routeEngine, engine: e}
}

// LocalOnly 不转发，只做本地投递
func LocalOnly() Route {
	return Route{kind: routeLocal}
}

// IsDefault 是否为默认路由
func (r Route) IsDefault() bool { return r.kind == routeDefault }

// IsLocal 是否只做本地投递
func (r Route) IsLocal() bool { return r.kind == routeLocal }

// Engine 显式指定的引擎
func (r Route) Engine() Engine { return r.engine }

// String 实现 fmt.Stringer
func (r Route) String() string {
	switch r.kind {
	case routeEngine:
		return "engine:" + NameOf(r.engine)
	case routeLocal:
		return "local"
	default:
		return "default"
	}
}
