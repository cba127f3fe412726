package metrics

// Metrics 指标收集接口
// 单进程使用内存实现，接口形状便于替换为 Prometheus
type Metrics interface {
	IncrementCounter(name string, labels map[string]string)
	AddCounter(name string, value int64, labels map[string]string)
	GetCounter(name string, labels map[string]string) int64

	SetGauge(name string, value float64, labels map[string]string)
	AddGauge(name string, delta float64, labels map[string]string)
	GetGauge(name string, labels map[string]string) float64

	// Snapshot 返回所有指标当前值，key 形如 name{k=v}
	Snapshot() map[string]float64
}

// 分发相关指标名
const (
	PublishTotal              = "publish_total"
	PublishRejectedTotal      = "publish_rejected_total"
	InboundTotal              = "inbound_total"
	DeliveriesTotal           = "deliveries_total"
	DeliveriesDroppedTotal    = "deliveries_dropped_total"
	EngineFailuresTotal       = "engine_failures_total"
	SubscriptionsReplaced     = "subscriptions_replaced_total"
	SubscriptionsActive       = "subscriptions_active"
	ConnectionsActive         = "connections_active"
	EnginesRegistered         = "engines_registered"
	EngineReplayedTotal       = "engine_replayed_total"
	EngineDeferredTotal       = "engine_deferred_total"
	ConnectionCleanupsTotal   = "connection_cleanups_total"
	TransportCommandsTotal    = "transport_commands_total"
	TransportRateLimitedTotal = "transport_rate_limited_total"
)
