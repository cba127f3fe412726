package metrics

import (
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// MemoryMetrics 内存指标实现（无外部依赖）
type MemoryMetrics struct {
	counters map[string]*atomic.Int64
	gauges   map[string]*atomic.Uint64 // float64 bits
	mu       sync.RWMutex
}

// NewMemoryMetrics 创建内存指标收集器
func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{
		counters: make(map[string]*atomic.Int64),
		gauges:   make(map[string]*atomic.Uint64),
	}
}

func (m *MemoryMetrics) counter(key string) *atomic.Int64 {
	m.mu.RLock()
	c, ok := m.counters[key]
	m.mu.RUnlock()
	if ok {
		return c
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.counters[key]; !ok {
		c = &atomic.Int64{}
		m.counters[key] = c
	}
	return c
}

func (m *MemoryMetrics) gauge(key string) *atomic.Uint64 {
	m.mu.RLock()
	g, ok := m.gauges[key]
	m.mu.RUnlock()
	if ok {
		return g
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok = m.gauges[key]; !ok {
		g = &atomic.Uint64{}
		m.gauges[key] = g
	}
	return g
}

// IncrementCounter 计数器加一
func (m *MemoryMetrics) IncrementCounter(name string, labels map[string]string) {
	m.counter(buildKey(name, labels)).Add(1)
}

// AddCounter 计数器增加指定值
func (m *MemoryMetrics) AddCounter(name string, value int64, labels map[string]string) {
	m.counter(buildKey(name, labels)).Add(value)
}

// GetCounter 获取计数器值
func (m *MemoryMetrics) GetCounter(name string, labels map[string]string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.counters[buildKey(name, labels)]; ok {
		return c.Load()
	}
	return 0
}

// SetGauge 设置 Gauge 值
func (m *MemoryMetrics) SetGauge(name string, value float64, labels map[string]string) {
	m.gauge(buildKey(name, labels)).Store(math.Float64bits(value))
}

// AddGauge Gauge 增减
func (m *MemoryMetrics) AddGauge(name string, delta float64, labels map[string]string) {
	g := m.gauge(buildKey(name, labels))
	for {
		old := g.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if g.CompareAndSwap(old, next) {
			return
		}
	}
}

// GetGauge 获取 Gauge 值
func (m *MemoryMetrics) GetGauge(name string, labels map[string]string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.gauges[buildKey(name, labels)]; ok {
		return math.Float64frombits(g.Load())
	}
	return 0
}

// Snapshot 返回所有指标当前值
func (m *MemoryMetrics) Snapshot() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(m.counters)+len(m.gauges))
	for k, c := range m.counters {
		out[k] = float64(c.Load())
	}
	for k, g := range m.gauges {
		out[k] = math.Float64frombits(g.Load())
	}
	return out
}

// buildKey 构建指标键名，标签按键名排序
func buildKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}
