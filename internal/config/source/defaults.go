package source

import (
	"relaybus-core/internal/config/schema"
)

// DefaultSource provides default configuration values
type DefaultSource struct{}

// NewDefaultSource creates a new DefaultSource
func NewDefaultSource() *DefaultSource {
	return &DefaultSource{}
}

// Name returns the source name
func (s *DefaultSource) Name() string {
	return "defaults"
}

// Priority returns the source priority
func (s *DefaultSource) Priority() int {
	return PriorityDefaults
}

// LoadInto loads default values into the configuration
func (s *DefaultSource) LoadInto(cfg *schema.Root) error {
	// Log defaults; empty format picks text on a terminal, json otherwise
	cfg.Log.Level = "info"
	cfg.Log.Output = "stdout"

	// Server defaults
	cfg.Server.Listen = ":8080"
	cfg.Server.Path = "/ws"
	cfg.Server.MaxMessageSize = 1 << 20

	// Dispatch defaults
	cfg.Dispatch.EngineQueueSize = 4096
	cfg.Dispatch.ConnQueueSize = 256
	cfg.Dispatch.PatternCacheSize = 1024

	// Engine defaults
	cfg.Engine.Type = schema.EngineTypeMemory
	cfg.Engine.Redis.PoolSize = 100
	cfg.Engine.Redis.Prefix = "relaybus:"
	cfg.Engine.Redis.DedupeWindow = 4096

	return nil
}

// GetDefaultConfig returns a fully initialized default configuration
func GetDefaultConfig() *schema.Root {
	cfg := &schema.Root{}
	source := NewDefaultSource()
	_ = source.LoadInto(cfg)
	return cfg
}
