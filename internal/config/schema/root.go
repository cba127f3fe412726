// Package schema defines configuration structure types
package schema

// Root is the top-level configuration structure
type Root struct {
	Node     NodeConfig     `yaml:"node" json:"node"`
	Log      LogConfig      `yaml:"log" json:"log"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Dispatch DispatchConfig `yaml:"dispatch" json:"dispatch"`
	Engine   EngineConfig   `yaml:"engine" json:"engine"`
}

// NodeConfig identifies this process among peers sharing an engine
type NodeConfig struct {
	ID string `yaml:"id" json:"id"` // generated when empty
}

// ServerConfig contains the HTTP/WebSocket listener settings
type ServerConfig struct {
	Listen         string  `yaml:"listen" json:"listen"`
	Path           string  `yaml:"path" json:"path"`                   // websocket endpoint
	PublishRate    float64 `yaml:"publish_rate" json:"publish_rate"`   // per connection, 0 = unlimited
	PublishBurst   int     `yaml:"publish_burst" json:"publish_burst"` // per connection
	MaxMessageSize int64   `yaml:"max_message_size" json:"max_message_size"`
	APIToken       Secret  `yaml:"api_token" json:"api_token"` // bearer token for /api, empty disables auth
}

// DispatchConfig contains bus queue and cache sizing
type DispatchConfig struct {
	EngineQueueSize  int `yaml:"engine_queue_size" json:"engine_queue_size"`
	ConnQueueSize    int `yaml:"conn_queue_size" json:"conn_queue_size"`
	PatternCacheSize int `yaml:"pattern_cache_size" json:"pattern_cache_size"`
}
