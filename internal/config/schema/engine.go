package schema

// Engine types
const (
	EngineTypeNone   = "none"
	EngineTypeMemory = "memory"
	EngineTypeRedis  = "redis"
)

// EngineConfig selects the propagation engine registered on the bus
type EngineConfig struct {
	Type  string      `yaml:"type" json:"type"` // memory/redis/none
	Redis RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig contains Redis engine settings
type RedisConfig struct {
	Addrs        []string `yaml:"addrs" json:"addrs"`
	Password     Secret   `yaml:"password" json:"password"`
	DB           int      `yaml:"db" json:"db"`
	ClusterMode  bool     `yaml:"cluster_mode" json:"cluster_mode"`
	PoolSize     int      `yaml:"pool_size" json:"pool_size"`
	Prefix       string   `yaml:"prefix" json:"prefix"`               // channel namespace on the shared server
	DedupeWindow int      `yaml:"dedupe_window" json:"dedupe_window"` // recent message IDs remembered
}
