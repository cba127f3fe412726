package source

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"relaybus-core/internal/config/schema"
	coreerrors "relaybus-core/internal/core/errors"
)

// DefaultEnvPrefix is prepended (with an underscore) to every variable name
const DefaultEnvPrefix = "RELAYBUS"

// EnvSource loads configuration from environment variables
type EnvSource struct {
	prefix string
	errs   []error
}

// NewEnvSource creates a new EnvSource with the specified prefix
func NewEnvSource(prefix string) *EnvSource {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvSource{
		prefix: prefix,
	}
}

// Name returns the source name
func (s *EnvSource) Name() string {
	return "env"
}

// Priority returns the source priority
func (s *EnvSource) Priority() int {
	return PriorityEnv
}

// LoadInto loads environment variables into the config structure.
// Malformed values are reported together after every variable has been read.
func (s *EnvSource) LoadInto(cfg *schema.Root) error {
	s.errs = nil

	// Node
	s.loadString("NODE_ID", &cfg.Node.ID)

	// Log
	s.loadString("LOG_LEVEL", &cfg.Log.Level)
	s.loadString("LOG_FORMAT", &cfg.Log.Format)
	s.loadString("LOG_OUTPUT", &cfg.Log.Output)
	s.loadString("LOG_FILE", &cfg.Log.File)

	// Server
	s.loadString("SERVER_LISTEN", &cfg.Server.Listen)
	s.loadString("SERVER_PATH", &cfg.Server.Path)
	s.loadFloat("SERVER_PUBLISH_RATE", &cfg.Server.PublishRate)
	s.loadInt("SERVER_PUBLISH_BURST", &cfg.Server.PublishBurst)
	s.loadInt64("SERVER_MAX_MESSAGE_SIZE", &cfg.Server.MaxMessageSize)
	s.loadSecret("SERVER_API_TOKEN", &cfg.Server.APIToken)

	// Dispatch
	s.loadInt("DISPATCH_ENGINE_QUEUE_SIZE", &cfg.Dispatch.EngineQueueSize)
	s.loadInt("DISPATCH_CONN_QUEUE_SIZE", &cfg.Dispatch.ConnQueueSize)
	s.loadInt("DISPATCH_PATTERN_CACHE_SIZE", &cfg.Dispatch.PatternCacheSize)

	// Engine
	s.loadString("ENGINE_TYPE", &cfg.Engine.Type)
	s.loadStringSlice("REDIS_ADDRS", &cfg.Engine.Redis.Addrs)
	s.loadSecret("REDIS_PASSWORD", &cfg.Engine.Redis.Password)
	s.loadInt("REDIS_DB", &cfg.Engine.Redis.DB)
	s.loadBool("REDIS_CLUSTER_MODE", &cfg.Engine.Redis.ClusterMode)
	s.loadInt("REDIS_POOL_SIZE", &cfg.Engine.Redis.PoolSize)
	s.loadString("REDIS_PREFIX", &cfg.Engine.Redis.Prefix)
	s.loadInt("REDIS_DEDUPE_WINDOW", &cfg.Engine.Redis.DedupeWindow)

	if len(s.errs) > 0 {
		return coreerrors.Wrap(coreerrors.Join(s.errs...), coreerrors.CodeConfigError, "invalid environment variables")
	}
	return nil
}

// getEnv gets environment variable with the configured prefix
func (s *EnvSource) getEnv(key string) (string, string, bool) {
	prefixedKey := s.prefix + "_" + key
	if v := os.Getenv(prefixedKey); v != "" {
		return prefixedKey, v, true
	}
	return prefixedKey, "", false
}

func (s *EnvSource) fail(name, value string, err error) {
	s.errs = append(s.errs, fmt.Errorf("%s=%q: %w", name, value, err))
}

func (s *EnvSource) loadString(key string, target *string) {
	if _, v, ok := s.getEnv(key); ok {
		*target = v
	}
}

func (s *EnvSource) loadSecret(key string, target *schema.Secret) {
	if _, v, ok := s.getEnv(key); ok {
		*target = schema.Secret(v)
	}
}

func (s *EnvSource) loadBool(key string, target *bool) {
	if name, v, ok := s.getEnv(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.fail(name, v, err)
			return
		}
		*target = b
	}
}

func (s *EnvSource) loadInt(key string, target *int) {
	if name, v, ok := s.getEnv(key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			s.fail(name, v, err)
			return
		}
		*target = i
	}
}

func (s *EnvSource) loadInt64(key string, target *int64) {
	if name, v, ok := s.getEnv(key); ok {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.fail(name, v, err)
			return
		}
		*target = i
	}
}

func (s *EnvSource) loadFloat(key string, target *float64) {
	if name, v, ok := s.getEnv(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.fail(name, v, err)
			return
		}
		*target = f
	}
}

func (s *EnvSource) loadStringSlice(key string, target *[]string) {
	if _, v, ok := s.getEnv(key); ok {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			*target = result
		}
	}
}
