package source

import (
	"reflect"
	"testing"

	"relaybus-core/internal/config/schema"
	coreerrors "relaybus-core/internal/core/errors"
)

func TestEnvSource_Name(t *testing.T) {
	s := NewEnvSource("RELAYBUS")
	if s.Name() != "env" {
		t.Errorf("Name() = %q, want %q", s.Name(), "env")
	}
}

func TestEnvSource_Priority(t *testing.T) {
	s := NewEnvSource("RELAYBUS")
	if s.Priority() != PriorityEnv {
		t.Errorf("Priority() = %d, want %d", s.Priority(), PriorityEnv)
	}
}

func TestEnvSource_DefaultPrefix(t *testing.T) {
	t.Setenv("RELAYBUS_NODE_ID", "node-a")

	cfg := &schema.Root{}
	if err := NewEnvSource("").LoadInto(cfg); err != nil {
		t.Fatalf("LoadInto() error = %v", err)
	}
	if cfg.Node.ID != "node-a" {
		t.Errorf("Node.ID = %q, want %q", cfg.Node.ID, "node-a")
	}
}

func TestEnvSource_LoadInto(t *testing.T) {
	t.Setenv("RELAYBUS_LOG_LEVEL", "debug")
	t.Setenv("RELAYBUS_LOG_FORMAT", "json")
	t.Setenv("RELAYBUS_SERVER_LISTEN", "127.0.0.1:9000")
	t.Setenv("RELAYBUS_SERVER_PUBLISH_RATE", "2.5")
	t.Setenv("RELAYBUS_SERVER_PUBLISH_BURST", "10")
	t.Setenv("RELAYBUS_SERVER_MAX_MESSAGE_SIZE", "65536")
	t.Setenv("RELAYBUS_SERVER_API_TOKEN", "s3cret")
	t.Setenv("RELAYBUS_DISPATCH_CONN_QUEUE_SIZE", "32")
	t.Setenv("RELAYBUS_ENGINE_TYPE", "redis")
	t.Setenv("RELAYBUS_REDIS_ADDRS", "redis-a:6379, redis-b:6379,")
	t.Setenv("RELAYBUS_REDIS_PASSWORD", "hunter22")
	t.Setenv("RELAYBUS_REDIS_CLUSTER_MODE", "true")
	t.Setenv("RELAYBUS_REDIS_DB", "3")

	cfg := GetDefaultConfig()
	if err := NewEnvSource("RELAYBUS").LoadInto(cfg); err != nil {
		t.Fatalf("LoadInto() error = %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want debug/json", cfg.Log)
	}
	if cfg.Server.Listen != "127.0.0.1:9000" {
		t.Errorf("Server.Listen = %q", cfg.Server.Listen)
	}
	if cfg.Server.PublishRate != 2.5 {
		t.Errorf("PublishRate = %v, want 2.5", cfg.Server.PublishRate)
	}
	if cfg.Server.PublishBurst != 10 {
		t.Errorf("PublishBurst = %d, want 10", cfg.Server.PublishBurst)
	}
	if cfg.Server.MaxMessageSize != 65536 {
		t.Errorf("MaxMessageSize = %d, want 65536", cfg.Server.MaxMessageSize)
	}
	if cfg.Server.APIToken.Value() != "s3cret" {
		t.Errorf("APIToken = %q, want %q", cfg.Server.APIToken.Value(), "s3cret")
	}
	if cfg.Dispatch.ConnQueueSize != 32 {
		t.Errorf("ConnQueueSize = %d, want 32", cfg.Dispatch.ConnQueueSize)
	}
	// untouched values keep their defaults
	if cfg.Dispatch.EngineQueueSize != 4096 {
		t.Errorf("EngineQueueSize = %d, want 4096", cfg.Dispatch.EngineQueueSize)
	}

	if cfg.Engine.Type != schema.EngineTypeRedis {
		t.Errorf("Engine.Type = %q, want redis", cfg.Engine.Type)
	}
	want := []string{"redis-a:6379", "redis-b:6379"}
	if !reflect.DeepEqual(cfg.Engine.Redis.Addrs, want) {
		t.Errorf("Redis.Addrs = %v, want %v", cfg.Engine.Redis.Addrs, want)
	}
	if cfg.Engine.Redis.Password.Value() != "hunter22" {
		t.Errorf("Redis.Password not loaded")
	}
	if !cfg.Engine.Redis.ClusterMode {
		t.Error("Redis.ClusterMode should be true")
	}
	if cfg.Engine.Redis.DB != 3 {
		t.Errorf("Redis.DB = %d, want 3", cfg.Engine.Redis.DB)
	}
}

func TestEnvSource_InvalidValues(t *testing.T) {
	t.Setenv("RELAYBUS_SERVER_PUBLISH_BURST", "lots")
	t.Setenv("RELAYBUS_REDIS_CLUSTER_MODE", "maybe")
	t.Setenv("RELAYBUS_LOG_LEVEL", "warn")

	cfg := GetDefaultConfig()
	err := NewEnvSource("RELAYBUS").LoadInto(cfg)
	if err == nil {
		t.Fatal("LoadInto() should fail on malformed values")
	}
	if !coreerrors.IsCode(err, coreerrors.CodeConfigError) {
		t.Errorf("error code = %v, want %v", coreerrors.GetCode(err), coreerrors.CodeConfigError)
	}
	if cfg.Server.PublishBurst != 0 {
		t.Errorf("PublishBurst = %d, malformed value should not be applied", cfg.Server.PublishBurst)
	}
	// well-formed variables are still applied
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
}

func TestEnvSource_EmptyValueIgnored(t *testing.T) {
	t.Setenv("RELAYBUS_SERVER_LISTEN", "")

	cfg := GetDefaultConfig()
	if err := NewEnvSource("RELAYBUS").LoadInto(cfg); err != nil {
		t.Fatalf("LoadInto() error = %v", err)
	}
	if cfg.Server.Listen != ":8080" {
		t.Errorf("Server.Listen = %q, empty variable should not override", cfg.Server.Listen)
	}
}
