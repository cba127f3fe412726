// Package validator provides configuration validation
package validator

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"relaybus-core/internal/config/schema"
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string // Field path (e.g., "engine.redis.addrs")
	Value   string // Current value (masked for secrets)
	Message string // Error message
	Hint    string // Fix suggestion
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult contains all validation errors
type ValidationResult struct {
	Errors []ValidationError
}

// IsValid returns true if there are no validation errors
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Error returns a formatted error message
func (r *ValidationResult) Error() string {
	if r.IsValid() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n\n")

	for i, err := range r.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Field))
		if err.Value != "" {
			sb.WriteString(fmt.Sprintf("     Current value: %s\n", err.Value))
		}
		sb.WriteString(fmt.Sprintf("     Error: %s\n", err.Message))
		if err.Hint != "" {
			sb.WriteString(fmt.Sprintf("     Hint: %s\n", err.Hint))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// AddError adds a validation error
func (r *ValidationResult) AddError(field, value, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Hint:    hint,
	})
}

// Fields returns the paths of all failing fields in order
func (r *ValidationResult) Fields() []string {
	fields := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		fields = append(fields, e.Field)
	}
	return fields
}

// Validator validates configuration
type Validator struct {
	rules []ValidationRule
}

// ValidationRule is a function that validates configuration
type ValidationRule func(cfg *schema.Root, result *ValidationResult)

// NewValidator creates a new Validator with default rules
func NewValidator() *Validator {
	v := &Validator{
		rules: make([]ValidationRule, 0),
	}

	v.AddRule(validateNode)
	v.AddRule(validateLog)
	v.AddRule(validateServer)
	v.AddRule(validateDispatch)
	v.AddRule(validateEngine)

	return v
}

// AddRule adds a validation rule
func (v *Validator) AddRule(rule ValidationRule) {
	v.rules = append(v.rules, rule)
}

// Validate validates the configuration
func (v *Validator) Validate(cfg *schema.Root) *ValidationResult {
	result := &ValidationResult{
		Errors: make([]ValidationError, 0),
	}

	for _, rule := range v.rules {
		rule(cfg, result)
	}

	return result
}

// ValidateConfig is a convenience function that creates a validator and validates
func ValidateConfig(cfg *schema.Root) *ValidationResult {
	return NewValidator().Validate(cfg)
}

// ============================================================================
// Validation Rules
// ============================================================================

func validateNode(cfg *schema.Root, result *ValidationResult) {
	// Node IDs travel inside engine envelopes and log fields
	if strings.ContainsAny(cfg.Node.ID, " \t\r\n") {
		result.AddError("node.id", cfg.Node.ID,
			"node ID must not contain whitespace",
			"Leave empty to generate a UUID")
	}
}

func validateLog(cfg *schema.Root, result *ValidationResult) {
	validLevels := []string{"trace", "debug", "info", "warn", "warning", "error", "fatal", "panic"}
	if cfg.Log.Level != "" && !containsFold(validLevels, cfg.Log.Level) {
		result.AddError("log.level", cfg.Log.Level,
			"invalid log level",
			"Use one of: debug, info, warn, error")
	}

	if cfg.Log.Format != "" && !containsFold([]string{"text", "json"}, cfg.Log.Format) {
		result.AddError("log.format", cfg.Log.Format,
			"invalid log format",
			"Use 'text' or 'json', or leave empty to pick by terminal")
	}

	switch strings.ToLower(cfg.Log.Output) {
	case "", "stdout", "stderr":
	case "file":
		if cfg.Log.File == "" {
			result.AddError("log.file", "",
				"log file path is required when output is 'file'",
				"Set log.file to a writable path")
		}
	default:
		result.AddError("log.output", cfg.Log.Output,
			"invalid log output",
			"Use one of: stdout, stderr, file")
	}
}

func validateServer(cfg *schema.Root, result *ValidationResult) {
	validateListenAddr("server.listen", cfg.Server.Listen, result)

	if !strings.HasPrefix(cfg.Server.Path, "/") {
		result.AddError("server.path", cfg.Server.Path,
			"websocket path must start with '/'",
			"Example: /ws")
	}

	if cfg.Server.PublishRate < 0 {
		result.AddError("server.publish_rate", strconv.FormatFloat(cfg.Server.PublishRate, 'g', -1, 64),
			"publish rate must not be negative",
			"Use 0 to disable rate limiting")
	}
	if cfg.Server.PublishBurst < 0 {
		result.AddError("server.publish_burst", strconv.Itoa(cfg.Server.PublishBurst),
			"publish burst must not be negative",
			"Use 0 to derive the burst from the rate")
	}

	if cfg.Server.MaxMessageSize <= 0 {
		result.AddError("server.max_message_size", strconv.FormatInt(cfg.Server.MaxMessageSize, 10),
			"max message size must be positive",
			"Default is 1048576 (1MB)")
	}
}

func validateDispatch(cfg *schema.Root, result *ValidationResult) {
	validatePositive("dispatch.engine_queue_size", cfg.Dispatch.EngineQueueSize, result)
	validatePositive("dispatch.conn_queue_size", cfg.Dispatch.ConnQueueSize, result)
	validatePositive("dispatch.pattern_cache_size", cfg.Dispatch.PatternCacheSize, result)
}

func validateEngine(cfg *schema.Root, result *ValidationResult) {
	switch cfg.Engine.Type {
	case schema.EngineTypeNone, schema.EngineTypeMemory:
		return
	case schema.EngineTypeRedis:
	default:
		result.AddError("engine.type", cfg.Engine.Type,
			"invalid engine type",
			"Use one of: memory, redis, none")
		return
	}

	redis := cfg.Engine.Redis
	if len(redis.Addrs) == 0 {
		result.AddError("engine.redis.addrs", "",
			"at least one Redis address is required when engine type is 'redis'",
			"Set engine.redis.addrs or RELAYBUS_REDIS_ADDRS")
	}
	for i, addr := range redis.Addrs {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			result.AddError(fmt.Sprintf("engine.redis.addrs[%d]", i), addr,
				"invalid address format",
				"Use format 'host:port', e.g., 'localhost:6379'")
		}
	}
	if !redis.ClusterMode && len(redis.Addrs) > 1 {
		result.AddError("engine.redis.addrs", strings.Join(redis.Addrs, ","),
			"multiple addresses require cluster mode",
			"Set engine.redis.cluster_mode: true or list a single address")
	}
	if redis.ClusterMode && redis.DB != 0 {
		result.AddError("engine.redis.db", strconv.Itoa(redis.DB),
			"Redis cluster only supports database 0",
			"Remove engine.redis.db")
	}
	if redis.DB < 0 {
		result.AddError("engine.redis.db", strconv.Itoa(redis.DB),
			"database index must not be negative",
			"")
	}
	validatePositive("engine.redis.pool_size", redis.PoolSize, result)
	validatePositive("engine.redis.dedupe_window", redis.DedupeWindow, result)
}

// ============================================================================
// Helper Functions
// ============================================================================

func validateListenAddr(field, addr string, result *ValidationResult) {
	if addr == "" {
		result.AddError(field, "",
			"listen address is required",
			"Example: ':8080' or '0.0.0.0:8080'")
		return
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		result.AddError(field, addr,
			"invalid listen address",
			"Use format 'host:port' or ':port'")
		return
	}
	if p, err := strconv.Atoi(port); err != nil || p < 0 || p > 65535 {
		result.AddError(field, addr,
			"port must be between 0 and 65535",
			"")
	}
}

func validatePositive(field string, value int, result *ValidationResult) {
	if value <= 0 {
		result.AddError(field, strconv.Itoa(value),
			"must be positive",
			"")
	}
}

func containsFold(values []string, v string) bool {
	for _, s := range values {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
