// Package loader provides multi-source configuration loading
package loader

import (
	"os"
	"sort"

	"relaybus-core/internal/config/schema"
	"relaybus-core/internal/config/source"
	"relaybus-core/internal/config/validator"
	coreerrors "relaybus-core/internal/core/errors"
	corelog "relaybus-core/internal/core/log"
)

// Loader loads configuration from multiple sources in priority order
type Loader struct {
	sources        []source.Source
	skipValidation bool
}

// NewLoader creates a new Loader
func NewLoader() *Loader {
	return &Loader{
		sources: make([]source.Source, 0),
	}
}

// AddSource adds a configuration source
func (l *Loader) AddSource(s source.Source) {
	l.sources = append(l.sources, s)
}

// SetSkipValidation disables the validation phase
func (l *Loader) SetSkipValidation(skip bool) {
	l.skipValidation = skip
}

// Sources returns the registered sources sorted by priority
func (l *Loader) Sources() []source.Source {
	sorted := make([]source.Source, len(l.sources))
	copy(sorted, l.sources)
	sort.Stable(source.ByPriority(sorted))
	return sorted
}

// Load loads configuration from all sources in priority order
// Lower priority sources are loaded first, then higher priority sources override
func (l *Loader) Load() (*schema.Root, error) {
	if len(l.sources) == 0 {
		return nil, coreerrors.New(coreerrors.CodeConfigError, "no configuration sources registered")
	}

	cfg := &schema.Root{}
	for _, s := range l.Sources() {
		corelog.Debugf("Loading configuration from source: %s (priority %d)", s.Name(), s.Priority())
		if err := s.LoadInto(cfg); err != nil {
			return nil, coreerrors.Wrapf(err, coreerrors.CodeConfigError,
				"failed to load configuration from source %s", s.Name())
		}
	}

	if !l.skipValidation {
		if result := validator.ValidateConfig(cfg); !result.IsValid() {
			return nil, coreerrors.New(coreerrors.CodeConfigError, result.Error())
		}
	}

	return cfg, nil
}

// LoaderBuilder helps build a Loader with common configurations
type LoaderBuilder struct {
	loader         *Loader
	prefix         string
	configFile     string
	overrides      func(cfg *schema.Root)
	skipValidation bool
}

// NewLoaderBuilder creates a new LoaderBuilder
func NewLoaderBuilder() *LoaderBuilder {
	return &LoaderBuilder{
		loader: NewLoader(),
		prefix: source.DefaultEnvPrefix,
	}
}

// WithPrefix sets the environment variable prefix
func (b *LoaderBuilder) WithPrefix(prefix string) *LoaderBuilder {
	b.prefix = prefix
	return b
}

// WithConfigFile sets the configuration file path
// An explicitly named file must exist; otherwise standard locations are searched
func (b *LoaderBuilder) WithConfigFile(path string) *LoaderBuilder {
	b.configFile = path
	return b
}

// WithOverrides registers command-line overrides applied last
func (b *LoaderBuilder) WithOverrides(apply func(cfg *schema.Root)) *LoaderBuilder {
	b.overrides = apply
	return b
}

// WithSkipValidation enables or disables the validation phase
func (b *LoaderBuilder) WithSkipValidation(skip bool) *LoaderBuilder {
	b.skipValidation = skip
	return b
}

// Build creates the configured Loader
func (b *LoaderBuilder) Build() (*Loader, error) {
	// 1. Add default source (lowest priority)
	b.loader.AddSource(source.NewDefaultSource())

	// 2. Find and add YAML source
	configFile := source.FindConfigFile(b.configFile)
	if b.configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, coreerrors.Wrapf(err, coreerrors.CodeConfigError, "config file %q not found", b.configFile)
		}
	}
	if configFile != "" {
		b.loader.AddSource(source.NewYAMLSource(configFile))
		corelog.Debugf("Using config file: %s", configFile)
	}

	// 3. Add environment variable source
	b.loader.AddSource(source.NewEnvSource(b.prefix))

	// 4. Add command-line overrides (highest priority)
	if b.overrides != nil {
		b.loader.AddSource(source.NewCLISource(b.overrides))
	}

	b.loader.SetSkipValidation(b.skipValidation)

	return b.loader, nil
}

// Load is a convenience function that builds a loader and loads configuration
func Load(configFile string) (*schema.Root, error) {
	loader, err := NewLoaderBuilder().
		WithConfigFile(configFile).
		Build()
	if err != nil {
		return nil, err
	}
	return loader.Load()
}
