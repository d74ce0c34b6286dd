package api

import (
	"context"

	domainconfig "github.com/felixgeelhaar/ideaflow/domain/config"
	infraconfig "github.com/felixgeelhaar/ideaflow/infrastructure/config"
)

// Re-export configuration types.
type (
	// AppConfig is the complete application configuration.
	AppConfig = domainconfig.AppConfig
	// StorageConfig selects and configures the idea store.
	StorageConfig = domainconfig.StorageConfig
	// AuditConfig selects and configures the audit log.
	AuditConfig = domainconfig.AuditConfig
	// ValidationErrors is a collection of configuration problems.
	ValidationErrors = domainconfig.ValidationErrors

	// ConfigLoader loads configuration files.
	ConfigLoader = infraconfig.Loader
	// ConfigLoaderOption configures the loader.
	ConfigLoaderOption = infraconfig.LoaderOption
	// Runtime holds the components built from a configuration.
	Runtime = infraconfig.Runtime
	// BuildOption configures Build.
	BuildOption = infraconfig.BuildOption
)

// Configuration errors.
var (
	ErrConfigNotFound    = domainconfig.ErrConfigNotFound
	ErrValidationFailed  = domainconfig.ErrValidationFailed
	ErrMissingEnvVar     = domainconfig.ErrMissingEnvVar
	ErrBuildFailed       = domainconfig.ErrBuildFailed
	ErrUnsupportedFormat = domainconfig.ErrUnsupportedFormat
)

// Loader options.
var (
	ConfigWithEnvExpansion = infraconfig.WithEnvExpansion
	ConfigWithStrictEnv    = infraconfig.WithStrictEnv
	ConfigWithValidation   = infraconfig.WithValidation
)

// DefaultConfig returns the in-memory configuration.
func DefaultConfig() *AppConfig {
	return domainconfig.Default()
}

// NewConfigLoader creates a configuration loader.
func NewConfigLoader(opts ...ConfigLoaderOption) *ConfigLoader {
	return infraconfig.NewLoader(opts...)
}

// Build opens the configured backends and returns a ready service.
// Close the runtime when done.
func Build(ctx context.Context, cfg *AppConfig, opts ...BuildOption) (*Runtime, error) {
	return infraconfig.Build(ctx, cfg, opts...)
}
