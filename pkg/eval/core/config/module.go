// This module defines Fx providers for configuration-related components.
package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts *LoggingConfig from *Config.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.PVTruth.System.Logging
}

// NewTruthConfigProvider extracts *TruthConfig from *Config.
func NewTruthConfigProvider(cfg *Config) *TruthConfig {
	return &cfg.PVTruth.Truth
}

// Module provides the loaded *Config and its sections to Fx.
// The application must supply EmbeddedConfig.
var Module = fx.Options(
	fx.Provide(func() EnvironmentExpander {
		return NewOsEnvironmentExpander()
	}),
	fx.Provide(NewConfigProvider),
	fx.Provide(NewLoggingConfigProvider),
	fx.Provide(NewTruthConfigProvider),
)
