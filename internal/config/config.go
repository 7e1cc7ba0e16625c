// Package config loads and validates the MarieCoder configuration.
//
// Configuration is layered, highest priority first:
//  1. Environment variables (MARIECODER_ prefix)
//  2. Project config file (./.mariecoder/config.yaml)
//  3. Global config file (~/.mariecoder/config.yaml)
//  4. Built-in defaults
package config

import (
	"time"

	"github.com/CardSorting/MarieCoder-sub006/internal/constants"
)

// Config is the full application configuration.
type Config struct {
	// Workspace configures root detection.
	Workspace WorkspaceConfig `mapstructure:"workspace"`

	// Marketplace configures the MCP catalog refresher.
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`

	// Task configures the task lifecycle.
	Task TaskConfig `mapstructure:"task"`

	// Notifications configures user-facing messages.
	Notifications NotificationsConfig `mapstructure:"notifications"`

	// Log configures logging output.
	Log LogConfig `mapstructure:"log"`
}

// WorkspaceConfig configures workspace root resolution.
type WorkspaceConfig struct {
	// Roots are candidate workspace root paths. Missing paths are skipped.
	Roots []string `mapstructure:"roots"`

	// FallbackCwd is used when no root resolves. Empty selects the default.
	FallbackCwd string `mapstructure:"fallback_cwd"`
}

// MarketplaceConfig configures catalog fetching.
type MarketplaceConfig struct {
	// Endpoint is the catalog download URL.
	Endpoint string `mapstructure:"endpoint"`

	// RequestTimeout bounds each catalog request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// TaskConfig configures the task lifecycle.
type TaskConfig struct {
	// CancelWaitTimeout bounds the cooperative cancellation wait.
	CancelWaitTimeout time.Duration `mapstructure:"cancel_wait_timeout"`
}

// NotificationsConfig configures user-facing notifications.
type NotificationsConfig struct {
	// Bell rings the terminal bell on warnings and errors.
	Bell bool `mapstructure:"bell"`

	// Quiet suppresses the bell entirely.
	Quiet bool `mapstructure:"quiet"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the minimum level: trace, debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Console forces human-readable console output instead of JSON.
	Console bool `mapstructure:"console"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Marketplace: MarketplaceConfig{
			Endpoint:       constants.DefaultMarketplaceEndpoint,
			RequestTimeout: constants.DefaultCatalogRequestTimeout,
		},
		Task: TaskConfig{
			CancelWaitTimeout: constants.DefaultCancelWaitTimeout,
		},
		Notifications: NotificationsConfig{
			Bell: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
