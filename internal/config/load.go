package config

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	mcerrors "github.com/CardSorting/MarieCoder-sub006/internal/errors"
)

// newViperInstance creates a Viper instance with the standard MarieCoder
// configuration: MARIECODER_ environment prefix, key replacer, and defaults.
func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("MARIECODER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults configures all default values on the Viper instance.
// Keys must match the mapstructure tag names exactly.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("workspace.roots", []string{})
	v.SetDefault("workspace.fallback_cwd", "")

	v.SetDefault("marketplace.endpoint", defaults.Marketplace.Endpoint)
	v.SetDefault("marketplace.request_timeout", defaults.Marketplace.RequestTimeout.String())

	v.SetDefault("task.cancel_wait_timeout", defaults.Task.CancelWaitTimeout.String())

	v.SetDefault("notifications.bell", defaults.Notifications.Bell)
	v.SetDefault("notifications.quiet", defaults.Notifications.Quiet)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.console", defaults.Log.Console)
}

// Load reads configuration from all available sources with proper precedence.
// Configuration is loaded in the following order (highest precedence first):
//  1. Environment variables (MARIECODER_* prefix)
//  2. Project config (.mariecoder/config.yaml)
//  3. Global config (~/.mariecoder/config.yaml)
//  4. Built-in defaults
//
// Missing config files are not an error; many setups run on defaults alone.
func Load(_ context.Context) (*Config, error) {
	v := newViperInstance()

	if err := loadGlobalConfig(v); err != nil {
		return nil, err
	}
	if err := loadProjectConfig(v); err != nil {
		return nil, err
	}

	return unmarshalAndValidate(v)
}

// LoadFromPaths loads configuration from specific file paths for testing.
// Either path can be empty to skip that level; projectConfigPath wins.
func LoadFromPaths(_ context.Context, projectConfigPath, globalConfigPath string) (*Config, error) {
	v := newViperInstance()

	if globalConfigPath != "" {
		v.SetConfigFile(globalConfigPath)
		if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) && !os.IsNotExist(err) {
			return nil, mcerrors.Wrapf(err, "failed to read global config: %s", globalConfigPath)
		}
	}

	if projectConfigPath != "" {
		v.SetConfigFile(projectConfigPath)
		if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) && !os.IsNotExist(err) {
			return nil, mcerrors.Wrapf(err, "failed to read project config: %s", projectConfigPath)
		}
	}

	return unmarshalAndValidate(v)
}

// loadGlobalConfig loads ~/.mariecoder/config.yaml when it exists.
func loadGlobalConfig(v *viper.Viper) error {
	path, ok := globalConfigPathIfExists()
	if !ok {
		return nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) {
		return mcerrors.Wrap(err, "failed to read global config file")
	}
	return nil
}

// loadProjectConfig loads ./.mariecoder/config.yaml when it exists.
func loadProjectConfig(v *viper.Viper) error {
	path := ProjectConfigPath()
	if !fileExists(path) {
		return nil
	}

	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) {
		return mcerrors.Wrap(err, "failed to read project config file")
	}
	return nil
}

// unmarshalAndValidate unmarshals viper config into Config and validates it.
func unmarshalAndValidate(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, mcerrors.Wrap(err, "failed to unmarshal config")
	}
	if err := Validate(&cfg); err != nil {
		return nil, mcerrors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// viperDecoderOption configures mapstructure to decode time.Duration from
// strings like "10s".
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	)
}

// isConfigNotFoundError returns true for viper's config-file-not-found error.
func isConfigNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var notFound viper.ConfigFileNotFoundError
	return stderrors.As(err, &notFound)
}

// fileExists returns true if the file at path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
