package config

import (
	"net/url"

	mcerrors "github.com/CardSorting/MarieCoder-sub006/internal/errors"
)

// Validate checks the configuration for semantic errors. It returns the
// first problem found.
func Validate(cfg *Config) error {
	if cfg == nil {
		return mcerrors.ErrConfigNil
	}

	if err := validateMarketplace(&cfg.Marketplace); err != nil {
		return err
	}
	if err := validateTask(&cfg.Task); err != nil {
		return err
	}
	return validateLog(&cfg.Log)
}

// validateMarketplace checks the catalog endpoint and request timeout.
func validateMarketplace(cfg *MarketplaceConfig) error {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return mcerrors.Wrapf(mcerrors.ErrInvalidEndpoint, "marketplace.endpoint '%s'", cfg.Endpoint)
	}

	if cfg.RequestTimeout <= 0 {
		return mcerrors.Wrapf(mcerrors.ErrInvalidDuration, "marketplace.request_timeout must be positive, got %s", cfg.RequestTimeout)
	}
	return nil
}

// validateTask checks the task lifecycle settings.
func validateTask(cfg *TaskConfig) error {
	if cfg.CancelWaitTimeout <= 0 {
		return mcerrors.Wrapf(mcerrors.ErrInvalidDuration, "task.cancel_wait_timeout must be positive, got %s", cfg.CancelWaitTimeout)
	}
	return nil
}

// validLogLevels are the accepted values for log.level.
var validLogLevels = map[string]struct{}{
	"trace": {},
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// validateLog checks the logging settings.
func validateLog(cfg *LogConfig) error {
	if _, ok := validLogLevels[cfg.Level]; !ok {
		return mcerrors.Wrapf(mcerrors.ErrValueOutOfRange, "log.level '%s'", cfg.Level)
	}
	return nil
}
