package config

import (
	"os"
	"path/filepath"

	"github.com/CardSorting/MarieCoder-sub006/internal/constants"
	mcerrors "github.com/CardSorting/MarieCoder-sub006/internal/errors"
)

// GlobalConfigDir returns the global configuration directory (~/.mariecoder).
func GlobalConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", mcerrors.Wrap(err, "failed to determine home directory")
	}
	return filepath.Join(home, constants.AppHome), nil
}

// ProjectConfigPath returns the project-level config path relative to the
// current working directory (.mariecoder/config.yaml).
func ProjectConfigPath() string {
	return filepath.Join(constants.AppHome, "config.yaml")
}

// globalConfigPathIfExists returns the global config path if it exists.
func globalConfigPathIfExists() (string, bool) {
	dir, err := GlobalConfigDir()
	if err != nil {
		return "", false
	}

	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}
