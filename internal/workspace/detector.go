// Package workspace resolves and tracks the workspace roots a session
// operates in. Root detection degrades instead of failing: a session with
// zero roots is valid and falls back to a default working directory.
package workspace

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/CardSorting/MarieCoder-sub006/internal/ctxutil"
	"github.com/CardSorting/MarieCoder-sub006/internal/domain"
)

// RootDetector discovers workspace roots for the current session.
// The host environment provides the implementation; ConfigDetector is the
// default used by the CLI.
type RootDetector interface {
	// DetectRoots returns the detected workspace roots. An empty set is a
	// valid result and not an error.
	DetectRoots(ctx context.Context) (*domain.WorkspaceSet, error)
}

// ConfigDetector resolves roots from a configured list of paths. Paths that
// do not exist or are not directories are skipped with a warning. The first
// surviving path becomes the primary root.
type ConfigDetector struct {
	paths  []string
	logger zerolog.Logger
}

// Ensure ConfigDetector implements RootDetector.
var _ RootDetector = (*ConfigDetector)(nil)

// NewConfigDetector creates a detector over the given candidate paths.
func NewConfigDetector(paths []string, logger zerolog.Logger) *ConfigDetector {
	return &ConfigDetector{
		paths:  paths,
		logger: logger.With().Str("component", "workspace").Logger(),
	}
}

// DetectRoots resolves the configured paths to absolute existing directories.
func (d *ConfigDetector) DetectRoots(ctx context.Context) (*domain.WorkspaceSet, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	set := &domain.WorkspaceSet{}
	for _, p := range d.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			d.logger.Warn().Err(err).Str("path", p).Msg("skipping unresolvable workspace path")
			continue
		}

		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			d.logger.Warn().Str("path", abs).Msg("skipping missing workspace path")
			continue
		}

		set.Roots = append(set.Roots, domain.WorkspaceRoot{
			Path:  abs,
			Index: len(set.Roots),
		})
	}

	return set, nil
}

// DefaultCwd returns the fallback working directory used when no workspace
// root is available. Matches the historical default of the desktop folder.
func DefaultCwd() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Desktop")
}
