package workspace

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/CardSorting/MarieCoder-sub006/internal/bus"
	"github.com/CardSorting/MarieCoder-sub006/internal/ctxutil"
	"github.com/CardSorting/MarieCoder-sub006/internal/domain"
	mcerrors "github.com/CardSorting/MarieCoder-sub006/internal/errors"
)

// InitializedPayload is the payload of EventWorkspaceInitialized.
type InitializedPayload struct {
	Roots        []domain.WorkspaceRoot
	PrimaryIndex int
	RootCount    int
	Cwd          string
}

// ChangedPayload is the payload of EventWorkspaceChanged.
type ChangedPayload struct {
	Added   []string
	Removed []string
}

// Resolver owns the resolved workspace root set for a session. Detection
// failures never fail the session: the resolver logs them and serves the
// fallback working directory instead.
type Resolver struct {
	detector    RootDetector
	bus         *bus.Bus
	logger      zerolog.Logger
	fallbackCwd string

	mu  sync.RWMutex
	set domain.WorkspaceSet
}

// NewResolver creates a workspace resolver. fallbackCwd is served by GetCwd
// when no root is resolved; pass DefaultCwd() for the standard fallback.
func NewResolver(detector RootDetector, b *bus.Bus, logger zerolog.Logger, fallbackCwd string) *Resolver {
	return &Resolver{
		detector:    detector,
		bus:         b,
		logger:      logger.With().Str("component", "workspace").Logger(),
		fallbackCwd: fallbackCwd,
	}
}

// Initialize runs root detection and publishes the result. A failed or empty
// detection leaves the resolver with zero roots; the session continues on the
// fallback working directory. EventWorkspaceInitialized fires only when at
// least one root was resolved.
func (r *Resolver) Initialize(ctx context.Context) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	if r.detector == nil {
		r.logger.Warn().Msg("no root detector wired, continuing without workspace roots")
		r.storeSet(domain.WorkspaceSet{})
		return nil
	}

	set, err := r.detector.DetectRoots(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("workspace root detection failed, continuing without roots")
		r.storeSet(domain.WorkspaceSet{})
		return nil
	}
	if set == nil {
		set = &domain.WorkspaceSet{}
	}

	r.storeSet(*set)

	r.logger.Info().
		Int("root_count", len(set.Roots)).
		Str("cwd", r.GetCwd()).
		Msg("workspace initialized")

	if len(set.Roots) == 0 {
		return nil
	}

	return r.bus.Emit(ctx, bus.EventWorkspaceInitialized, InitializedPayload{
		Roots:        append([]domain.WorkspaceRoot(nil), set.Roots...),
		PrimaryIndex: set.PrimaryIndex,
		RootCount:    len(set.Roots),
		Cwd:          r.GetCwd(),
	})
}

// HandleWorkspaceChange reacts to roots being added or removed while the
// session runs. The change is announced, then the full root set is detected
// again from scratch.
func (r *Resolver) HandleWorkspaceChange(ctx context.Context, added, removed []string) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	if len(added) == 0 && len(removed) == 0 {
		return nil
	}

	r.logger.Info().
		Strs("added", added).
		Strs("removed", removed).
		Msg("workspace roots changed")

	if err := r.bus.Emit(ctx, bus.EventWorkspaceChanged, ChangedPayload{Added: added, Removed: removed}); err != nil {
		return mcerrors.Wrap(err, "failed to announce workspace change")
	}

	return r.Initialize(ctx)
}

// PrimaryCwd returns the primary root path. ok is false when no workspace
// root resolved; the caller chooses what to fall back to.
func (r *Resolver) PrimaryCwd() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if primary, ok := r.set.Primary(); ok {
		return primary.Path, true
	}
	return "", false
}

// GetCwd returns the primary root path, or the fallback working directory
// when no root is resolved. An empty string means no directory is available
// at all.
func (r *Resolver) GetCwd() string {
	if cwd, ok := r.PrimaryCwd(); ok {
		return cwd
	}
	return r.fallbackCwd
}

// GetRoots returns a copy of the resolved workspace roots.
func (r *Resolver) GetRoots() []domain.WorkspaceRoot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.WorkspaceRoot(nil), r.set.Roots...)
}

func (r *Resolver) storeSet(set domain.WorkspaceSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set = set
}
