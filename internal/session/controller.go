package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/CardSorting/MarieCoder-sub006/internal/bus"
	"github.com/CardSorting/MarieCoder-sub006/internal/catalog"
	"github.com/CardSorting/MarieCoder-sub006/internal/clock"
	"github.com/CardSorting/MarieCoder-sub006/internal/domain"
	mcerrors "github.com/CardSorting/MarieCoder-sub006/internal/errors"
	"github.com/CardSorting/MarieCoder-sub006/internal/metrics"
	"github.com/CardSorting/MarieCoder-sub006/internal/notify"
	"github.com/CardSorting/MarieCoder-sub006/internal/state"
	"github.com/CardSorting/MarieCoder-sub006/internal/workspace"
)

// Deps are the collaborators and tuning knobs the controller is built from.
// Factory, Pusher, and Store are required; everything else has a default.
type Deps struct {
	// Factory constructs tasks. Required.
	Factory Factory

	// Pusher delivers state snapshots to observers. Required.
	Pusher state.StatePusher

	// Store is the persistent key-value store. Required.
	Store state.Store

	// Detector discovers workspace roots. Optional; without one the session
	// runs on the fallback working directory.
	Detector workspace.RootDetector

	// Notifier surfaces user-facing messages. Optional.
	Notifier notify.Sink

	// Metrics records lifecycle metrics. Optional; defaults to no-op.
	Metrics metrics.Recorder

	// Clock provides time. Optional; defaults to the system clock.
	Clock clock.Clock

	// Logger is the root logger for all components.
	Logger zerolog.Logger

	// MarketplaceEndpoint overrides the catalog URL. Optional.
	MarketplaceEndpoint string

	// CatalogTimeout bounds catalog requests. Optional.
	CatalogTimeout time.Duration

	// FallbackCwd is served when no workspace root resolves. Optional.
	FallbackCwd string

	// CancelWaitTimeout bounds the cooperative cancellation wait. Optional.
	CancelWaitTimeout time.Duration
}

// Controller is the composition root of the session core. It wires the event
// bus, state synchronizer, workspace resolver, catalog refresher, and task
// orchestrator together and exposes their operations as one surface.
type Controller struct {
	bus          *bus.Bus
	store        state.Store
	sync         *state.Synchronizer
	workspace    *workspace.Resolver
	catalog      *catalog.Refresher
	orchestrator *Orchestrator
	logger       zerolog.Logger
}

// NewController wires a session core from its dependencies.
func NewController(deps Deps) (*Controller, error) {
	if deps.Factory == nil {
		return nil, mcerrors.ErrTaskFactoryNotAvailable
	}
	if deps.Pusher == nil {
		return nil, mcerrors.Wrap(mcerrors.ErrEmptyValue, "state pusher")
	}
	if deps.Store == nil {
		return nil, mcerrors.Wrap(mcerrors.ErrEmptyValue, "store")
	}
	if deps.FallbackCwd == "" {
		deps.FallbackCwd = workspace.DefaultCwd()
	}

	logger := deps.Logger
	b := bus.New(logger)

	syn := state.NewSynchronizer(deps.Store, b, deps.Pusher, deps.Notifier, logger, deps.Metrics, deps.Clock)
	resolver := workspace.NewResolver(deps.Detector, b, logger, deps.FallbackCwd)
	refresher := catalog.NewRefresher(deps.MarketplaceEndpoint, deps.CatalogTimeout, deps.Store, b, deps.Notifier, logger, deps.Metrics, deps.Clock)
	orchestrator := NewOrchestrator(deps.Factory, resolver, syn, deps.Store, b, logger, deps.Metrics, deps.Clock, deps.CancelWaitTimeout)

	return &Controller{
		bus:          b,
		store:        deps.Store,
		sync:         syn,
		workspace:    resolver,
		catalog:      refresher,
		orchestrator: orchestrator,
		logger:       logger.With().Str("component", "controller").Logger(),
	}, nil
}

// Initialize prepares the session: workspace roots are resolved and the
// initial state pushed. Root detection failures degrade to a rootless
// session instead of failing initialization.
func (c *Controller) Initialize(ctx context.Context) error {
	if err := c.workspace.Initialize(ctx); err != nil {
		return mcerrors.Wrap(err, "failed to initialize workspace")
	}
	return c.sync.SyncState(ctx)
}

// Bus exposes the event bus for listener registration.
func (c *Controller) Bus() *bus.Bus {
	return c.bus
}

// CreateTask starts a new task. See Orchestrator.CreateTask.
func (c *Controller) CreateTask(ctx context.Context, params CreateParams) (string, error) {
	return c.orchestrator.CreateTask(ctx, params)
}

// CancelTask cancels and restarts the live task. See Orchestrator.CancelTask.
func (c *Controller) CancelTask(ctx context.Context) error {
	return c.orchestrator.CancelTask(ctx)
}

// ReinitTask reloads the session around an existing task id.
func (c *Controller) ReinitTask(ctx context.Context, taskID string) error {
	return c.orchestrator.ReinitTask(ctx, taskID)
}

// ClearCurrentTask tears down the live task without replacement.
func (c *Controller) ClearCurrentTask(ctx context.Context) error {
	return c.orchestrator.ClearCurrentTask(ctx)
}

// CurrentTaskID returns the live task's id, if any.
func (c *Controller) CurrentTaskID() (string, bool) {
	return c.orchestrator.CurrentTaskID()
}

// SyncState pushes the current state to observers.
func (c *Controller) SyncState(ctx context.Context) error {
	return c.sync.SyncState(ctx)
}

// UpdateTaskHistory inserts or replaces a task history item.
func (c *Controller) UpdateTaskHistory(ctx context.Context, item domain.HistoryItem) ([]domain.HistoryItem, error) {
	return c.sync.UpdateTaskHistory(ctx, item)
}

// GetTaskHistory returns the persisted task history.
func (c *Controller) GetTaskHistory(ctx context.Context) ([]domain.HistoryItem, error) {
	return c.sync.GetTaskHistory(ctx)
}

// FetchCatalog refreshes the marketplace catalog; failures are surfaced to
// the user unless silent and never returned.
func (c *Controller) FetchCatalog(ctx context.Context, silent bool) *domain.MarketplaceCatalog {
	return c.catalog.FetchCatalog(ctx, silent)
}

// FetchCatalogRPC refreshes the marketplace catalog, propagating failures.
func (c *Controller) FetchCatalogRPC(ctx context.Context, silent bool) (*domain.MarketplaceCatalog, error) {
	return c.catalog.FetchCatalogRPC(ctx, silent)
}

// SilentlyRefreshCatalog refreshes the catalog in the background and feeds
// channel subscribers.
func (c *Controller) SilentlyRefreshCatalog(ctx context.Context) {
	c.catalog.SilentlyRefresh(ctx)
}

// SubscribeCatalog returns a channel receiving silently refreshed catalogs.
func (c *Controller) SubscribeCatalog() <-chan domain.MarketplaceCatalog {
	return c.catalog.Subscribe()
}

// GetCwd returns the session's effective working directory.
func (c *Controller) GetCwd() string {
	return c.workspace.GetCwd()
}

// GetRoots returns the resolved workspace roots.
func (c *Controller) GetRoots() []domain.WorkspaceRoot {
	return c.workspace.GetRoots()
}

// HandleWorkspaceChange reacts to workspace roots being added or removed.
func (c *Controller) HandleWorkspaceChange(ctx context.Context, added, removed []string) error {
	return c.workspace.HandleWorkspaceChange(ctx, added, removed)
}

// Workspace exposes the resolver, e.g. for wiring a filesystem watcher.
func (c *Controller) Workspace() *workspace.Resolver {
	return c.workspace
}
