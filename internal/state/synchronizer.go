package state

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/CardSorting/MarieCoder-sub006/internal/bus"
	"github.com/CardSorting/MarieCoder-sub006/internal/clock"
	"github.com/CardSorting/MarieCoder-sub006/internal/constants"
	"github.com/CardSorting/MarieCoder-sub006/internal/ctxutil"
	"github.com/CardSorting/MarieCoder-sub006/internal/domain"
	mcerrors "github.com/CardSorting/MarieCoder-sub006/internal/errors"
	"github.com/CardSorting/MarieCoder-sub006/internal/metrics"
	"github.com/CardSorting/MarieCoder-sub006/internal/notify"
)

// StatePusher delivers the current session state to connected observers.
// The host (CLI, IDE bridge) provides the implementation.
type StatePusher interface {
	// PostState pushes a fresh state snapshot to all observers.
	PostState(ctx context.Context) error
}

// SyncedPayload is the payload of EventStateSynced.
type SyncedPayload struct {
	Timestamp time.Time
}

// PersistenceErrorPayload is the payload of EventStatePersistenceError.
type PersistenceErrorPayload struct {
	TaskID string
	Err    error
}

// RecoveryFailedPayload is the payload of EventStateRecoveryFailed.
type RecoveryFailedPayload struct {
	Err error
}

// HistoryUpdatedPayload is the payload of EventTaskHistoryUpdated.
type HistoryUpdatedPayload struct {
	Item          domain.HistoryItem
	HistoryLength int
}

// Synchronizer keeps persisted state, connected observers, and the event bus
// consistent. It owns the task history list and the single-shot recovery path
// for persistence failures.
type Synchronizer struct {
	store    Store
	bus      *bus.Bus
	pusher   StatePusher
	notifier notify.Sink
	logger   zerolog.Logger
	metrics  metrics.Recorder
	clock    clock.Clock

	// recovering guards against re-entrant recovery. A persistence error
	// raised while a recovery is already running (for example from the
	// re-push inside recover) is reported without another re-initialization,
	// so a persistently broken disk cannot loop. Each error outside a running
	// recovery gets its own single-shot attempt.
	recovering atomic.Bool
}

// NewSynchronizer creates a state synchronizer.
func NewSynchronizer(store Store, b *bus.Bus, pusher StatePusher, notifier notify.Sink, logger zerolog.Logger, rec metrics.Recorder, clk clock.Clock) *Synchronizer {
	if rec == nil {
		rec = metrics.Noop{}
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Synchronizer{
		store:    store,
		bus:      b,
		pusher:   pusher,
		notifier: notifier,
		logger:   logger.With().Str("component", "state").Logger(),
		metrics:  rec,
		clock:    clk,
	}
}

// SyncState pushes the current state to observers and announces the sync on
// the bus. Emit is awaited so listeners observe the sync before the caller
// proceeds.
func (s *Synchronizer) SyncState(ctx context.Context) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	if err := s.pusher.PostState(ctx); err != nil {
		return mcerrors.Wrap(err, "failed to push state to observers")
	}

	return s.bus.Emit(ctx, bus.EventStateSynced, SyncedPayload{Timestamp: s.clock.Now()})
}

// HandlePersistenceError reacts to a failed store write. The error is
// announced on the bus, then the store is re-initialized and state re-pushed,
// exactly once per error. An error raised while a recovery is already in
// flight skips recovery entirely. The outcome is surfaced to the user as a
// warning (recovered) or an error (recovery failed or in flight).
func (s *Synchronizer) HandlePersistenceError(ctx context.Context, taskID string, cause error) {
	s.logger.Error().
		Err(cause).
		Str("task_id", taskID).
		Msg("persistence failure")

	_ = s.bus.Emit(ctx, bus.EventStatePersistenceError, PersistenceErrorPayload{TaskID: taskID, Err: cause})

	if s.recovering.Swap(true) {
		s.logger.Warn().Str("task_id", taskID).Msg("recovery already running, not re-entering")
		s.notifyUser(ctx, notify.TypeError, "Failed to save settings. Please restart the application.")
		return
	}
	defer s.recovering.Store(false)

	if err := s.recover(ctx, taskID); err != nil {
		s.logger.Error().Err(err).Msg("state recovery failed")
		s.metrics.StateRecovery(false)
		_ = s.bus.Emit(ctx, bus.EventStateRecoveryFailed, RecoveryFailedPayload{Err: err})
		s.notifyUser(ctx, notify.TypeError, "Failed to save settings. Please restart the application.")
		return
	}

	s.logger.Info().Str("task_id", taskID).Msg("state recovery succeeded")
	s.metrics.StateRecovery(true)
	_ = s.bus.Emit(ctx, bus.EventStateRecoverySuccess, nil)
	s.notifyUser(ctx, notify.TypeWarning, "Your settings failed to save and were reset. Recent changes may be lost.")
}

// recover re-initializes the affected store and re-pushes state.
func (s *Synchronizer) recover(ctx context.Context, taskID string) error {
	if err := s.store.ReInitialize(ctx, taskID); err != nil {
		return mcerrors.Wrap(mcerrors.ErrStateRecoveryFailed, err.Error())
	}
	if err := s.pusher.PostState(ctx); err != nil {
		return mcerrors.Wrap(mcerrors.ErrStateRecoveryFailed, err.Error())
	}
	return nil
}

// UpdateTaskHistory inserts or replaces the history item with the same id and
// persists the full list. The updated list is returned even when persistence
// fails; the failure is routed through HandlePersistenceError so the session
// keeps working on the in-memory copy.
func (s *Synchronizer) UpdateTaskHistory(ctx context.Context, item domain.HistoryItem) ([]domain.HistoryItem, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	if item.ID == "" {
		return nil, mcerrors.Wrap(mcerrors.ErrEmptyValue, "history item id")
	}

	history, err := s.GetTaskHistory(ctx)
	if err != nil {
		// A corrupt history list is recoverable; start from empty.
		s.logger.Warn().Err(err).Msg("task history unreadable, starting fresh")
		history = nil
	}

	item.UpdatedAt = s.clock.Now()

	replaced := false
	for i := range history {
		if history[i].ID == item.ID {
			history[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		history = append(history, item)
	}

	if err := s.store.SetGlobal(ctx, constants.KeyTaskHistory, history); err != nil {
		s.HandlePersistenceError(ctx, item.ID, err)
	}

	s.metrics.HistoryLength(len(history))
	_ = s.bus.Emit(ctx, bus.EventTaskHistoryUpdated, HistoryUpdatedPayload{
		Item:          item,
		HistoryLength: len(history),
	})

	return history, nil
}

// GetTaskHistory returns the persisted task history list. A missing key
// yields an empty list.
func (s *Synchronizer) GetTaskHistory(ctx context.Context) ([]domain.HistoryItem, error) {
	var history []domain.HistoryItem
	if err := s.store.GetGlobal(ctx, constants.KeyTaskHistory, &history); err != nil {
		if errors.Is(err, mcerrors.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, mcerrors.Wrap(err, "failed to read task history")
	}
	return history, nil
}

// GetTaskWithID looks up one history item by id.
// Returns ErrHistoryNotFound when no item matches.
func (s *Synchronizer) GetTaskWithID(ctx context.Context, id string) (domain.HistoryItem, error) {
	history, err := s.GetTaskHistory(ctx)
	if err != nil {
		return domain.HistoryItem{}, err
	}

	for _, item := range history {
		if item.ID == id {
			return item, nil
		}
	}

	return domain.HistoryItem{}, mcerrors.Wrapf(mcerrors.ErrHistoryNotFound, "task '%s'", id)
}

// notifyUser forwards a message to the notification sink if one is wired.
func (s *Synchronizer) notifyUser(ctx context.Context, t notify.MessageType, text string) {
	if s.notifier == nil {
		return
	}
	s.notifier.ShowMessage(ctx, notify.Message{Type: t, Text: text})
}
