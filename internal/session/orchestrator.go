package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/CardSorting/MarieCoder-sub006/internal/bus"
	"github.com/CardSorting/MarieCoder-sub006/internal/clock"
	"github.com/CardSorting/MarieCoder-sub006/internal/constants"
	"github.com/CardSorting/MarieCoder-sub006/internal/ctxutil"
	"github.com/CardSorting/MarieCoder-sub006/internal/domain"
	mcerrors "github.com/CardSorting/MarieCoder-sub006/internal/errors"
	"github.com/CardSorting/MarieCoder-sub006/internal/metrics"
	"github.com/CardSorting/MarieCoder-sub006/internal/state"
	"github.com/CardSorting/MarieCoder-sub006/internal/workspace"
)

// Orchestrator manages the single live task slot. At most one task exists at
// a time; creating a new one tears the old one down first. Each creation
// advances the epoch, which invalidates callbacks held by older tasks.
type Orchestrator struct {
	factory  Factory
	resolver *workspace.Resolver
	sync     *state.Synchronizer
	store    state.Store
	bus      *bus.Bus
	logger   zerolog.Logger
	metrics  metrics.Recorder
	clock    clock.Clock

	// cancelWait bounds the cooperative wait during cancellation.
	cancelWait time.Duration

	mu    sync.Mutex
	task  Task
	epoch atomic.Uint64
}

// NewOrchestrator creates a task orchestrator. cancelWait bounds the
// cooperative cancellation wait; zero selects the default.
func NewOrchestrator(factory Factory, resolver *workspace.Resolver, syn *state.Synchronizer, store state.Store, b *bus.Bus, logger zerolog.Logger, rec metrics.Recorder, clk clock.Clock, cancelWait time.Duration) *Orchestrator {
	if rec == nil {
		rec = metrics.Noop{}
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if cancelWait <= 0 {
		cancelWait = constants.DefaultCancelWaitTimeout
	}
	return &Orchestrator{
		factory:    factory,
		resolver:   resolver,
		sync:       syn,
		store:      store,
		bus:        b,
		logger:     logger.With().Str("component", "session").Logger(),
		metrics:    rec,
		clock:      clk,
		cancelWait: cancelWait,
	}
}

// CreateTask builds a new task and installs it as the live task. Any
// previous task is torn down first without a cancellation announcement.
// Returns the new task's id.
func (o *Orchestrator) CreateTask(ctx context.Context, params CreateParams) (string, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return "", err
	}

	if o.factory == nil {
		return "", mcerrors.ErrTaskFactoryNotAvailable
	}
	if params.empty() {
		return "", mcerrors.Wrap(mcerrors.ErrEmptyValue, "task creation needs a prompt, attachments, or a history item")
	}

	// Tear down the previous task quietly: abort it and drop its scoped
	// settings. CreateTask replaces; only CancelTask announces a cancellation.
	if old := o.swapTask(nil); old != nil {
		o.teardown(ctx, old)
		if err := o.store.DeleteScoped(ctx, old.ID()); err != nil {
			o.logger.Warn().Err(err).Str("task_id", old.ID()).Msg("failed to drop scoped task settings")
		}
	}

	isReinit := params.HistoryItem != nil

	o.maybeFlipNewUser(ctx, isReinit)
	o.bumpAutoApprovalVersion(ctx)

	item := o.resolveHistoryItem(params)
	taskID := item.ID

	settings := o.loadTaskSettings(ctx, taskID)
	autoApproval := o.loadAutoApproval(ctx)

	epoch := o.epoch.Add(1)

	spec := TaskSpec{
		TaskID:       taskID,
		Cwd:          item.Cwd,
		Epoch:        epoch,
		Prompt:       params.Prompt,
		Images:       params.Images,
		Files:        params.Files,
		HistoryItem:  params.HistoryItem,
		Settings:     settings,
		AutoApproval: autoApproval,
		Callbacks:    o.callbacksFor(epoch),
	}

	task, err := o.factory.NewTask(ctx, spec)
	if err != nil {
		return "", mcerrors.Wrap(err, "failed to construct task")
	}
	o.setTask(task)

	if _, err := o.sync.UpdateTaskHistory(ctx, item); err != nil {
		o.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to record task in history")
	}

	o.metrics.TaskCreated(isReinit)
	o.logger.Info().
		Str("task_id", taskID).
		Bool("reinit", isReinit).
		Str("cwd", item.Cwd).
		Msg("task created")

	if err := o.bus.Emit(ctx, bus.EventTaskCreated, TaskCreatedPayload{TaskID: taskID, IsReinit: isReinit}); err != nil {
		return "", mcerrors.Wrap(err, "failed to announce task creation")
	}

	return taskID, nil
}

// CancelTask cancels the live task and restarts it from its history item so
// the conversation survives with the same task id. With no live task it is a
// no-op. Listeners observe task.cancelled strictly before task.created.
func (o *Orchestrator) CancelTask(ctx context.Context) error {
	task := o.currentTask()
	if task == nil {
		return nil
	}

	taskID := task.ID()

	item, err := o.sync.GetTaskWithID(ctx, taskID)
	if err != nil {
		if !errors.Is(err, mcerrors.ErrHistoryNotFound) {
			return mcerrors.Wrap(err, "failed to load history for cancellation")
		}
		// No history yet; restart from a bare item so the id survives.
		o.logger.Warn().Str("task_id", taskID).Msg("cancelling task with no history item")
		item = domain.HistoryItem{ID: taskID, CreatedAt: o.clock.Now()}
	}

	timedOut := o.teardown(ctx, task)
	o.clearTaskIf(task)

	o.metrics.TaskCancelled(timedOut)
	o.logger.Info().
		Str("task_id", taskID).
		Bool("timed_out", timedOut).
		Msg("task cancelled")

	if err := o.bus.Emit(ctx, bus.EventTaskCancelled, TaskCancelledPayload{TaskID: taskID, TimedOut: timedOut}); err != nil {
		return mcerrors.Wrap(err, "failed to announce task cancellation")
	}

	if _, err := o.CreateTask(ctx, CreateParams{HistoryItem: &item}); err != nil {
		return mcerrors.Wrap(err, "failed to restart task after cancellation")
	}
	return nil
}

// ReinitTask reloads the session around an existing task from history.
// The reinitialize announcement fires before the task is rebuilt.
func (o *Orchestrator) ReinitTask(ctx context.Context, taskID string) error {
	if taskID == "" {
		return mcerrors.Wrap(mcerrors.ErrEmptyValue, "task id")
	}

	if err := o.bus.Emit(ctx, bus.EventTaskReinitialize, TaskReinitializePayload{TaskID: taskID}); err != nil {
		return mcerrors.Wrap(err, "failed to announce task reinitialization")
	}

	item, err := o.sync.GetTaskWithID(ctx, taskID)
	if err != nil {
		return mcerrors.Wrapf(err, "cannot reinitialize task '%s'", taskID)
	}

	_, err = o.CreateTask(ctx, CreateParams{HistoryItem: &item})
	return err
}

// ClearCurrentTask tears the live task down without a replacement and drops
// its scoped settings. With no live task it only re-syncs state.
func (o *Orchestrator) ClearCurrentTask(ctx context.Context) error {
	if task := o.swapTask(nil); task != nil {
		taskID := task.ID()
		o.teardown(ctx, task)

		if err := o.store.DeleteScoped(ctx, taskID); err != nil {
			o.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to drop scoped task settings")
		}
		o.logger.Info().Str("task_id", taskID).Msg("task cleared")
	}

	return o.sync.SyncState(ctx)
}

// CurrentTaskID returns the live task's id, if any.
func (o *Orchestrator) CurrentTaskID() (string, bool) {
	if task := o.currentTask(); task != nil {
		return task.ID(), true
	}
	return "", false
}

// teardown aborts a task and waits, bounded, for it to settle. The task is
// marked abandoned afterwards regardless of outcome. Returns whether the
// wait timed out.
func (o *Orchestrator) teardown(ctx context.Context, task Task) bool {
	o.safeAbort(ctx, task)
	timedOut := o.waitForSettled(ctx, task)
	task.State().Abandoned.Store(true)
	return timedOut
}

// safeAbort calls Abort and contains both errors and panics; a broken task
// engine must not take the session down.
func (o *Orchestrator) safeAbort(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().
				Str("task_id", task.ID()).
				Interface("panic", r).
				Msg("task abort panicked")
		}
	}()

	if err := task.Abort(ctx); err != nil {
		o.logger.Warn().Err(err).Str("task_id", task.ID()).Msg("task abort failed")
	}
}

// waitForSettled polls the task's flags until it is safe to proceed or the
// bounded wait elapses. A task that never streamed, finished its stream
// teardown, or stopped streaming counts as settled.
func (o *Orchestrator) waitForSettled(ctx context.Context, task Task) bool {
	st := task.State()
	settled := func() bool {
		return st.AbortStreamDone.Load() || st.AwaitingFirstChunk.Load() || !st.Streaming.Load()
	}

	if settled() {
		return false
	}

	ticker := time.NewTicker(constants.CancelWaitPollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(o.cancelWait)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return true
		case <-deadline.C:
			o.logger.Warn().
				Err(mcerrors.ErrCancelWaitTimeout).
				Str("task_id", task.ID()).
				Dur("waited", o.cancelWait).
				Msg("abandoning task")
			return true
		case <-ticker.C:
			if settled() {
				return false
			}
		}
	}
}

// callbacksFor builds the epoch-guarded callbacks handed to a new task.
// Once a newer epoch exists the callbacks silently do nothing, so a stale
// task cannot disturb its successor.
func (o *Orchestrator) callbacksFor(epoch uint64) Callbacks {
	current := func() bool {
		if o.epoch.Load() != epoch {
			o.logger.Debug().Uint64("epoch", epoch).Msg("ignoring callback from stale task")
			return false
		}
		return true
	}

	return Callbacks{
		UpdateTaskHistory: func(ctx context.Context, item domain.HistoryItem) ([]domain.HistoryItem, error) {
			if !current() {
				return nil, nil
			}
			return o.sync.UpdateTaskHistory(ctx, item)
		},
		PostState: func(ctx context.Context) error {
			if !current() {
				return nil
			}
			return o.sync.SyncState(ctx)
		},
		ReinitExistingTask: func(ctx context.Context, taskID string) error {
			if !current() {
				return nil
			}
			return o.ReinitTask(ctx, taskID)
		},
		CancelTask: func(ctx context.Context) error {
			if !current() {
				return nil
			}
			return o.CancelTask(ctx)
		},
	}
}

// maybeFlipNewUser performs the one-way new-user transition once the history
// is long enough. Resumed tasks never trigger the flip.
func (o *Orchestrator) maybeFlipNewUser(ctx context.Context, isReinit bool) {
	if isReinit {
		return
	}

	isNewUser := true
	if err := o.store.GetGlobal(ctx, constants.KeyIsNewUser, &isNewUser); err != nil && !errors.Is(err, mcerrors.ErrKeyNotFound) {
		o.logger.Warn().Err(err).Msg("failed to read new-user flag")
		return
	}
	if !isNewUser {
		return
	}

	history, err := o.sync.GetTaskHistory(ctx)
	if err != nil || len(history) < constants.NewUserTaskThreshold {
		return
	}

	if err := o.store.SetGlobal(ctx, constants.KeyIsNewUser, false); err != nil {
		o.sync.HandlePersistenceError(ctx, "", err)
		return
	}

	o.logger.Info().Int("history_length", len(history)).Msg("user is no longer new")
	_ = o.bus.Emit(ctx, bus.EventTaskNewUserStatusChanged, NewUserStatusPayload{
		IsNewUser: false,
		TaskCount: len(history),
	})
}

// bumpAutoApprovalVersion increments the auto-approval settings version so
// the approval engine drops cached decisions from the previous task.
func (o *Orchestrator) bumpAutoApprovalVersion(ctx context.Context) {
	settings := domain.DefaultAutoApprovalSettings()
	if err := o.store.GetGlobal(ctx, constants.KeyAutoApprovalSettings, &settings); err != nil && !errors.Is(err, mcerrors.ErrKeyNotFound) {
		o.logger.Warn().Err(err).Msg("failed to read auto-approval settings")
	}

	settings.Version++

	if err := o.store.SetGlobal(ctx, constants.KeyAutoApprovalSettings, settings); err != nil {
		o.sync.HandlePersistenceError(ctx, "", err)
	}
}

// resolveHistoryItem produces the history item for a new task: the resumed
// item as-is, or a fresh one with a generated id and the resolved cwd.
func (o *Orchestrator) resolveHistoryItem(params CreateParams) domain.HistoryItem {
	if params.HistoryItem != nil {
		item := *params.HistoryItem
		if item.Cwd == "" {
			item.Cwd = o.resolver.GetCwd()
		}
		return item
	}

	return domain.HistoryItem{
		ID:          uuid.NewString(),
		Description: params.Prompt,
		Cwd:         o.resolver.GetCwd(),
		CreatedAt:   o.clock.Now(),
	}
}

// loadTaskSettings merges persisted scoped settings over the defaults.
func (o *Orchestrator) loadTaskSettings(ctx context.Context, taskID string) domain.TaskSettings {
	settings := domain.DefaultTaskSettings()

	var scoped domain.TaskSettings
	if err := o.store.GetScoped(ctx, taskID, constants.KeyTaskSettings, &scoped); err != nil {
		if !errors.Is(err, mcerrors.ErrKeyNotFound) {
			o.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to read scoped task settings")
		}
		return settings
	}

	return settings.Merge(scoped)
}

// loadAutoApproval reads the current auto-approval settings.
func (o *Orchestrator) loadAutoApproval(ctx context.Context) domain.AutoApprovalSettings {
	settings := domain.DefaultAutoApprovalSettings()
	if err := o.store.GetGlobal(ctx, constants.KeyAutoApprovalSettings, &settings); err != nil && !errors.Is(err, mcerrors.ErrKeyNotFound) {
		o.logger.Warn().Err(err).Msg("failed to read auto-approval settings")
	}
	return settings
}

// Slot helpers. The mutex only guards the task slot; lifecycle operations
// stay unlocked so CancelTask can recreate through CreateTask.

func (o *Orchestrator) currentTask() Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.task
}

func (o *Orchestrator) setTask(t Task) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.task = t
}

func (o *Orchestrator) swapTask(t Task) Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	old := o.task
	o.task = t
	return old
}

func (o *Orchestrator) clearTaskIf(t Task) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.task == t {
		o.task = nil
	}
}
