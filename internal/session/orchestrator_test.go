package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CardSorting/MarieCoder-sub006/internal/bus"
	"github.com/CardSorting/MarieCoder-sub006/internal/constants"
	"github.com/CardSorting/MarieCoder-sub006/internal/domain"
	mcerrors "github.com/CardSorting/MarieCoder-sub006/internal/errors"
	"github.com/CardSorting/MarieCoder-sub006/internal/state"
	"github.com/CardSorting/MarieCoder-sub006/internal/testutil"
	"github.com/CardSorting/MarieCoder-sub006/internal/workspace"
)

// fakeTask implements Task with controllable behavior.
type fakeTask struct {
	id       string
	state    TaskState
	abortErr error
	panics   bool

	mu         sync.Mutex
	abortCalls int
}

func (t *fakeTask) ID() string        { return t.id }
func (t *fakeTask) State() *TaskState { return &t.state }

func (t *fakeTask) Abort(_ context.Context) error {
	t.mu.Lock()
	t.abortCalls++
	t.mu.Unlock()
	if t.panics {
		panic("engine exploded")
	}
	return t.abortErr
}

func (t *fakeTask) abortCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.abortCalls
}

// fakeFactory records specs and produces fakeTasks.
type fakeFactory struct {
	mu       sync.Mutex
	specs    []TaskSpec
	tasks    []*fakeTask
	err      error
	onCreate func(*fakeTask)
}

func (f *fakeFactory) NewTask(_ context.Context, spec TaskSpec) (Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	task := &fakeTask{id: spec.TaskID}
	if f.onCreate != nil {
		f.onCreate(task)
	}
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	f.tasks = append(f.tasks, task)
	f.mu.Unlock()
	return task, nil
}

func (f *fakeFactory) created() []*fakeTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeTask(nil), f.tasks...)
}

func (f *fakeFactory) lastSpec() TaskSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.specs[len(f.specs)-1]
}

// noopPusher satisfies state.StatePusher.
type noopPusher struct{}

func (noopPusher) PostState(context.Context) error { return nil }

// eventLog records event types in delivery order.
type eventLog struct {
	mu    sync.Mutex
	types []bus.EventType
}

func (l *eventLog) watch(b *bus.Bus, types ...bus.EventType) {
	for _, t := range types {
		b.On(t, func(_ context.Context, e bus.Event) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.types = append(l.types, e.Type)
			return nil
		})
	}
}

func (l *eventLog) all() []bus.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bus.EventType(nil), l.types...)
}

type testRig struct {
	orch    *Orchestrator
	bus     *bus.Bus
	store   state.Store
	sync    *state.Synchronizer
	factory *fakeFactory
}

func newTestRig(t *testing.T, factory *fakeFactory, cancelWait time.Duration) *testRig {
	t.Helper()
	store, err := state.NewFileStore(t.TempDir())
	require.NoError(t, err)

	b := bus.New(zerolog.Nop())
	syn := state.NewSynchronizer(store, b, noopPusher{}, nil, zerolog.Nop(), nil, nil)
	resolver := workspace.NewResolver(nil, b, zerolog.Nop(), "/fallback")

	return &testRig{
		orch:    NewOrchestrator(factory, resolver, syn, store, b, zerolog.Nop(), nil, nil, cancelWait),
		bus:     b,
		store:   store,
		sync:    syn,
		factory: factory,
	}
}

func TestCreateTask_RejectsEmptyParams(t *testing.T) {
	rig := newTestRig(t, &fakeFactory{}, 0)

	_, err := rig.orch.CreateTask(context.Background(), CreateParams{})
	assert.ErrorIs(t, err, mcerrors.ErrEmptyValue)

	_, live := rig.orch.CurrentTaskID()
	assert.False(t, live)
}

func TestCreateTask_RequiresFactory(t *testing.T) {
	store, err := state.NewFileStore(t.TempDir())
	require.NoError(t, err)
	b := bus.New(zerolog.Nop())
	syn := state.NewSynchronizer(store, b, noopPusher{}, nil, zerolog.Nop(), nil, nil)
	resolver := workspace.NewResolver(nil, b, zerolog.Nop(), "")
	o := NewOrchestrator(nil, resolver, syn, store, b, zerolog.Nop(), nil, nil, 0)

	_, err = o.CreateTask(context.Background(), CreateParams{Prompt: "hi"})
	assert.ErrorIs(t, err, mcerrors.ErrTaskFactoryNotAvailable)
}

func TestCreateTask_FreshTask(t *testing.T) {
	factory := &fakeFactory{}
	rig := newTestRig(t, factory, 0)
	ctx := context.Background()

	log := &eventLog{}
	log.watch(rig.bus, bus.EventTaskCreated)

	taskID, err := rig.orch.CreateTask(ctx, CreateParams{Prompt: "fix the bug"})
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	current, live := rig.orch.CurrentTaskID()
	assert.True(t, live)
	assert.Equal(t, taskID, current)

	spec := factory.lastSpec()
	assert.Equal(t, "/fallback", spec.Cwd)
	assert.Equal(t, "act", spec.Settings.Mode)
	assert.NotNil(t, spec.Callbacks.PostState)

	history, err := rig.sync.GetTaskHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, taskID, history[0].ID)
	assert.Equal(t, "fix the bug", history[0].Description)

	assert.Equal(t, []bus.EventType{bus.EventTaskCreated}, log.all())
}

func TestCreateTask_ResumePreservesID(t *testing.T) {
	factory := &fakeFactory{}
	rig := newTestRig(t, factory, 0)

	item := domain.HistoryItem{ID: "resume-me", Description: "old work", Cwd: "/old"}
	taskID, err := rig.orch.CreateTask(context.Background(), CreateParams{HistoryItem: &item})
	require.NoError(t, err)
	assert.Equal(t, "resume-me", taskID)

	spec := factory.lastSpec()
	assert.Equal(t, "/old", spec.Cwd)
	assert.NotNil(t, spec.HistoryItem)
}

func TestCreateTask_ReplacesLiveTaskQuietly(t *testing.T) {
	factory := &fakeFactory{}
	rig := newTestRig(t, factory, 0)
	ctx := context.Background()

	log := &eventLog{}
	log.watch(rig.bus, bus.EventTaskCancelled)

	first, err := rig.orch.CreateTask(ctx, CreateParams{Prompt: "one"})
	require.NoError(t, err)
	require.NoError(t, rig.store.SetScoped(ctx, first, constants.KeyTaskSettings, domain.TaskSettings{Mode: "plan"}))

	second, err := rig.orch.CreateTask(ctx, CreateParams{Prompt: "two"})
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	tasks := factory.created()
	require.Len(t, tasks, 2)
	assert.Equal(t, 1, tasks[0].abortCount())
	assert.True(t, tasks[0].state.Abandoned.Load())

	// The replaced task's scoped settings are cleared along with it.
	var scoped domain.TaskSettings
	err = rig.store.GetScoped(ctx, first, constants.KeyTaskSettings, &scoped)
	assert.ErrorIs(t, err, mcerrors.ErrKeyNotFound)

	// Replacement is not a cancellation.
	assert.Empty(t, log.all())

	current, _ := rig.orch.CurrentTaskID()
	assert.Equal(t, second, current)
}

func TestCreateTask_BumpsAutoApprovalVersion(t *testing.T) {
	rig := newTestRig(t, &fakeFactory{}, 0)
	ctx := context.Background()

	_, err := rig.orch.CreateTask(ctx, CreateParams{Prompt: "one"})
	require.NoError(t, err)
	_, err = rig.orch.CreateTask(ctx, CreateParams{Prompt: "two"})
	require.NoError(t, err)

	var settings domain.AutoApprovalSettings
	require.NoError(t, rig.store.GetGlobal(ctx, constants.KeyAutoApprovalSettings, &settings))
	assert.Equal(t, 2, settings.Version)
}

func TestCancelTask_NoLiveTaskIsNoOp(t *testing.T) {
	rig := newTestRig(t, &fakeFactory{}, 0)

	log := &eventLog{}
	log.watch(rig.bus, bus.EventTaskCancelled)

	require.NoError(t, rig.orch.CancelTask(context.Background()))
	assert.Empty(t, log.all())
}

func TestCancelTask_RestartsWithSameID(t *testing.T) {
	factory := &fakeFactory{}
	rig := newTestRig(t, factory, 0)
	ctx := context.Background()

	taskID, err := rig.orch.CreateTask(ctx, CreateParams{Prompt: "work"})
	require.NoError(t, err)

	log := &eventLog{}
	log.watch(rig.bus, bus.EventTaskCancelled, bus.EventTaskCreated)

	require.NoError(t, rig.orch.CancelTask(ctx))

	// Cancellation is observed strictly before the restart.
	assert.Equal(t, []bus.EventType{bus.EventTaskCancelled, bus.EventTaskCreated}, log.all())

	current, live := rig.orch.CurrentTaskID()
	assert.True(t, live)
	assert.Equal(t, taskID, current)

	// A genuinely new task instance is live.
	tasks := factory.created()
	require.Len(t, tasks, 2)
	assert.True(t, tasks[0].state.Abandoned.Load())
	assert.False(t, tasks[1].state.Abandoned.Load())

	// The restart did not duplicate the history item.
	history, err := rig.sync.GetTaskHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCancelTask_BoundedWaitTimesOut(t *testing.T) {
	factory := &fakeFactory{onCreate: func(task *fakeTask) {
		// Simulate a stream that never settles.
		task.state.Streaming.Store(true)
	}}
	rig := newTestRig(t, factory, 150*time.Millisecond)
	ctx := context.Background()

	_, err := rig.orch.CreateTask(ctx, CreateParams{Prompt: "stuck"})
	require.NoError(t, err)

	var payload TaskCancelledPayload
	rig.bus.On(bus.EventTaskCancelled, func(_ context.Context, e bus.Event) error {
		payload = e.Payload.(TaskCancelledPayload)
		return nil
	})

	start := time.Now()
	require.NoError(t, rig.orch.CancelTask(ctx))

	assert.True(t, payload.TimedOut)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.True(t, factory.created()[0].state.Abandoned.Load())
}

func TestCancelTask_SettledTaskCancelsPromptly(t *testing.T) {
	factory := &fakeFactory{onCreate: func(task *fakeTask) {
		task.state.Streaming.Store(true)
		task.state.AwaitingFirstChunk.Store(true)
	}}
	rig := newTestRig(t, factory, constants.DefaultCancelWaitTimeout)
	ctx := context.Background()

	_, err := rig.orch.CreateTask(ctx, CreateParams{Prompt: "fresh"})
	require.NoError(t, err)

	var payload TaskCancelledPayload
	rig.bus.On(bus.EventTaskCancelled, func(_ context.Context, e bus.Event) error {
		payload = e.Payload.(TaskCancelledPayload)
		return nil
	})

	start := time.Now()
	require.NoError(t, rig.orch.CancelTask(ctx))
	assert.False(t, payload.TimedOut)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCancelTask_AbortPanicIsContained(t *testing.T) {
	factory := &fakeFactory{onCreate: func(task *fakeTask) {
		task.panics = true
	}}
	rig := newTestRig(t, factory, 0)
	ctx := context.Background()

	_, err := rig.orch.CreateTask(ctx, CreateParams{Prompt: "volatile"})
	require.NoError(t, err)

	require.NoError(t, rig.orch.CancelTask(ctx))

	_, live := rig.orch.CurrentTaskID()
	assert.True(t, live)
}

func TestCancelTask_AbortErrorIsSwallowed(t *testing.T) {
	factory := &fakeFactory{onCreate: func(task *fakeTask) {
		task.abortErr = testutil.ErrMockAbortFailed
	}}
	rig := newTestRig(t, factory, 0)
	ctx := context.Background()

	_, err := rig.orch.CreateTask(ctx, CreateParams{Prompt: "flaky"})
	require.NoError(t, err)
	assert.NoError(t, rig.orch.CancelTask(ctx))
}

func TestReinitTask_UnknownIDFails(t *testing.T) {
	rig := newTestRig(t, &fakeFactory{}, 0)

	log := &eventLog{}
	log.watch(rig.bus, bus.EventTaskReinitialize)

	err := rig.orch.ReinitTask(context.Background(), "ghost")
	assert.ErrorIs(t, err, mcerrors.ErrHistoryNotFound)

	// The announcement still fired before the lookup failed.
	assert.Equal(t, []bus.EventType{bus.EventTaskReinitialize}, log.all())
}

func TestReinitTask_RebuildsFromHistory(t *testing.T) {
	factory := &fakeFactory{}
	rig := newTestRig(t, factory, 0)
	ctx := context.Background()

	taskID, err := rig.orch.CreateTask(ctx, CreateParams{Prompt: "original"})
	require.NoError(t, err)

	require.NoError(t, rig.orch.ReinitTask(ctx, taskID))

	current, live := rig.orch.CurrentTaskID()
	assert.True(t, live)
	assert.Equal(t, taskID, current)
	assert.Len(t, factory.created(), 2)
}

func TestClearCurrentTask_DropsTaskAndScopedSettings(t *testing.T) {
	factory := &fakeFactory{}
	rig := newTestRig(t, factory, 0)
	ctx := context.Background()

	taskID, err := rig.orch.CreateTask(ctx, CreateParams{Prompt: "done soon"})
	require.NoError(t, err)
	require.NoError(t, rig.store.SetScoped(ctx, taskID, constants.KeyTaskSettings, domain.TaskSettings{Mode: "plan"}))

	require.NoError(t, rig.orch.ClearCurrentTask(ctx))

	_, live := rig.orch.CurrentTaskID()
	assert.False(t, live)
	assert.True(t, factory.created()[0].state.Abandoned.Load())

	var settings domain.TaskSettings
	err = rig.store.GetScoped(ctx, taskID, constants.KeyTaskSettings, &settings)
	assert.ErrorIs(t, err, mcerrors.ErrKeyNotFound)
}

func TestClearCurrentTask_NoTaskStillSyncs(t *testing.T) {
	rig := newTestRig(t, &fakeFactory{}, 0)

	log := &eventLog{}
	log.watch(rig.bus, bus.EventStateSynced)

	require.NoError(t, rig.orch.ClearCurrentTask(context.Background()))
	assert.Equal(t, []bus.EventType{bus.EventStateSynced}, log.all())
}

func seedHistory(t *testing.T, rig *testRig, n int) {
	t.Helper()
	items := make([]domain.HistoryItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, domain.HistoryItem{ID: uuidLike(i)})
	}
	require.NoError(t, rig.store.SetGlobal(context.Background(), constants.KeyTaskHistory, items))
}

func uuidLike(i int) string {
	return string(rune('a'+i%26)) + "-task"
}

func TestCreateTask_NewUserFlipAtThreshold(t *testing.T) {
	rig := newTestRig(t, &fakeFactory{}, 0)
	ctx := context.Background()
	seedHistory(t, rig, constants.NewUserTaskThreshold)

	var payload NewUserStatusPayload
	rig.bus.On(bus.EventTaskNewUserStatusChanged, func(_ context.Context, e bus.Event) error {
		payload = e.Payload.(NewUserStatusPayload)
		return nil
	})

	_, err := rig.orch.CreateTask(ctx, CreateParams{Prompt: "the eleventh task"})
	require.NoError(t, err)

	assert.False(t, payload.IsNewUser)
	assert.Equal(t, constants.NewUserTaskThreshold, payload.TaskCount)

	var isNewUser bool
	require.NoError(t, rig.store.GetGlobal(ctx, constants.KeyIsNewUser, &isNewUser))
	assert.False(t, isNewUser)
}

func TestCreateTask_NoFlipBelowThreshold(t *testing.T) {
	rig := newTestRig(t, &fakeFactory{}, 0)
	ctx := context.Background()
	seedHistory(t, rig, constants.NewUserTaskThreshold-1)

	log := &eventLog{}
	log.watch(rig.bus, bus.EventTaskNewUserStatusChanged)

	_, err := rig.orch.CreateTask(ctx, CreateParams{Prompt: "still new"})
	require.NoError(t, err)
	assert.Empty(t, log.all())
}

func TestCreateTask_NoFlipOnResume(t *testing.T) {
	rig := newTestRig(t, &fakeFactory{}, 0)
	ctx := context.Background()
	seedHistory(t, rig, constants.NewUserTaskThreshold+2)

	log := &eventLog{}
	log.watch(rig.bus, bus.EventTaskNewUserStatusChanged)

	item := domain.HistoryItem{ID: "a-task"}
	_, err := rig.orch.CreateTask(ctx, CreateParams{HistoryItem: &item})
	require.NoError(t, err)
	assert.Empty(t, log.all())
}

func TestCreateTask_NewUserFlipIsOneWay(t *testing.T) {
	rig := newTestRig(t, &fakeFactory{}, 0)
	ctx := context.Background()
	seedHistory(t, rig, constants.NewUserTaskThreshold)

	log := &eventLog{}
	log.watch(rig.bus, bus.EventTaskNewUserStatusChanged)

	_, err := rig.orch.CreateTask(ctx, CreateParams{Prompt: "flip"})
	require.NoError(t, err)
	_, err = rig.orch.CreateTask(ctx, CreateParams{Prompt: "no second flip"})
	require.NoError(t, err)

	assert.Len(t, log.all(), 1)
}

func TestCallbacks_StaleEpochIsIgnored(t *testing.T) {
	factory := &fakeFactory{}
	rig := newTestRig(t, factory, 0)
	ctx := context.Background()

	_, err := rig.orch.CreateTask(ctx, CreateParams{Prompt: "first"})
	require.NoError(t, err)
	staleCallbacks := factory.lastSpec().Callbacks

	second, err := rig.orch.CreateTask(ctx, CreateParams{Prompt: "second"})
	require.NoError(t, err)

	// The stale task's cancel callback must not touch the new task.
	require.NoError(t, staleCallbacks.CancelTask(ctx))
	current, live := rig.orch.CurrentTaskID()
	assert.True(t, live)
	assert.Equal(t, second, current)

	// Stale history updates are dropped.
	history, err := staleCallbacks.UpdateTaskHistory(ctx, domain.HistoryItem{ID: "stale"})
	require.NoError(t, err)
	assert.Nil(t, history)

	full, err := rig.sync.GetTaskHistory(ctx)
	require.NoError(t, err)
	for _, item := range full {
		assert.NotEqual(t, "stale", item.ID)
	}
}

func TestCallbacks_CurrentEpochWorks(t *testing.T) {
	factory := &fakeFactory{}
	rig := newTestRig(t, factory, 0)
	ctx := context.Background()

	taskID, err := rig.orch.CreateTask(ctx, CreateParams{Prompt: "live"})
	require.NoError(t, err)

	callbacks := factory.lastSpec().Callbacks
	history, err := callbacks.UpdateTaskHistory(ctx, domain.HistoryItem{ID: taskID, Description: "updated"})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "updated", history[0].Description)
}
