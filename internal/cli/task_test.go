package cli

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CardSorting/MarieCoder-sub006/internal/config"
	"github.com/CardSorting/MarieCoder-sub006/internal/session"
)

func TestTaskRun_RequiresContent(t *testing.T) {
	_, err := runCommand(t, "task", "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt, image, or file")
}

func TestTaskResume_RequiresID(t *testing.T) {
	_, err := runCommand(t, "task", "resume")
	assert.Error(t, err)
}

func TestNewControllerFromConfig_HostsTaskLifecycle(t *testing.T) {
	t.Setenv("MARIECODER_HOME", t.TempDir())
	ctx := context.Background()

	ctrl, err := newControllerFromConfig(config.Default(), &GlobalFlags{Quiet: true}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, ctrl.Initialize(ctx))

	taskID, err := ctrl.CreateTask(ctx, session.CreateParams{Prompt: "say hello"})
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	current, ok := ctrl.CurrentTaskID()
	require.True(t, ok)
	assert.Equal(t, taskID, current)

	history, err := ctrl.GetTaskHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, taskID, history[0].ID)

	require.NoError(t, ctrl.ClearCurrentTask(ctx))
	_, ok = ctrl.CurrentTaskID()
	assert.False(t, ok)
}

func TestHostTask_AbortFinishesImmediately(t *testing.T) {
	factory := &hostFactory{logger: zerolog.Nop()}

	task, err := factory.NewTask(context.Background(), session.TaskSpec{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "t1", task.ID())

	require.NoError(t, task.Abort(context.Background()))
	assert.True(t, task.State().AbortStreamDone.Load())
}
