// Package session owns the task lifecycle: creating, cancelling, and
// reinitializing tasks while enforcing the single-live-task invariant.
//
// The task engine itself is an external collaborator behind the Task and
// Factory interfaces; this package only manages its lifecycle.
package session

import (
	"context"
	"sync/atomic"

	"github.com/CardSorting/MarieCoder-sub006/internal/domain"
)

// TaskState carries the cooperative flags the orchestrator reads during
// cancellation. The task engine updates them; the orchestrator only reads
// them, except for Abandoned which the orchestrator sets.
type TaskState struct {
	// Streaming is true while the task is consuming a response stream.
	Streaming atomic.Bool

	// AbortStreamDone is set by the engine once its stream teardown finished.
	AbortStreamDone atomic.Bool

	// AwaitingFirstChunk is true between request start and the first streamed
	// chunk. A task in this window can be cancelled immediately.
	AwaitingFirstChunk atomic.Bool

	// Abandoned is set by the orchestrator when a cancellation gave up
	// waiting. An abandoned task must stop side effects as soon as it notices.
	Abandoned atomic.Bool
}

// Task is one live task instance provided by the task engine.
type Task interface {
	// ID returns the task's stable identifier.
	ID() string

	// State returns the task's cooperative lifecycle flags.
	State() *TaskState

	// Abort asks the task to stop. It should return promptly; slow teardown
	// continues in the background and is observed through State.
	Abort(ctx context.Context) error
}

// Callbacks are the orchestrator-provided functions a task uses to reach
// back into the session core. All callbacks are epoch-guarded: once a newer
// task exists they become no-ops.
type Callbacks struct {
	// UpdateTaskHistory inserts or replaces the task's history item.
	UpdateTaskHistory func(ctx context.Context, item domain.HistoryItem) ([]domain.HistoryItem, error)

	// PostState pushes fresh session state to observers.
	PostState func(ctx context.Context) error

	// ReinitExistingTask reloads the session around an existing task id.
	ReinitExistingTask func(ctx context.Context, taskID string) error

	// CancelTask cancels the calling task.
	CancelTask func(ctx context.Context) error
}

// TaskSpec is everything the task engine needs to construct a task.
type TaskSpec struct {
	// TaskID is the stable identifier, preserved across restarts.
	TaskID string

	// Cwd is the working directory the task runs in.
	Cwd string

	// Epoch is the creation epoch; callbacks from older epochs are ignored.
	Epoch uint64

	// Prompt is the free-text instruction. Empty on history resume.
	Prompt string

	// Images and Files are optional attachment paths.
	Images []string
	Files  []string

	// HistoryItem is set when resuming from history.
	HistoryItem *domain.HistoryItem

	// Settings are the merged per-task settings.
	Settings domain.TaskSettings

	// AutoApproval is the session's auto-approval policy at creation time.
	AutoApproval domain.AutoApprovalSettings

	// Callbacks reach back into the session core.
	Callbacks Callbacks
}

// Factory constructs tasks. The host wires the real task engine here.
type Factory interface {
	NewTask(ctx context.Context, spec TaskSpec) (Task, error)
}

// CreateParams are the caller-facing inputs to task creation. At least one
// of Prompt, Images, Files, or HistoryItem must be present.
type CreateParams struct {
	Prompt      string
	Images      []string
	Files       []string
	HistoryItem *domain.HistoryItem
}

// empty reports whether the params carry no content at all.
func (p CreateParams) empty() bool {
	return p.Prompt == "" && len(p.Images) == 0 && len(p.Files) == 0 && p.HistoryItem == nil
}

// TaskCreatedPayload is the payload of EventTaskCreated.
type TaskCreatedPayload struct {
	TaskID   string
	IsReinit bool
}

// TaskCancelledPayload is the payload of EventTaskCancelled.
type TaskCancelledPayload struct {
	TaskID   string
	TimedOut bool
}

// TaskReinitializePayload is the payload of EventTaskReinitialize.
type TaskReinitializePayload struct {
	TaskID string
}

// NewUserStatusPayload is the payload of EventTaskNewUserStatusChanged.
type NewUserStatusPayload struct {
	IsNewUser bool

	// TaskCount is the task-history length that triggered the flip.
	TaskCount int
}
