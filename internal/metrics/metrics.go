// Package metrics collects metrics about session lifecycle operations.
// Implementations can send these to monitoring systems; a Prometheus-backed
// recorder is provided alongside a no-op default.
package metrics

// Recorder collects metrics about task lifecycle and coordinator activity.
type Recorder interface {
	// TaskCreated is called after a task is constructed and stored as the
	// active task. reinit indicates a resume/recreate rather than fresh work.
	TaskCreated(reinit bool)

	// TaskCancelled is called after a task's cancellation completes.
	TaskCancelled(timedOut bool)

	// CatalogRefreshed is called after each catalog refresh attempt.
	CatalogRefreshed(success bool, itemCount int)

	// StateRecovery is called after each single-shot persistence recovery.
	StateRecovery(success bool)

	// HistoryLength reports the task-history length after an update.
	HistoryLength(n int)
}

// Noop is a no-op implementation of Recorder for default behavior.
// Use this when metrics collection is not needed.
type Noop struct{}

// Ensure Noop implements Recorder.
var _ Recorder = (*Noop)(nil)

// TaskCreated implements Recorder.
func (Noop) TaskCreated(bool) {}

// TaskCancelled implements Recorder.
func (Noop) TaskCancelled(bool) {}

// CatalogRefreshed implements Recorder.
func (Noop) CatalogRefreshed(bool, int) {}

// StateRecovery implements Recorder.
func (Noop) StateRecovery(bool) {}

// HistoryLength implements Recorder.
func (Noop) HistoryLength(int) {}
