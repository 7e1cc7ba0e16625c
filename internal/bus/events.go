package bus

// The closed set of event types carried by the bus. Payload structs are
// defined next to the emitting component.
const (
	// EventWorkspaceInitialized fires after root detection resolves at least
	// one workspace root. Payload: workspace.InitializedPayload.
	EventWorkspaceInitialized EventType = "workspace.initialized"

	// EventWorkspaceChanged fires when roots are added or removed.
	// Payload: workspace.ChangedPayload.
	EventWorkspaceChanged EventType = "workspace.changed"

	// EventMarketplaceRefreshCompleted fires after a successful catalog
	// refresh. Payload: catalog.RefreshCompletedPayload.
	EventMarketplaceRefreshCompleted EventType = "mcp.marketplace.refresh_completed"

	// EventMarketplaceError fires when a catalog refresh fails.
	// Payload: catalog.ErrorPayload.
	EventMarketplaceError EventType = "mcp.marketplace.error"

	// EventStateSynced fires after session state is pushed to observers.
	// Payload: state.SyncedPayload.
	EventStateSynced EventType = "state.synced"

	// EventStatePersistenceError fires when a store write fails.
	// Payload: state.PersistenceErrorPayload.
	EventStatePersistenceError EventType = "state.persistence_error"

	// EventStateRecoverySuccess fires when single-shot recovery succeeds.
	// Payload: nil.
	EventStateRecoverySuccess EventType = "state.recovery_success"

	// EventStateRecoveryFailed fires when single-shot recovery fails.
	// Payload: state.RecoveryFailedPayload.
	EventStateRecoveryFailed EventType = "state.recovery_failed"

	// EventTaskCreated fires after a task is constructed and stored as the
	// active task. Payload: session.TaskCreatedPayload.
	EventTaskCreated EventType = "task.created"

	// EventTaskCancelled fires after a task's cancellation completes.
	// Payload: session.TaskCancelledPayload.
	EventTaskCancelled EventType = "task.cancelled"

	// EventTaskReinitialize fires when an external component forces a session
	// reload. Payload: session.TaskReinitializePayload.
	EventTaskReinitialize EventType = "task.reinitialize"

	// EventTaskHistoryUpdated fires after the task history list is rewritten.
	// Payload: state.HistoryUpdatedPayload.
	EventTaskHistoryUpdated EventType = "task.history_updated"

	// EventTaskNewUserStatusChanged fires on the one-way new-user flip.
	// Payload: session.NewUserStatusPayload.
	EventTaskNewUserStatusChanged EventType = "task.new_user_status_changed"
)
