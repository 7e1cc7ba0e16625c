// Package constants provides shared constants for the MarieCoder session core.
//
// This package follows strict import rules:
//   - CAN import: standard library only
//   - MUST NOT import: any other internal packages
package constants

import "time"

// Directory and file layout under the application home directory (~/.mariecoder).
const (
	// AppHome is the name of the application home directory in $HOME.
	AppHome = ".mariecoder"

	// TasksDir holds per-task scoped state directories.
	TasksDir = "tasks"

	// LogsDir holds rotating application log files.
	LogsDir = "logs"

	// CLILogFileName is the name of the global rotating log file.
	CLILogFileName = "mariecoder.log"

	// GlobalStateFileName is the file backing the global key-value store.
	GlobalStateFileName = "state.json"

	// TaskSettingsFileName is the file backing a task's scoped key-value store.
	TaskSettingsFileName = "settings.json"
)

// Well-known keys in the persistent key-value store.
const (
	// KeyTaskHistory stores the ordered list of task history items.
	KeyTaskHistory = "taskHistory"

	// KeyMarketplaceCatalog caches the last successfully fetched catalog.
	KeyMarketplaceCatalog = "mcpMarketplaceCatalog"

	// KeyAutoApprovalSettings stores the versioned auto-approval settings.
	KeyAutoApprovalSettings = "autoApprovalSettings"

	// KeyIsNewUser stores the one-way new-user flag.
	KeyIsNewUser = "isNewUser"

	// KeyTaskSettings is the scoped key for per-task settings.
	KeyTaskSettings = "taskSettings"
)

// Task lifecycle tuning.
const (
	// NewUserTaskThreshold is the task-history length at which a user stops
	// being considered new. The transition is one-way and never reset.
	NewUserTaskThreshold = 10

	// DefaultCancelWaitTimeout bounds the cooperative wait for an aborting
	// task to settle before cancellation proceeds regardless.
	DefaultCancelWaitTimeout = 3 * time.Second

	// CancelWaitPollInterval is how often the aborting task's state flags are
	// re-checked during the bounded cancellation wait.
	CancelWaitPollInterval = 50 * time.Millisecond
)

// Marketplace catalog tuning.
const (
	// DefaultMarketplaceEndpoint is the catalog download URL.
	DefaultMarketplaceEndpoint = "https://api.cline.bot/v1/mcp/marketplace"

	// DefaultCatalogRequestTimeout aborts the underlying catalog request.
	DefaultCatalogRequestTimeout = 10 * time.Second
)

// Workspace watcher tuning.
const (
	// WatcherDebounceInterval coalesces rapid filesystem events into a single
	// workspace-change notification.
	WatcherDebounceInterval = 200 * time.Millisecond
)

// File store tuning.
const (
	// LockTimeout is the maximum duration to wait for acquiring a file lock.
	LockTimeout = 5 * time.Second
)

// Log rotation settings for the global log file.
const (
	LogMaxSizeMB  = 10
	LogMaxBackups = 3
	LogMaxAgeDays = 30
	LogCompress   = true
)
