// Package domain provides shared domain types for the MarieCoder session core.
// These types are used across all internal packages to ensure consistent data structures.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, internal/errors, standard library
//   - MUST NOT import: any other internal packages
//
// All JSON field names use snake_case per architecture requirements.
package domain

import "time"

// HistoryItem is a persisted record summarizing one past or resumable task.
// Items live in an ordered collection ("task history") owned by the
// persistent state store. They are appended or replaced by id on every
// task-history update and never deleted by this core; retention and pruning
// are an external concern.
//
// Example JSON representation:
//
//	{
//	    "id": "9c1b8f1e-8a6e-4a4b-9f2a-0c6f7c1d2e3f",
//	    "description": "Fix null pointer in parseConfig",
//	    "cwd": "/home/dev/projects/api",
//	    "created_at": "2026-08-29T10:00:00Z"
//	}
type HistoryItem struct {
	// ID is the unique identifier of the task this item summarizes.
	ID string `json:"id"`

	// Description is the free-text prompt the task was created from.
	Description string `json:"description,omitempty"`

	// Cwd is the working directory the task ran in.
	Cwd string `json:"cwd,omitempty"`

	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when this history item was last rewritten.
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// TaskSettings holds per-task configuration persisted under the task's
// scoped store key. Settings are loaded and merged on task creation; missing
// fields keep their defaults.
type TaskSettings struct {
	// Model is the preferred model identifier for this task, if any.
	Model string `json:"model,omitempty"`

	// Mode selects the task's interaction mode (e.g. "act", "plan").
	Mode string `json:"mode,omitempty"`

	// ShellPath overrides the terminal shell used by the task.
	ShellPath string `json:"shell_path,omitempty"`
}

// DefaultTaskSettings returns the settings applied to tasks that have no
// persisted scoped settings yet.
func DefaultTaskSettings() TaskSettings {
	return TaskSettings{Mode: "act"}
}

// Merge overlays non-zero fields of other onto s and returns the result.
// Used when persisted per-task settings partially override defaults.
func (s TaskSettings) Merge(other TaskSettings) TaskSettings {
	if other.Model != "" {
		s.Model = other.Model
	}
	if other.Mode != "" {
		s.Mode = other.Mode
	}
	if other.ShellPath != "" {
		s.ShellPath = other.ShellPath
	}
	return s
}
