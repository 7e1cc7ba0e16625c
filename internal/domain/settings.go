// Package domain provides shared domain types for the MarieCoder session core.
package domain

// AutoApprovalSettings controls which tool actions the external approval
// engine may approve without asking the user. The session core only manages
// the Version field: it is bumped once per new task creation so the approval
// engine can invalidate stale cached decisions.
type AutoApprovalSettings struct {
	// Version increments monotonically on every task creation.
	Version int `json:"version"`

	// Enabled turns automatic approval on or off.
	Enabled bool `json:"enabled"`

	// MaxRequests caps consecutive auto-approved requests per task.
	MaxRequests int `json:"max_requests,omitempty"`
}

// DefaultAutoApprovalSettings returns the initial settings for a fresh
// install: approval disabled, version zero.
func DefaultAutoApprovalSettings() AutoApprovalSettings {
	return AutoApprovalSettings{MaxRequests: 20}
}
