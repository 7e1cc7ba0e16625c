// Package domain provides shared domain types for the MarieCoder session core.
package domain

// WorkspaceRoot is a resolved filesystem root the session operates in.
//
// Example JSON representation:
//
//	{
//	    "path": "/home/dev/projects/api",
//	    "index": 0
//	}
type WorkspaceRoot struct {
	// Path is the absolute path of the root directory.
	Path string `json:"path"`

	// Index is the root's position within the workspace set.
	Index int `json:"index"`
}

// WorkspaceSet is the collection of resolved roots plus the index of the
// primary one. The set is rebuilt wholesale on every detection or
// reinitialization; it is never mutated incrementally. Consumers treat a
// WorkspaceSet as a read-only snapshot.
type WorkspaceSet struct {
	// Roots is the ordered list of resolved workspace roots.
	Roots []WorkspaceRoot `json:"roots"`

	// PrimaryIndex is the index into Roots of the primary root.
	// Invariant: always a valid index when Roots is non-empty.
	PrimaryIndex int `json:"primary_index"`
}

// Primary returns the primary root and true, or a zero root and false when
// the set is empty or the primary index is out of range.
func (s WorkspaceSet) Primary() (WorkspaceRoot, bool) {
	if len(s.Roots) == 0 || s.PrimaryIndex < 0 || s.PrimaryIndex >= len(s.Roots) {
		return WorkspaceRoot{}, false
	}
	return s.Roots[s.PrimaryIndex], true
}
