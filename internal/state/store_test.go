package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CardSorting/MarieCoder-sub006/internal/constants"
	mcerrors "github.com/CardSorting/MarieCoder-sub006/internal/errors"
)

// newTestStore creates a FileStore rooted in a temp directory.
func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestFileStore_GlobalRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, s.SetGlobal(ctx, "settings", payload{Name: "alpha", Count: 3}))

	var got payload
	require.NoError(t, s.GetGlobal(ctx, "settings", &got))
	assert.Equal(t, payload{Name: "alpha", Count: 3}, got)
}

func TestFileStore_GlobalKeyNotFound(t *testing.T) {
	s := newTestStore(t)

	var out string
	err := s.GetGlobal(context.Background(), "missing", &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, mcerrors.ErrKeyNotFound)
}

func TestFileStore_EmptyKeyRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var out string
	assert.ErrorIs(t, s.GetGlobal(ctx, "", &out), mcerrors.ErrEmptyValue)
	assert.ErrorIs(t, s.SetGlobal(ctx, "", "v"), mcerrors.ErrEmptyValue)
	assert.ErrorIs(t, s.GetScoped(ctx, "", "k", &out), mcerrors.ErrEmptyValue)
	assert.ErrorIs(t, s.SetScoped(ctx, "t1", "", "v"), mcerrors.ErrEmptyValue)
	assert.ErrorIs(t, s.DeleteScoped(ctx, ""), mcerrors.ErrEmptyValue)
}

func TestFileStore_ScopedRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetScoped(ctx, "task-1", "mode", "act"))
	require.NoError(t, s.SetScoped(ctx, "task-2", "mode", "plan"))

	var got string
	require.NoError(t, s.GetScoped(ctx, "task-1", "mode", &got))
	assert.Equal(t, "act", got)

	require.NoError(t, s.GetScoped(ctx, "task-2", "mode", &got))
	assert.Equal(t, "plan", got)
}

func TestFileStore_DeleteScopedRemovesAllKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetScoped(ctx, "task-1", "mode", "act"))
	require.NoError(t, s.DeleteScoped(ctx, "task-1"))

	var got string
	err := s.GetScoped(ctx, "task-1", "mode", &got)
	assert.ErrorIs(t, err, mcerrors.ErrKeyNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, s.DeleteScoped(ctx, "task-1"))
}

func TestFileStore_SetPreservesOtherKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetGlobal(ctx, "a", 1))
	require.NoError(t, s.SetGlobal(ctx, "b", 2))
	require.NoError(t, s.SetGlobal(ctx, "a", 10))

	var a, b int
	require.NoError(t, s.GetGlobal(ctx, "a", &a))
	require.NoError(t, s.GetGlobal(ctx, "b", &b))
	assert.Equal(t, 10, a)
	assert.Equal(t, 2, b)
}

func TestFileStore_ReInitializeGlobalMovesCorruptFileAside(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	statePath := filepath.Join(s.Home(), constants.GlobalStateFileName)
	require.NoError(t, os.WriteFile(statePath, []byte("{not json"), 0o600))

	var out string
	err := s.GetGlobal(ctx, "any", &out)
	require.ErrorIs(t, err, mcerrors.ErrPersistence)

	require.NoError(t, s.ReInitialize(ctx, ""))

	// Fresh store works again and the corrupt copy is kept on disk.
	err = s.GetGlobal(ctx, "any", &out)
	assert.ErrorIs(t, err, mcerrors.ErrKeyNotFound)

	matches, err := filepath.Glob(statePath + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestFileStore_ReInitializeScopedRecreatesTaskDir(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetScoped(ctx, "task-1", "mode", "act"))
	require.NoError(t, s.ReInitialize(ctx, "task-1"))

	var got string
	err := s.GetScoped(ctx, "task-1", "mode", &got)
	assert.ErrorIs(t, err, mcerrors.ErrKeyNotFound)

	// Writes still succeed after recovery.
	assert.NoError(t, s.SetScoped(ctx, "task-1", "mode", "plan"))
}

func TestFileStore_RespectsContextCancellation(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out string
	assert.ErrorIs(t, s.GetGlobal(ctx, "k", &out), context.Canceled)
	assert.ErrorIs(t, s.SetGlobal(ctx, "k", "v"), context.Canceled)
	assert.ErrorIs(t, s.ReInitialize(ctx, ""), context.Canceled)
}

func TestNewFileStore_CreatesHomeDirectory(t *testing.T) {
	home := filepath.Join(t.TempDir(), "nested", "home")
	s, err := NewFileStore(home)
	require.NoError(t, err)

	info, err := os.Stat(s.Home())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
