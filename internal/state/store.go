// Package state provides the persistent key-value store and state
// synchronization for the MarieCoder session core.
//
// This file implements the storage layer: a file-backed store with atomic
// writes and file locking for data integrity. Keys are either global
// (session-wide) or scoped to one task id.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/CardSorting/MarieCoder-sub006/internal/constants"
	"github.com/CardSorting/MarieCoder-sub006/internal/ctxutil"
	mcerrors "github.com/CardSorting/MarieCoder-sub006/internal/errors"
)

// Directory and file permission constants.
const (
	dirPerm  = 0o750 // Secure directory permissions
	filePerm = 0o600 // Secure file permissions
)

// Store defines the interface for persistent key-value operations.
// It is shared by the state synchronizer, the catalog refresher, and the
// task orchestrator (per-task settings).
type Store interface {
	// GetGlobal reads a global key into out.
	// Returns ErrKeyNotFound if the key does not exist.
	GetGlobal(ctx context.Context, key string, out any) error

	// SetGlobal writes a global key (atomic write).
	SetGlobal(ctx context.Context, key string, value any) error

	// GetScoped reads a key scoped to the given task id into out.
	// Returns ErrKeyNotFound if the key does not exist.
	GetScoped(ctx context.Context, taskID, key string, out any) error

	// SetScoped writes a key scoped to the given task id (atomic write).
	SetScoped(ctx context.Context, taskID, key string, value any) error

	// DeleteScoped removes all keys scoped to the given task id.
	// Removing an unknown task id is a no-op.
	DeleteScoped(ctx context.Context, taskID string) error

	// ReInitialize recovers from store corruption. With a task id the task's
	// scoped storage is moved aside and recreated fresh; with an empty id the
	// global store file is moved aside and recreated.
	ReInitialize(ctx context.Context, taskID string) error
}

// FileStore implements Store using JSON files under the application home
// directory. Global keys live in a single state file; task-scoped keys live
// in per-task settings files.
type FileStore struct {
	home string // Usually ~/.mariecoder
}

// Ensure FileStore implements Store.
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at home.
// If home is empty, uses the default ~/.mariecoder directory.
func NewFileStore(home string) (*FileStore, error) {
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		home = filepath.Join(userHome, constants.AppHome)
	}
	if err := os.MkdirAll(home, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{home: home}, nil
}

// Home returns the store's root directory.
func (s *FileStore) Home() string {
	return s.home
}

// GetGlobal reads a global key into out.
func (s *FileStore) GetGlobal(ctx context.Context, key string, out any) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	if key == "" {
		return fmt.Errorf("failed to get global key: key %w", mcerrors.ErrEmptyValue)
	}

	return s.getKey(ctx, s.globalStatePath(), key, out)
}

// SetGlobal writes a global key.
func (s *FileStore) SetGlobal(ctx context.Context, key string, value any) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	if key == "" {
		return fmt.Errorf("failed to set global key: key %w", mcerrors.ErrEmptyValue)
	}

	return s.setKey(ctx, s.globalStatePath(), key, value)
}

// GetScoped reads a task-scoped key into out.
func (s *FileStore) GetScoped(ctx context.Context, taskID, key string, out any) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	if taskID == "" {
		return fmt.Errorf("failed to get scoped key: task id %w", mcerrors.ErrEmptyValue)
	}
	if key == "" {
		return fmt.Errorf("failed to get scoped key: key %w", mcerrors.ErrEmptyValue)
	}

	return s.getKey(ctx, s.taskSettingsPath(taskID), key, out)
}

// SetScoped writes a task-scoped key.
func (s *FileStore) SetScoped(ctx context.Context, taskID, key string, value any) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	if taskID == "" {
		return fmt.Errorf("failed to set scoped key: task id %w", mcerrors.ErrEmptyValue)
	}
	if key == "" {
		return fmt.Errorf("failed to set scoped key: key %w", mcerrors.ErrEmptyValue)
	}

	if err := os.MkdirAll(s.taskDir(taskID), dirPerm); err != nil {
		return fmt.Errorf("failed to create task directory: %w: %w", mcerrors.ErrPersistence, err)
	}

	return s.setKey(ctx, s.taskSettingsPath(taskID), key, value)
}

// DeleteScoped removes a task's scoped storage directory.
func (s *FileStore) DeleteScoped(ctx context.Context, taskID string) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	if taskID == "" {
		return fmt.Errorf("failed to delete scoped keys: task id %w", mcerrors.ErrEmptyValue)
	}

	if err := os.RemoveAll(s.taskDir(taskID)); err != nil {
		return fmt.Errorf("failed to delete scoped keys for task '%s': %w: %w", taskID, mcerrors.ErrPersistence, err)
	}
	return nil
}

// ReInitialize moves the affected store file aside and recreates it fresh.
// The corrupt copy is kept on disk for post-mortem inspection.
func (s *FileStore) ReInitialize(ctx context.Context, taskID string) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	if taskID != "" {
		return s.reinitPath(s.taskDir(taskID), true)
	}
	return s.reinitPath(s.globalStatePath(), false)
}

// reinitPath renames path aside (if present) and recreates it empty.
func (s *FileStore) reinitPath(path string, isDir bool) error {
	if _, err := os.Stat(path); err == nil {
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().UnixNano())
		if err := os.Rename(path, aside); err != nil {
			return fmt.Errorf("failed to move corrupt store aside: %w: %w", mcerrors.ErrPersistence, err)
		}
	}

	if isDir {
		if err := os.MkdirAll(path, dirPerm); err != nil {
			return fmt.Errorf("failed to recreate store directory: %w: %w", mcerrors.ErrPersistence, err)
		}
		return nil
	}

	if err := atomicWrite(path, []byte("{}")); err != nil {
		return fmt.Errorf("failed to recreate store file: %w: %w", mcerrors.ErrPersistence, err)
	}
	return nil
}

// getKey reads one key from the JSON map file at path.
func (s *FileStore) getKey(ctx context.Context, path, key string, out any) error {
	lockFile, err := s.acquireLock(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to read key '%s': %w", key, err)
	}
	defer func() { _ = s.releaseLock(lockFile) }()

	entries, err := readMapFile(path)
	if err != nil {
		return fmt.Errorf("failed to read key '%s': %w: %w", key, mcerrors.ErrPersistence, err)
	}

	raw, ok := entries[key]
	if !ok {
		return fmt.Errorf("key '%s': %w", key, mcerrors.ErrKeyNotFound)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode key '%s': %w: %w", key, mcerrors.ErrPersistence, err)
	}
	return nil
}

// setKey writes one key into the JSON map file at path (read-modify-write
// under the file lock, atomic rename on write).
func (s *FileStore) setKey(ctx context.Context, path, key string, value any) error {
	lockFile, err := s.acquireLock(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to write key '%s': %w", key, err)
	}
	defer func() { _ = s.releaseLock(lockFile) }()

	entries, err := readMapFile(path)
	if err != nil {
		return fmt.Errorf("failed to write key '%s': %w: %w", key, mcerrors.ErrPersistence, err)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode key '%s': %w: %w", key, mcerrors.ErrPersistence, err)
	}
	entries[key] = raw

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store file: %w: %w", mcerrors.ErrPersistence, err)
	}

	if err := atomicWrite(path, data); err != nil {
		return fmt.Errorf("failed to write key '%s': %w: %w", key, mcerrors.ErrPersistence, err)
	}
	return nil
}

// readMapFile reads the JSON map at path. A missing file yields an empty map.
func readMapFile(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is constructed internally
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, err
	}

	entries := map[string]json.RawMessage{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("corrupted state file: %w", err)
	}
	return entries, nil
}

// Helper methods for path construction

// globalStatePath returns the path of the global state file.
func (s *FileStore) globalStatePath() string {
	return filepath.Join(s.home, constants.GlobalStateFileName)
}

// taskDir returns the scoped storage directory for a task.
func (s *FileStore) taskDir(taskID string) string {
	return filepath.Join(s.home, constants.TasksDir, taskID)
}

// taskSettingsPath returns the scoped settings file for a task.
func (s *FileStore) taskSettingsPath(taskID string) string {
	return filepath.Join(s.taskDir(taskID), constants.TaskSettingsFileName)
}

// acquireLock acquires an exclusive file lock next to the store file.
// It respects context cancellation during the lock acquisition retry loop.
func (s *FileStore) acquireLock(ctx context.Context, path string) (*os.File, error) {
	lockPath := path + ".lock"

	if err := os.MkdirAll(filepath.Dir(lockPath), dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, filePerm) //#nosec G302,G304 -- lock file needs write access, path is constructed internally
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	// Try to acquire lock with timeout
	deadline := time.Now().Add(constants.LockTimeout)
	for {
		// Check for context cancellation
		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		default:
		}

		// LOCK_EX = exclusive lock, LOCK_NB = non-blocking
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return f, nil
		}

		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("failed to acquire lock: %w", mcerrors.ErrLockTimeout)
		}

		// Wait a bit before retrying
		time.Sleep(50 * time.Millisecond)
	}
}

// releaseLock releases a file lock.
func (s *FileStore) releaseLock(f *os.File) error {
	if f == nil {
		return nil
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		// Still try to close the file
		_ = f.Close()
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return f.Close()
}

// atomicWrite writes data to a file atomically using write-then-rename.
func atomicWrite(path string, data []byte) error {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write data: %w", err)
	}

	// Sync to disk (ensure data is persisted before rename)
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}
