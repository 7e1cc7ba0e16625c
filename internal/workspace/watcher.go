package workspace

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/CardSorting/MarieCoder-sub006/internal/constants"
	mcerrors "github.com/CardSorting/MarieCoder-sub006/internal/errors"
)

// Watcher observes the parents of the configured workspace roots and feeds
// root add/remove changes into the resolver. Filesystem events are debounced
// so a burst of changes produces a single re-detection.
type Watcher struct {
	resolver *Resolver
	logger   zerolog.Logger
	fw       *fsnotify.Watcher
	debounce time.Duration

	// roots maps the absolute path of each watched root to itself.
	roots map[string]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// NewWatcher creates a watcher for the given root paths. The parent directory
// of each root is watched so the root itself appearing or disappearing is
// observable.
func NewWatcher(resolver *Resolver, logger zerolog.Logger, paths []string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, mcerrors.Wrap(err, "failed to create filesystem watcher")
	}

	w := &Watcher{
		resolver: resolver,
		logger:   logger.With().Str("component", "workspace_watcher").Logger(),
		fw:       fw,
		debounce: constants.WatcherDebounceInterval,
		roots:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}

	parents := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			w.logger.Warn().Err(err).Str("path", p).Msg("skipping unwatchable path")
			continue
		}
		w.roots[abs] = struct{}{}
		parents[filepath.Dir(abs)] = struct{}{}
	}

	for parent := range parents {
		if err := fw.Add(parent); err != nil {
			w.logger.Warn().Err(err).Str("path", parent).Msg("failed to watch directory")
		}
	}

	return w, nil
}

// Run processes filesystem events until the context is cancelled or the
// watcher is closed. It always returns after cleanup; the error reports why
// the loop stopped.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.Close() }()

	var (
		pendingAdded   []string
		pendingRemoved []string
	)

	// The timer is created stopped and armed on the first relevant event.
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-w.done:
			return mcerrors.ErrWatcherClosed

		case event, ok := <-w.fw.Events:
			if !ok {
				return mcerrors.ErrWatcherClosed
			}

			if _, interesting := w.roots[event.Name]; !interesting {
				continue
			}

			switch {
			case event.Has(fsnotify.Create):
				pendingAdded = append(pendingAdded, event.Name)
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				pendingRemoved = append(pendingRemoved, event.Name)
			default:
				continue
			}

			// Restart the debounce window.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return mcerrors.ErrWatcherClosed
			}
			w.logger.Warn().Err(err).Msg("filesystem watcher error")

		case <-timer.C:
			added, removed := dedupe(pendingAdded), dedupe(pendingRemoved)
			pendingAdded, pendingRemoved = nil, nil

			if err := w.resolver.HandleWorkspaceChange(ctx, added, removed); err != nil {
				w.logger.Warn().Err(err).Msg("workspace change handling failed")
			}
		}
	}
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fw.Close()
	})
	return err
}

// dedupe removes duplicate paths while preserving first-seen order.
func dedupe(paths []string) []string {
	if len(paths) < 2 {
		return paths
	}
	seen := make(map[string]struct{}, len(paths))
	out := paths[:0]
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
