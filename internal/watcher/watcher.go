// Package watcher observes the corpus directory and turns bursts of file
// system events into single resynchronization requests.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceWindow is how long the watcher waits after the last event
// before raising a resync request.
const DefaultDebounceWindow = 500 * time.Millisecond

// Watcher observes a directory tree recursively. Create, write, remove, and
// rename events are debounced: a burst of events within the window collapses
// into one request on Requests(). Event-layer filtering is deliberately
// coarse (no extension checks); the corpus scanner decides eligibility
// during the resync pass itself.
type Watcher struct {
	dir      string
	window   time.Duration
	fsw      *fsnotify.Watcher
	requests chan struct{}
	log      *slog.Logger
}

// Options configures New. Zero-value fields get defaults.
type Options struct {
	// DebounceWindow defaults to DefaultDebounceWindow.
	DebounceWindow time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// New creates a watcher over dir and registers the existing directory tree.
func New(dir string, opts Options) (*Watcher, error) {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	w := &Watcher{
		dir:      dir,
		window:   opts.DebounceWindow,
		fsw:      fsw,
		requests: make(chan struct{}, 1),
		log:      opts.Logger,
	}
	if err := w.addRecursive(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Requests returns the resync request channel. The channel has capacity one;
// requests raised while a previous one is still unconsumed coalesce into it.
func (w *Watcher) Requests() <-chan struct{} {
	return w.requests
}

// Run processes events until ctx is cancelled. It owns the debounce timer:
// each qualifying event re-arms it, and expiry raises one request.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(w.window)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !qualifies(event) {
				continue
			}
			w.log.Debug("file event", "op", event.Op.String(), "path", event.Name)

			// New directories must be registered before files appear
			// inside them, or those files go unseen.
			if event.Op.Has(fsnotify.Create) {
				if err := w.addRecursive(event.Name); err != nil {
					w.log.Debug("watch new path", "path", event.Name, "error", err)
				}
			}

			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.window)
			armed = true

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "error", err)

		case <-timer.C:
			armed = false
			select {
			case w.requests <- struct{}{}:
				w.log.Info("corpus changed, resync requested")
			default:
				// A request is already pending; this burst rides along.
			}
		}
	}
}

// Close releases the underlying file system watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// addRecursive registers path and, if it is a directory, every directory
// below it. A non-directory path is ignored; files are covered by their
// parent directory's watch.
func (w *Watcher) addRecursive(path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// The path may already be gone again; treat it as unwatched.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// qualifies reports whether an event should trigger resynchronization.
// Chmod-only events carry no content change and are dropped.
func qualifies(event fsnotify.Event) bool {
	return event.Op.Has(fsnotify.Create) ||
		event.Op.Has(fsnotify.Write) ||
		event.Op.Has(fsnotify.Remove) ||
		event.Op.Has(fsnotify.Rename)
}
