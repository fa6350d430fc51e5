package devloop

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceInterval is the watcher's default quiet interval before
// coalescing a burst of filesystem events into one ProjectChanged
// signal, per §4.6.
const DebounceInterval = 300 * time.Millisecond

// ProjectChanged is emitted once per coalesced burst of filesystem
// events under the watched source tree.
type ProjectChanged struct {
	At time.Time
}

// Watcher wraps fsnotify with the debounce behavior §4.6 requires: a
// save-triggered editor write burst, or a git checkout touching many
// files, collapses into a single ProjectChanged emission rather than
// one reload per file.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	changed  chan ProjectChanged
}

// NewWatcher opens an fsnotify watch on root, recursively adding every
// subdirectory since fsnotify itself only watches one directory level.
func NewWatcher(root string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("open fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DebounceInterval
	}
	w := &Watcher{fsw: fsw, debounce: debounce, changed: make(chan ProjectChanged, 1)}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
		return nil
	})
}

// Changed returns the channel ProjectChanged events arrive on. Events
// are coalesced, so a slow consumer never backs up more than one
// pending reload.
func (w *Watcher) Changed() <-chan ProjectChanged { return w.changed }

// Run pumps raw fsnotify events into the debounced Changed channel
// until ctx is cancelled or the underlying watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Individual fsnotify errors don't interrupt watching;
			// the caller's reload status surfaces real failures.

		case _, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case t := <-pending:
			pending = nil
			select {
			case w.changed <- ProjectChanged{At: t}:
			default:
				// a reload is already queued; this burst coalesces into it
			}
		}
	}
}

func (w *Watcher) Close() error { return w.fsw.Close() }
