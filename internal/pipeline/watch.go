package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchOptions parameterizes Watch.
type WatchOptions struct {
	// Debounce is how long the tree must be quiet before a reindex fires.
	// Zero means defaultDebounce.
	Debounce   time.Duration
	OnProgress OnProgress
	// OnError receives errors from a failed incremental index or a watcher
	// fault; Watch keeps running after either.
	OnError func(error)
}

const defaultDebounce = 800 * time.Millisecond

// Watch recursively watches repoRoot and runs an incremental Index call
// each time the tree settles after a burst of changes, until ctx is
// cancelled. Generalized from the coalesce-then-flush shape of the
// teacher's change-detection pattern: edits are coalesced into a single
// pending flag rather than tracked per-path, since an incremental Index
// call re-derives exactly which files changed via the merkle snapshot.
func (o *Orchestrator) Watch(ctx context.Context, opts WatchOptions) error {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addRecursive(watcher, o.repoRoot); err != nil {
		return err
	}

	var timer *time.Timer
	pending := false
	flush := make(chan struct{}, 1)

	reset := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			select {
			case flush <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					_ = addRecursive(watcher, ev.Name)
				}
			}
			pending = true
			reset()

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if opts.OnError != nil {
				opts.OnError(watchErr)
			} else {
				slog.Warn("pipeline: watch error", "error", watchErr)
			}

		case <-flush:
			if !pending {
				continue
			}
			pending = false
			if _, err := o.Index(ctx, IndexOptions{Incremental: true, OnProgress: opts.OnProgress}); err != nil {
				if opts.OnError != nil {
					opts.OnError(err)
				} else {
					slog.Warn("pipeline: watch-triggered index failed", "error", err)
				}
			}
		}
	}
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort: a single unreadable subtree shouldn't abort the whole watch
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" || d.Name() == "node_modules" {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
