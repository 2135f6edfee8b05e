package tasks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/harmoni/internal/models"
	"github.com/desertthunder/harmoni/internal/shared"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for writes to settle before syncing.
const DefaultDebounce = 2 * time.Second

// WatchOptions configures [SyncEngine.Watch].
type WatchOptions struct {
	Interval time.Duration // periodic sync; zero disables the ticker
	Debounce time.Duration // zero uses DefaultDebounce
	Progress chan<- ProgressUpdate
	OnResult func(*models.SyncResult, error)
}

// Watch syncs dir once, then again whenever a CSV file in it is created, written or renamed,
// and on every interval tick. It blocks until ctx is done and returns nil on cancellation.
//
// The watched directory must be on the OS file system.
func (e *SyncEngine) Watch(ctx context.Context, dir string, opts WatchOptions) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	if err := e.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	run := func(reason string) {
		sendProgress(opts.Progress, watchUpdate(reason))
		result, err := e.RunSync(ctx, opts.Progress, dir)
		if errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			e.logger.Error("scheduled sync failed", "reason", reason, "error", err)
		}
		if opts.OnResult != nil {
			opts.OnResult(result, err)
		}
	}

	var tick <-chan time.Time
	if opts.Interval > 0 {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	debounce := time.NewTimer(opts.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	e.logger.Info("watching for exports", "dir", dir, "interval", opts.Interval)
	run("startup")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(ev) {
				continue
			}
			e.logger.Debug("file event", "op", ev.Op.String(), "file", filepath.Base(ev.Name))
			debounce.Reset(opts.Debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("watcher error", "error", err)
		case <-debounce.C:
			run("file change")
		case <-tick:
			run("interval")
		}
	}
}

func relevantEvent(ev fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Ext(ev.Name), ".csv") {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename)
}

// ScheduleSync runs a sync every interval until ctx is done, without watching the directory.
func (e *SyncEngine) ScheduleSync(ctx context.Context, dir string, interval time.Duration, onResult func(*models.SyncResult, error)) error {
	if interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", shared.ErrInvalidInput)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		result, err := e.RunSync(ctx, nil, dir)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if onResult != nil {
			onResult(result, err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}
