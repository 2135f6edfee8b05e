package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/harmoni/internal/models"
	"github.com/desertthunder/harmoni/internal/shared"
	"github.com/desertthunder/harmoni/internal/tasks"
	"github.com/desertthunder/harmoni/internal/ui"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
)

func (r *Runner) syncDir(cmd *cli.Command) string {
	if dir := cmd.String("dir"); dir != "" {
		return dir
	}
	return r.cfg().Sync.WatchDir
}

// newBar returns a progress bar on the runner's output, or nil when output is not a terminal.
func (r *Runner) newBar(total int, description, unit string) *progressbar.ProgressBar {
	if !r.progressEnabled() {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.output),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *Runner) progressEnabled() bool {
	return r.interactive() && stdoutIsTerminal()
}

// drainProgress renders sync updates until progress is closed.
func (r *Runner) drainProgress(progress <-chan tasks.ProgressUpdate, done chan<- struct{}) {
	defer close(done)

	var bar *progressbar.ProgressBar
	for update := range progress {
		r.logger.Debug(update.Message, "phase", update.Phase.String())

		if update.Phase != tasks.ParseFile {
			continue
		}
		if bar == nil {
			bar = r.newBar(update.Total, "Parsing", "files")
		}
		if bar != nil {
			bar.Describe(update.Message)
			_ = bar.Set(update.Step)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
}

func (r *Runner) runSync(ctx context.Context, engine *tasks.SyncEngine, dir string) (*models.SyncResult, error) {
	progress := make(chan tasks.ProgressUpdate, 32)
	done := make(chan struct{})
	go r.drainProgress(progress, done)

	result, err := engine.RunSync(ctx, progress, dir)
	close(progress)
	<-done
	return result, err
}

// SyncRun ingests new and modified CSV files from the watch directory.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	engine, closeDB, err := r.syncEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	result, err := r.runSync(ctx, engine, r.syncDir(cmd))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(syncResultJSON(result), true)
	}
	return r.writePlain("%s", ui.SyncResult(result))
}

// SyncStatus reports the ledger and catalog state.
func (r *Runner) SyncStatus(ctx context.Context, cmd *cli.Command) error {
	engine, closeDB, err := r.syncEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	dir := r.syncDir(cmd)
	status, err := engine.Status(dir)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}
	return r.writePlain("%s", ui.SyncStatus(status, dir, r.now()))
}

// SyncClear forgets the synced-file ledger. The catalog is kept.
func (r *Runner) SyncClear(ctx context.Context, cmd *cli.Command) error {
	engine, closeDB, err := r.syncEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := engine.ClearState(); err != nil {
		return err
	}
	return r.writePlain("%s\n", ui.Success("Sync state cleared. All files will be re-read on the next run."))
}

// SyncWatch syncs on CSV changes and on an interval until interrupted.
func (r *Runner) SyncWatch(ctx context.Context, cmd *cli.Command) error {
	engine, closeDB, err := r.syncEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	interval := cmd.Duration("interval")
	if interval < 0 {
		interval = shared.Seconds(r.cfg().Sync.Interval)
	}

	dir := r.syncDir(cmd)
	r.writePlain("Watching %s (interval %s). Press Ctrl+C to stop.\n", dir, interval)

	return engine.Watch(ctx, dir, tasks.WatchOptions{
		Interval: interval,
		Debounce: cmd.Duration("debounce"),
		OnResult: func(result *models.SyncResult, err error) {
			if err != nil {
				r.writePlain("%s\n", ui.Error(err.Error()))
				return
			}
			if result.NewFiles+result.UpdatedFiles+len(result.Errors) > 0 {
				r.writePlain("%s", ui.SyncResult(result))
			}
		},
	})
}

// SyncExport writes the catalog to the given path or to sync.catalog_json.
func (r *Runner) SyncExport(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		path = r.cfg().Sync.CatalogJSON
	}
	if path == "" {
		return fmt.Errorf("%w: export path", shared.ErrMissingArgument)
	}

	engine, closeDB, err := r.syncEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	n, err := engine.Export(path)
	if err != nil {
		return err
	}
	return r.writePlain("%s\n", ui.Success(fmt.Sprintf("Wrote %d tracks to %s", n, path)))
}

type fileErrorJSON struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// syncResultJSON flattens per-file errors, whose error values do not marshal.
func syncResultJSON(r *models.SyncResult) map[string]any {
	errs := make([]fileErrorJSON, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, fileErrorJSON{Filename: e.Filename, Error: e.Err.Error()})
	}
	return map[string]any{
		"new_files":     r.NewFiles,
		"updated_files": r.UpdatedFiles,
		"new_tracks":    r.NewTracks,
		"errors":        errs,
	}
}
