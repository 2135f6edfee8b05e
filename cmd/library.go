package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/harmoni/internal/formatter"
	"github.com/desertthunder/harmoni/internal/library"
	"github.com/desertthunder/harmoni/internal/models"
	"github.com/desertthunder/harmoni/internal/shared"
	"github.com/desertthunder/harmoni/internal/ui"
	"github.com/urfave/cli/v3"
)

// libraryTracks loads tracks from --source, or from the catalog database.
func (r *Runner) libraryTracks(cmd *cli.Command) ([]models.TrackDescriptor, error) {
	if source := cmd.String("source"); source != "" {
		return formatter.ReadTracksFile(r.fs, source)
	}

	engine, closeDB, err := r.syncEngine()
	if err != nil {
		return nil, err
	}
	defer closeDB()
	return engine.Catalog()
}

func (r *Runner) libraryDir(cmd *cli.Command) string {
	dir := r.cfg().Library.OutputDir
	if playlist := cmd.String("playlist"); playlist != "" {
		return library.PlaylistDir(dir, playlist)
	}
	return dir
}

func (r *Runner) reconcile(cmd *cli.Command) (library.Reconciliation, string, error) {
	tracks, err := r.libraryTracks(cmd)
	if err != nil {
		return library.Reconciliation{}, "", err
	}

	dir := r.libraryDir(cmd)
	rec, err := library.ReconcileDir(r.fs, dir, tracks, r.logger)
	return rec, dir, err
}

// LibraryPending lists tracks that have no matching file in the output directory.
func (r *Runner) LibraryPending(ctx context.Context, cmd *cli.Command) error {
	rec, dir, err := r.reconcile(cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"dir":        dir,
			"downloaded": len(rec.Downloaded),
			"pending":    rec.Pending,
		}, true)
	}

	r.writePlain("%s\n", ui.Reconciliation(dir, len(rec.Downloaded), len(rec.Pending)))
	if len(rec.Pending) == 0 {
		return r.writePlain("%s\n", ui.Success("Everything is downloaded"))
	}
	return r.writePlain("%s", ui.TrackList("Pending", rec.Pending))
}

// LibraryDownload runs the downloader over pending tracks one at a time.
func (r *Runner) LibraryDownload(ctx context.Context, cmd *cli.Command) error {
	rec, dir, err := r.reconcile(cmd)
	if err != nil {
		return err
	}

	pending := rec.Pending
	if limit := int(cmd.Int("limit")); limit > 0 && limit < len(pending) {
		pending = pending[:limit]
	}
	if len(pending) == 0 {
		return r.writePlain("%s\n", ui.Success("Nothing to download"))
	}

	config := r.cfg().Library
	if cmd.Bool("dry-run") {
		cd, err := library.NewCommandDownloader(config.Downloader, config.AudioFormat, r.logger)
		if err != nil {
			return err
		}
		for _, t := range pending {
			r.writePlain("%s\n", strings.Join(cd.Args(t, dir), " "))
		}
		return nil
	}

	dl := r.downloader
	if dl == nil {
		if dl, err = library.NewCommandDownloader(config.Downloader, config.AudioFormat, r.logger); err != nil {
			return err
		}
	}

	bar := r.newBar(len(pending), "Downloading", "tracks")
	result, err := library.Batch(ctx, dl, pending, dir, library.BatchOptions{
		Sleep:  shared.Seconds(config.SleepBetween),
		Logger: r.logger,
		OnTrack: func(done, total int, track models.TrackDescriptor, _ error) {
			if bar != nil {
				bar.Describe(track.String())
				_ = bar.Set(done)
			}
		},
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if result != nil {
		r.writePlain("%s\n", ui.Success(fmt.Sprintf("Downloaded %d of %d tracks into %s", result.Downloaded, len(pending), dir)))
		for _, f := range result.Failures {
			r.writePlain("  %s\n", ui.Error(f.Track.String()+": "+f.Err.Error()))
		}
	}
	return err
}
