package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmoni/internal/models"
	"github.com/desertthunder/harmoni/internal/shared"
)

// Downloader fetches one track into outputDir.
type Downloader interface {
	Download(ctx context.Context, track models.TrackDescriptor, outputDir string) error
}

// CommandDownloader runs an external program once per track.
//
// Each argument may contain the placeholders {query} ("Artist - Title"), {output} (destination
// path without extension) and {format}.
type CommandDownloader struct {
	Command []string
	Format  string

	logger *log.Logger
	run    func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCommandDownloader creates a downloader for the given argv template.
func NewCommandDownloader(command []string, format string, logger *log.Logger) (*CommandDownloader, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, fmt.Errorf("%w: downloader command is empty", shared.ErrInvalidConfig)
	}
	return &CommandDownloader{
		Command: command,
		Format:  format,
		logger:  shared.WithLogger(logger, "component", "library"),
		run:     runCommand,
	}, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Args expands the command template for track.
func (d *CommandDownloader) Args(track models.TrackDescriptor, outputDir string) []string {
	r := strings.NewReplacer(
		"{query}", strings.TrimSpace(track.Artist)+separator+strings.TrimSpace(track.Title),
		"{output}", filepath.Join(outputDir, Stem(track)),
		"{format}", d.Format,
	)
	args := make([]string, len(d.Command))
	for i, a := range d.Command {
		args[i] = r.Replace(a)
	}
	return args
}

func (d *CommandDownloader) Download(ctx context.Context, track models.TrackDescriptor, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	args := d.Args(track, outputDir)
	d.logger.Debug("running downloader", "command", args[0], "track", track.String())

	out, err := d.run(ctx, args[0], args[1:]...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if msg := lastLine(out); msg != "" {
			return fmt.Errorf("%s: %w: %s", args[0], err, msg)
		}
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return nil
}

func lastLine(out []byte) string {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	return strings.TrimSpace(string(lines[len(lines)-1]))
}

// TrackFailure is a track the downloader could not fetch.
type TrackFailure struct {
	Track models.TrackDescriptor
	Err   error
}

// BatchResult summarizes a [Batch] run.
type BatchResult struct {
	Downloaded int
	Failures   []TrackFailure
}

// BatchOptions configures [Batch].
type BatchOptions struct {
	Sleep   time.Duration // pause between downloads
	Sleeper func(ctx context.Context, d time.Duration) error
	OnTrack func(done, total int, track models.TrackDescriptor, err error)
	Logger  *log.Logger
}

// Batch downloads tracks one at a time into outputDir, pausing between downloads.
//
// A failed track is recorded and the batch continues. Cancellation stops the batch and returns
// the partial result with the context error.
func Batch(ctx context.Context, dl Downloader, tracks []models.TrackDescriptor, outputDir string, opts BatchOptions) (*BatchResult, error) {
	logger := shared.WithLogger(opts.Logger, "component", "library")
	sleep := opts.Sleeper
	if sleep == nil {
		sleep = sleepContext
	}

	result := &BatchResult{}
	for i, track := range tracks {
		if i > 0 && opts.Sleep > 0 {
			if err := sleep(ctx, opts.Sleep); err != nil {
				return result, err
			}
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		err := dl.Download(ctx, track, outputDir)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return result, err
		case err != nil:
			logger.Error("download failed", "track", track.String(), "error", err)
			result.Failures = append(result.Failures, TrackFailure{Track: track, Err: err})
		default:
			logger.Info("downloaded", "track", track.String())
			result.Downloaded++
		}

		if opts.OnTrack != nil {
			opts.OnTrack(i+1, len(tracks), track, err)
		}
	}
	return result, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
