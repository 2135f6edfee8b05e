package library

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/desertthunder/harmoni/internal/models"
	"github.com/desertthunder/harmoni/internal/shared"
	tu "github.com/desertthunder/harmoni/internal/testing"
)

var ytdlp = []string{"yt-dlp", "-x", "--audio-format", "{format}", "-o", "{output}.%(ext)s", "ytsearch1:{query}"}

func TestNewCommandDownloader(t *testing.T) {
	for _, cmd := range [][]string{nil, {}, {"  "}} {
		if _, err := NewCommandDownloader(cmd, "mp3", quietLogger()); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("NewCommandDownloader(%q) error = %v, want ErrInvalidConfig", cmd, err)
		}
	}
}

func TestCommandDownloader(t *testing.T) {
	t.Run("expands placeholders", func(t *testing.T) {
		d, err := NewCommandDownloader(ytdlp, "mp3", quietLogger())
		if err != nil {
			t.Fatalf("NewCommandDownloader failed: %v", err)
		}

		got := d.Args(track("AC/DC", "Thunderstruck"), "downloads")
		want := []string{
			"yt-dlp", "-x", "--audio-format", "mp3",
			"-o", filepath.Join("downloads", "AC-DC - Thunderstruck") + ".%(ext)s",
			"ytsearch1:AC/DC - Thunderstruck",
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Args() = %q, want %q", got, want)
		}
	})

	t.Run("runs command in output dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "out")
		d, _ := NewCommandDownloader(ytdlp, "opus", quietLogger())

		var name string
		var args []string
		d.run = func(_ context.Context, n string, a ...string) ([]byte, error) {
			name, args = n, a
			return []byte("ok"), nil
		}

		if err := d.Download(context.Background(), track("Air", "Sexy Boy"), dir); err != nil {
			t.Fatalf("Download failed: %v", err)
		}
		if name != "yt-dlp" || len(args) != len(ytdlp)-1 {
			t.Errorf("unexpected invocation %q %q", name, args)
		}
		tu.AssertDirExists(t, dir)
	})

	t.Run("failure includes last output line", func(t *testing.T) {
		d, _ := NewCommandDownloader(ytdlp, "mp3", quietLogger())
		exitErr := errors.New("exit status 1")
		d.run = func(context.Context, string, ...string) ([]byte, error) {
			return []byte("[youtube] searching\nERROR: no results\n"), exitErr
		}

		err := d.Download(context.Background(), track("Nobody", "Nothing"), t.TempDir())
		if !errors.Is(err, exitErr) {
			t.Fatalf("expected wrapped exit error, got %v", err)
		}
		if got := err.Error(); got != "yt-dlp: exit status 1: ERROR: no results" {
			t.Errorf("unexpected message %q", got)
		}
	})

	t.Run("real process", func(t *testing.T) {
		d, _ := NewCommandDownloader([]string{"sh", "-c", "exit 3"}, "mp3", quietLogger())
		if err := d.Download(context.Background(), track("A", "B"), t.TempDir()); err == nil {
			t.Error("expected error from failing command")
		}
	})
}

func TestBatch(t *testing.T) {
	tracks := []models.TrackDescriptor{
		track("Daft Punk", "One More Time"),
		track("M83", "Midnight City"),
		track("Air", "Sexy Boy"),
	}

	t.Run("continues past failures and sleeps between tracks", func(t *testing.T) {
		boom := errors.New("no results")
		dl := &tu.MockDownloader{FailOn: map[string]error{tracks[1].Key(): boom}}
		sleeper := &tu.Sleeper{}

		var seen []int
		result, err := Batch(context.Background(), dl, tracks, "downloads", BatchOptions{
			Sleep:   2 * time.Second,
			Sleeper: sleeper.Sleep,
			OnTrack: func(done, total int, _ models.TrackDescriptor, _ error) {
				if total != 3 {
					t.Errorf("total = %d", total)
				}
				seen = append(seen, done)
			},
			Logger: quietLogger(),
		})
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}

		if result.Downloaded != 2 {
			t.Errorf("expected 2 downloaded, got %d", result.Downloaded)
		}
		if len(result.Failures) != 1 || !errors.Is(result.Failures[0].Err, boom) {
			t.Errorf("unexpected failures: %+v", result.Failures)
		}
		if len(dl.Calls) != 3 {
			t.Errorf("expected 3 calls, got %d", len(dl.Calls))
		}
		if got := sleeper.Recorded(); len(got) != 2 || got[0] != 2*time.Second {
			t.Errorf("expected two 2s sleeps, got %v", got)
		}
		if !reflect.DeepEqual(seen, []int{1, 2, 3}) {
			t.Errorf("unexpected progress %v", seen)
		}
	})

	t.Run("cancellation stops the batch", func(t *testing.T) {
		dl := &tu.MockDownloader{}
		ctx, cancel := context.WithCancel(context.Background())

		result, err := Batch(ctx, dl, tracks, "downloads", BatchOptions{
			OnTrack: func(done, _ int, _ models.TrackDescriptor, _ error) {
				if done == 1 {
					cancel()
				}
			},
			Logger: quietLogger(),
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if result.Downloaded != 1 || len(dl.Calls) != 1 {
			t.Errorf("expected a single download, got %+v (%d calls)", result, len(dl.Calls))
		}
	})

	t.Run("empty list", func(t *testing.T) {
		result, err := Batch(context.Background(), &tu.MockDownloader{}, nil, "downloads", BatchOptions{Logger: quietLogger()})
		if err != nil || result.Downloaded != 0 || len(result.Failures) != 0 {
			t.Errorf("unexpected result %+v, %v", result, err)
		}
	})
}
