package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/harmoni/internal/models"
	"github.com/desertthunder/harmoni/internal/shared"
	tu "github.com/desertthunder/harmoni/internal/testing"
	"github.com/desertthunder/harmoni/internal/ui"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
)

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			fsys := afero.NewMemMapFs()
			dl := &tu.MockDownloader{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Fs:         fsys,
				Downloader: dl,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.fs != fsys {
				t.Error("expected fs to be set")
			}
			if runner.downloader != dl {
				t.Error("expected downloader to be set")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.input != os.Stdin {
				t.Error("expected input to default to os.Stdin")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
			if _, ok := runner.fs.(*afero.OsFs); !ok {
				t.Errorf("expected OS filesystem, got %T", runner.fs)
			}
			if runner.now == nil || runner.openBrowser == nil || runner.interactive == nil {
				t.Error("expected clock, browser and terminal check to be set")
			}
		})

		t.Run("cfg falls back to defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.cfg().Storage.Profile != "default" {
				t.Errorf("expected default profile, got %q", runner.cfg().Storage.Profile)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes sync status as indented JSON", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			status := &models.SyncStatus{
				LastSync:     &last,
				SyncedFiles:  2,
				CatalogSize:  41,
				PendingFiles: []string{"road trip.csv"},
			}
			if err := runner.writeJSON(status, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			for _, want := range []string{`"last_sync": "2026-03-01T12:00:00Z"`, `"catalog_size": 41`, `"road trip.csv"`} {
				if !strings.Contains(result, want) {
					t.Errorf("expected %s in %s", want, result)
				}
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes sync result as compact JSON", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			result := &models.SyncResult{
				NewFiles:  1,
				NewTracks: 3,
				Errors: []models.FileError{
					{Filename: "broken.csv", Err: fmt.Errorf("%w: missing artist column", shared.ErrFileSync)},
				},
			}
			if err := runner.writeJSON(syncResultJSON(result), false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"errors":[{"filename":"broken.csv","error":"file sync failed: missing artist column"}],` +
				`"new_files":1,"new_tracks":3,"updated_files":0}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			// channels cannot be marshaled to JSON
			data := make(chan int)
			err := runner.writeJSON(data, false)

			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			failing := &tu.FWriter{}
			runner := NewRunner(RunnerOpts{Output: failing})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, false)

			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			data := map[string]string{"key": "value"}
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(data, false)

			if err == nil {
				t.Fatal("expected error writing newline")
			}
			if !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes a rendered sync result", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			err := runner.writePlain("%s", ui.SyncResult(&models.SyncResult{NewFiles: 2, NewTracks: 5}))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			for _, want := range []string{"Sync complete", "New tracks"} {
				if !strings.Contains(output.String(), want) {
					t.Errorf("expected %q in %q", want, output.String())
				}
			}
		})

		t.Run("writes text without format verbs", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("Sync state cleared"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "Sync state cleared" {
				t.Errorf("expected 'Sync state cleared', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			failing := &tu.FWriter{}
			runner := NewRunner(RunnerOpts{Output: failing})

			err := runner.writePlain("test")

			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("writePlainln", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlainln("Next %s:", "steps"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if output.String() != "\nNext steps:\n" {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}
		for _, want := range []string{"init", "spotify", "sync", "library"} {
			if !names[want] {
				t.Errorf("expected %q command", want)
			}
		}
	})

	t.Run("before", func(t *testing.T) {
		t.Run("loads config from flag", func(t *testing.T) {
			path := t.TempDir() + "/custom.toml"
			config := shared.DefaultConfig()
			config.Storage.Profile = "work"
			if err := shared.SaveConfig(path, config); err != nil {
				t.Fatalf("SaveConfig failed: %v", err)
			}

			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
			app := &cli.Command{
				Name:   "harmoni",
				Flags:  rootFlags(),
				Before: runner.before,
				Action: func(context.Context, *cli.Command) error { return nil },
			}
			if err := app.Run(context.Background(), []string{"harmoni", "--config", path}); err != nil {
				t.Fatalf("Run failed: %v", err)
			}

			if runner.configPath != path {
				t.Errorf("expected config path %q, got %q", path, runner.configPath)
			}
			if runner.cfg().Storage.Profile != "work" {
				t.Errorf("expected profile from file, got %q", runner.cfg().Storage.Profile)
			}
		})

		t.Run("invalid config is an error", func(t *testing.T) {
			path := t.TempDir() + "/bad.toml"
			if err := os.WriteFile(path, []byte("[spotify\n"), 0o644); err != nil {
				t.Fatalf("write failed: %v", err)
			}

			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
			app := &cli.Command{Name: "harmoni", Flags: rootFlags(), Before: runner.before}
			if err := app.Run(context.Background(), []string{"harmoni", "-c", path}); err == nil {
				t.Error("expected error for malformed config")
			}
		})
	})
}
