package tasks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmoni/internal/formatter"
	"github.com/desertthunder/harmoni/internal/models"
	"github.com/desertthunder/harmoni/internal/repositories"
	"github.com/desertthunder/harmoni/internal/shared"
	"github.com/spf13/afero"
)

// Store is the persistence the engine needs. [repositories.SyncStore] implements it.
type Store interface {
	LoadState() (*models.SyncState, error)
	CatalogKeys() (map[string]bool, error)
	Catalog() ([]models.TrackDescriptor, error)
	CatalogSize() (int, error)
	Commit(entries []repositories.CatalogEntry, files []models.SyncedFile, lastSync time.Time) (int, error)
	ClearState() error
}

// Parser turns one CSV file into descriptors, skipping rows without artist or title.
type Parser func(fsys afero.Fs, path string) ([]models.TrackDescriptor, error)

// SyncEngine ingests a directory of Exportify CSV exports into the catalog.
//
// Runs are read-modify-write against the store with no cross-process locking;
// concurrent runs against one database are unsupported.
type SyncEngine struct {
	fs         afero.Fs
	store      Store
	parse      Parser
	now        func() time.Time
	exportPath string
	logger     *log.Logger
}

// Option configures a [SyncEngine].
type Option func(*SyncEngine)

// WithParser replaces the Exportify parser.
func WithParser(p Parser) Option {
	return func(e *SyncEngine) { e.parse = p }
}

// WithClock replaces the time source used for ledger timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *SyncEngine) { e.now = now }
}

// WithCatalogExport writes the full catalog to path after every run that adds tracks.
func WithCatalogExport(path string) Option {
	return func(e *SyncEngine) { e.exportPath = path }
}

// NewSyncEngine creates an engine reading CSV files from fsys.
func NewSyncEngine(fsys afero.Fs, store Store, logger *log.Logger, opts ...Option) *SyncEngine {
	e := &SyncEngine{
		fs:     fsys,
		store:  store,
		parse:  formatter.ReadExportifyFile,
		now:    time.Now,
		logger: shared.WithLogger(logger, "component", "sync"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HashFile returns the hex SHA-256 of the whole file.
func HashFile(fsys afero.Fs, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// csvFiles lists *.csv files directly inside dir, sorted by name. A missing dir yields nothing.
func (e *SyncEngine) csvFiles(dir string) ([]string, bool, error) {
	entries, err := afero.ReadDir(e.fs, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: reading %s: %v", shared.ErrFileSync, dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, true, nil
}

// detect hashes every CSV file and compares against state. Files that cannot be hashed are
// reported separately.
func (e *SyncEngine) detect(dir string, state *models.SyncState) ([]models.ChangedFile, []models.FileError, bool, error) {
	names, exists, err := e.csvFiles(dir)
	if err != nil || !exists {
		return nil, nil, exists, err
	}

	changed := []models.ChangedFile{}
	var failures []models.FileError
	for _, name := range names {
		hash, err := HashFile(e.fs, filepath.Join(dir, name))
		if err != nil {
			failures = append(failures, models.FileError{Filename: name, Err: fmt.Errorf("%w: hashing: %v", shared.ErrFileSync, err)})
			continue
		}

		prev, known := state.Files[name]
		if known && prev.ContentHash == hash {
			continue
		}
		changed = append(changed, models.ChangedFile{Filename: name, ContentHash: hash, IsNew: !known})
	}
	return changed, failures, true, nil
}

// DetectChangedFiles returns CSV files whose hash is absent from or differs from the ledger.
// An empty or missing directory yields an empty list.
func (e *SyncEngine) DetectChangedFiles(dir string) ([]models.ChangedFile, error) {
	state, err := e.store.LoadState()
	if err != nil {
		return nil, err
	}

	changed, failures, _, err := e.detect(dir, state)
	if err != nil {
		return nil, err
	}
	for _, f := range failures {
		e.logger.Warn("skipping unreadable file", "file", f.Filename, "error", f.Err)
	}
	if changed == nil {
		changed = []models.ChangedFile{}
	}
	return changed, nil
}

// RunSync ingests every new or modified CSV file in dir.
//
// Each file is parsed independently; a failure is recorded in the result and the file's ledger
// entry is left untouched so it is retried next run. Tracks whose identity key is already
// catalogued are skipped. Catalog additions, ledger updates and the last sync time are then
// persisted in one transaction. Store failures are returned as errors; file failures are not.
func (e *SyncEngine) RunSync(ctx context.Context, progress chan<- ProgressUpdate, dir string) (*models.SyncResult, error) {
	result := &models.SyncResult{}

	state, err := e.store.LoadState()
	if err != nil {
		return nil, err
	}

	changed, failures, exists, err := e.detect(dir, state)
	if err != nil {
		return nil, err
	}
	if !exists {
		e.logger.Warn("watch directory not found", "dir", dir)
		result.Errors = append(result.Errors, models.FileError{
			Filename: dir,
			Err:      fmt.Errorf("%w: directory not found", shared.ErrFileSync),
		})
		return result, nil
	}
	result.Errors = append(result.Errors, failures...)

	sendProgress(progress, scanUpdate(dir, len(changed)))
	if len(changed) == 0 {
		e.logger.Info("no new or modified files to sync", "dir", dir)
		return result, nil
	}

	keys, err := e.store.CatalogKeys()
	if err != nil {
		return nil, err
	}

	var (
		entries []repositories.CatalogEntry
		synced  []models.SyncedFile
		stamp   = e.now().UTC()
	)

	for i, file := range changed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		step, total := i+1, len(changed)
		sendProgress(progress, parseUpdate(step, total, file.Filename))

		tracks, err := e.parse(e.fs, filepath.Join(dir, file.Filename))
		if err != nil {
			ferr := models.FileError{Filename: file.Filename, Err: fmt.Errorf("%w: %v", shared.ErrFileSync, err)}
			result.Errors = append(result.Errors, ferr)
			e.logger.Error("failed to sync file", "file", file.Filename, "error", err)
			sendProgress(progress, parseFailedUpdate(step, total, file.Filename, err))
			continue
		}

		added := 0
		for _, t := range tracks {
			if !t.Valid() || keys[t.Key()] {
				continue
			}
			keys[t.Key()] = true
			entries = append(entries, repositories.CatalogEntry{Track: t, SourceFile: file.Filename})
			added++
		}

		synced = append(synced, models.SyncedFile{Filename: file.Filename, ContentHash: file.ContentHash, SyncedAt: stamp})
		if file.IsNew {
			result.NewFiles++
		} else {
			result.UpdatedFiles++
		}

		e.logger.Info("synced file", "file", file.Filename, "tracks", len(tracks), "new", added)
		sendProgress(progress, parsedUpdate(step, total, file.Filename, added))
	}

	sendProgress(progress, persistUpdate(len(entries), len(synced)))
	inserted, err := e.store.Commit(entries, synced, stamp)
	if err != nil {
		return nil, err
	}
	result.NewTracks = inserted

	if e.exportPath != "" && inserted > 0 {
		if n, err := e.Export(e.exportPath); err != nil {
			result.Errors = append(result.Errors, models.FileError{Filename: e.exportPath, Err: err})
			e.logger.Error("failed to export catalog", "path", e.exportPath, "error", err)
		} else {
			sendProgress(progress, exportUpdate(e.exportPath, n))
		}
	}

	e.logger.Info("sync complete", "new_files", result.NewFiles, "updated_files", result.UpdatedFiles, "new_tracks", result.NewTracks, "errors", len(result.Errors))
	return result, nil
}

// ClearState forgets every synced file so the next run re-ingests the whole directory.
// The catalog is kept, so re-ingested tracks still dedup against it.
func (e *SyncEngine) ClearState() error {
	if err := e.store.ClearState(); err != nil {
		return err
	}
	e.logger.Info("sync state cleared, all files will be re-synced on next run")
	return nil
}

// Status reports the last sync time, ledger size, catalog size and files pending in dir.
func (e *SyncEngine) Status(dir string) (*models.SyncStatus, error) {
	state, err := e.store.LoadState()
	if err != nil {
		return nil, err
	}

	changed, _, _, err := e.detect(dir, state)
	if err != nil {
		return nil, err
	}

	size, err := e.store.CatalogSize()
	if err != nil {
		return nil, err
	}

	status := &models.SyncStatus{
		LastSync:     state.LastSync,
		SyncedFiles:  len(state.Files),
		CatalogSize:  size,
		PendingFiles: []string{},
	}
	for _, c := range changed {
		status.PendingFiles = append(status.PendingFiles, c.Filename)
	}
	return status, nil
}

// Catalog returns every catalogued track in insertion order.
func (e *SyncEngine) Catalog() ([]models.TrackDescriptor, error) {
	return e.store.Catalog()
}

// Export writes the catalog to path as JSON, or CSV for a .csv extension, and returns the track count.
func (e *SyncEngine) Export(path string) (int, error) {
	tracks, err := e.store.Catalog()
	if err != nil {
		return 0, err
	}
	if err := formatter.WriteCatalog(e.fs, path, tracks); err != nil {
		return 0, err
	}
	return len(tracks), nil
}
