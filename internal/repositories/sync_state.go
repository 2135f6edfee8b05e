package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/harmoni/internal/models"
)

// SyncStateRepository persists the per-file ledger and the last sync time.
type SyncStateRepository struct {
	db *sql.DB
}

// NewSyncStateRepository creates a new SyncStateRepository with the given database connection
func NewSyncStateRepository(db *sql.DB) *SyncStateRepository {
	return &SyncStateRepository{db: db}
}

// Load returns the full ledger. An empty database yields an empty state.
func (r *SyncStateRepository) Load() (*models.SyncState, error) {
	state := &models.SyncState{Files: map[string]models.SyncedFile{}}

	rows, err := r.db.Query(`SELECT filename, content_hash, synced_at FROM synced_files`)
	if err != nil {
		return nil, fmt.Errorf("failed to query synced files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f models.SyncedFile
		if err := rows.Scan(&f.Filename, &f.ContentHash, &f.SyncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan synced file: %w", err)
		}
		state.Files[f.Filename] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating synced files: %w", err)
	}
	rows.Close()

	var last sql.NullTime
	err = r.db.QueryRow(`SELECT last_sync FROM sync_meta WHERE id = 1`).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to read last sync: %w", err)
	}
	if last.Valid {
		t := last.Time
		state.LastSync = &t
	}

	return state, nil
}

// Clear forgets every synced file and the last sync time. The catalog is untouched.
func (r *SyncStateRepository) Clear() error {
	return WithTx(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM synced_files`); err != nil {
			return fmt.Errorf("failed to clear synced files: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO sync_meta (id, last_sync) VALUES (1, NULL) ON CONFLICT(id) DO UPDATE SET last_sync = NULL`); err != nil {
			return fmt.Errorf("failed to reset last sync: %w", err)
		}
		return nil
	})
}

func upsertFiles(ex execer, files []models.SyncedFile) error {
	query := `
		INSERT INTO synced_files (filename, content_hash, synced_at) VALUES (?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET content_hash = excluded.content_hash, synced_at = excluded.synced_at
	`
	for _, f := range files {
		if _, err := ex.Exec(query, f.Filename, f.ContentHash, f.SyncedAt); err != nil {
			return fmt.Errorf("failed to record synced file %s: %w", f.Filename, err)
		}
	}
	return nil
}

func setLastSync(ex execer, at time.Time) error {
	_, err := ex.Exec(`INSERT INTO sync_meta (id, last_sync) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET last_sync = excluded.last_sync`, at)
	if err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	return nil
}
