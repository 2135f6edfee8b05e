package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/harmoni/internal/models"
	"github.com/desertthunder/harmoni/internal/shared"
)

// CatalogEntry is a track plus the CSV file it was first read from.
type CatalogEntry struct {
	Track      models.TrackDescriptor
	SourceFile string
}

// CatalogRepository reads and appends catalog rows.
type CatalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository creates a new CatalogRepository with the given database connection
func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// List returns every catalogued track in insertion order.
func (r *CatalogRepository) List() ([]models.TrackDescriptor, error) {
	rows, err := r.db.Query(`SELECT artist, album, title, source_uri FROM catalog_tracks ORDER BY sequence`)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	tracks := []models.TrackDescriptor{}
	for rows.Next() {
		var t models.TrackDescriptor
		if err := rows.Scan(&t.Artist, &t.Album, &t.Title, &t.SourceURI); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		tracks = append(tracks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog: %w", err)
	}
	return tracks, nil
}

// Keys returns the set of identity keys already in the catalog.
func (r *CatalogRepository) Keys() (map[string]bool, error) {
	rows, err := r.db.Query(`SELECT identity_key FROM catalog_tracks`)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog keys: %w", err)
	}
	defer rows.Close()

	keys := map[string]bool{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan catalog key: %w", err)
		}
		keys[k] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog keys: %w", err)
	}
	return keys, nil
}

// Count returns the number of catalogued tracks.
func (r *CatalogRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM catalog_tracks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count catalog: %w", err)
	}
	return n, nil
}

// Append inserts entries whose identity key is not yet present and returns how many were added.
func (r *CatalogRepository) Append(entries []CatalogEntry, now time.Time) (int, error) {
	return appendEntries(r.db, entries, now)
}

func appendEntries(ex execer, entries []CatalogEntry, now time.Time) (int, error) {
	query := `
		INSERT OR IGNORE INTO catalog_tracks (id, identity_key, artist, album, title, source_uri, source_file, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	added := 0
	for _, e := range entries {
		if !e.Track.Valid() {
			continue
		}

		res, err := ex.Exec(query,
			shared.GenerateID(),
			e.Track.Key(),
			e.Track.Artist,
			e.Track.Album,
			e.Track.Title,
			e.Track.SourceURI,
			e.SourceFile,
			now,
		)
		if err != nil {
			return added, fmt.Errorf("failed to insert catalog track: %w", err)
		}

		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}
	return added, nil
}
