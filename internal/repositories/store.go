package repositories

import (
	"database/sql"
	"time"

	"github.com/desertthunder/harmoni/internal/models"
)

// SyncStore combines the catalog and ledger repositories behind the interface the sync engine uses.
type SyncStore struct {
	db      *sql.DB
	catalog *CatalogRepository
	state   *SyncStateRepository
}

// NewSyncStore creates a store over db. Migrations must already be applied.
func NewSyncStore(db *sql.DB) *SyncStore {
	return &SyncStore{
		db:      db,
		catalog: NewCatalogRepository(db),
		state:   NewSyncStateRepository(db),
	}
}

// LoadState returns the sync ledger.
func (s *SyncStore) LoadState() (*models.SyncState, error) {
	return s.state.Load()
}

// CatalogKeys returns the identity keys already catalogued.
func (s *SyncStore) CatalogKeys() (map[string]bool, error) {
	return s.catalog.Keys()
}

// Catalog returns every catalogued track in insertion order.
func (s *SyncStore) Catalog() ([]models.TrackDescriptor, error) {
	return s.catalog.List()
}

// CatalogSize returns the number of catalogued tracks.
func (s *SyncStore) CatalogSize() (int, error) {
	return s.catalog.Count()
}

// Commit appends new catalog entries, records the synced files and stamps lastSync atomically.
// It returns the number of catalog rows actually inserted.
func (s *SyncStore) Commit(entries []CatalogEntry, files []models.SyncedFile, lastSync time.Time) (int, error) {
	added := 0
	err := WithTx(s.db, func(tx *sql.Tx) error {
		n, err := appendEntries(tx, entries, lastSync)
		if err != nil {
			return err
		}
		added = n

		if err := upsertFiles(tx, files); err != nil {
			return err
		}
		return setLastSync(tx, lastSync)
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// ClearState resets the ledger so the next run re-ingests every file.
func (s *SyncStore) ClearState() error {
	return s.state.Clear()
}
