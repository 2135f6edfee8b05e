// Package repositories implements SQLite persistence for the track catalog and the sync ledger.
//
// Key Implementations:
//   - [CatalogRepository] : append-only track catalog keyed by identity key
//   - [SyncStateRepository] : per-file content hashes and the last sync time
//   - [SyncStore] : commits catalog additions and ledger updates in one transaction
//
// Catalog rows carry an autoincrement sequence that preserves insertion order independent of UUIDs.
// Inserts use INSERT OR IGNORE on the identity key, so an existing entry is never overwritten.
package repositories
