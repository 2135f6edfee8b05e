// Package tasks runs the long-lived operations behind the sync and library commands.
//
// # Sync Engine
//
// [SyncEngine] keeps a catalog of unique tracks built from a directory of Exportify CSV exports:
//
//  1. [SyncEngine.DetectChangedFiles] : hashes every *.csv file and compares it with the ledger
//  2. [SyncEngine.RunSync] : parses changed files, dedups tracks by identity key, and persists
//     catalog additions, ledger entries and the last sync time together
//  3. [SyncEngine.Status] : reports the last sync, ledger and catalog sizes, and pending files
//  4. [SyncEngine.ClearState] : forgets the ledger so every file is re-read on the next run
//  5. [SyncEngine.Watch] : runs a sync on file system events and on a fixed interval
//
// A file that fails to parse is reported in [models.SyncResult] and retried on the next run;
// the other files in the same run are unaffected.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
package tasks
