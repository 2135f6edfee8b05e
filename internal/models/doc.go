// Package models defines the domain records shared by the harmoni packages.
//
// The package contains three groups of types:
//
// 1. Track data produced by both the Spotify client and the CSV importer
//   - [TrackDescriptor] : artist, album, title and source URI of a single track
//
// 2. Credentials
//   - [TokenRecord] : a cached OAuth token with an absolute expiry
//
// 3. Sync bookkeeping
//   - [SyncState] : per-file content hashes and the last sync time
//   - [ChangedFile] : a file detected as new or modified
//   - [SyncResult] : counters and per-file errors of one sync run
//   - [SyncStatus] : a read-only summary for status reporting
package models
