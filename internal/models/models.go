package models

import (
	"strings"
	"time"

	"github.com/desertthunder/harmoni/internal/shared"
)

// TrackDescriptor identifies a track by artist and title. Album and SourceURI are optional.
type TrackDescriptor struct {
	Artist    string `json:"artist"`
	Album     string `json:"album,omitempty"`
	Title     string `json:"track"`
	SourceURI string `json:"uri,omitempty"`
}

// Key returns the case-insensitive identity key "artist|title".
func (t TrackDescriptor) Key() string {
	return shared.NormalizeTrackKey(t.Artist, t.Title)
}

// Valid reports whether both artist and title are present.
func (t TrackDescriptor) Valid() bool {
	return strings.TrimSpace(t.Artist) != "" && strings.TrimSpace(t.Title) != ""
}

func (t TrackDescriptor) String() string {
	return strings.TrimSpace(t.Artist) + " - " + strings.TrimSpace(t.Title)
}

// TokenRecord is a cached OAuth token. ExpiresAt is always an absolute instant.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope,omitempty"`
}

// Scopes splits the space separated scope string.
func (t TokenRecord) Scopes() []string {
	return strings.Fields(t.Scope)
}

// SyncedFile records the content hash of a successfully ingested file.
type SyncedFile struct {
	Filename    string    `json:"filename"`
	ContentHash string    `json:"content_hash"`
	SyncedAt    time.Time `json:"synced_at"`
}

// SyncState is the durable ledger of ingested files.
type SyncState struct {
	Files    map[string]SyncedFile `json:"synced_files"`
	LastSync *time.Time            `json:"last_sync,omitempty"`
}

// ChangedFile is a CSV file whose hash is absent from or differs from the ledger.
type ChangedFile struct {
	Filename    string `json:"filename"`
	ContentHash string `json:"content_hash"`
	IsNew       bool   `json:"is_new"`
}

// FileError is a per-file failure collected during a sync run.
type FileError struct {
	Filename string `json:"filename"`
	Err      error  `json:"-"`
}

func (e FileError) Error() string {
	if e.Filename == "" {
		return e.Err.Error()
	}
	return e.Filename + ": " + e.Err.Error()
}

func (e FileError) Unwrap() error { return e.Err }

// SyncResult summarizes one sync run.
type SyncResult struct {
	NewFiles     int         `json:"new_files"`
	UpdatedFiles int         `json:"updated_files"`
	NewTracks    int         `json:"new_tracks"`
	Errors       []FileError `json:"-"`
}

// SyncStatus is a read-only view of the ledger against the current directory contents.
type SyncStatus struct {
	LastSync     *time.Time `json:"last_sync,omitempty"`
	SyncedFiles  int        `json:"synced_files"`
	CatalogSize  int        `json:"catalog_size"`
	PendingFiles []string   `json:"pending_files"`
}
