package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmoni/internal/models"
	"github.com/desertthunder/harmoni/internal/shared"
	"github.com/spf13/afero"
)

// TokenStore persists one [models.TokenRecord] per profile as <dir>/<profile>.json.
type TokenStore struct {
	fs      afero.Fs
	dir     string
	profile string
	now     func() time.Time
	logger  *log.Logger
}

// NewTokenStore creates a store rooted at dir on the OS filesystem.
func NewTokenStore(dir, profile string, logger *log.Logger) *TokenStore {
	return NewTokenStoreFs(afero.NewOsFs(), dir, profile, logger)
}

// NewTokenStoreFs creates a store on an arbitrary [afero.Fs].
func NewTokenStoreFs(fsys afero.Fs, dir, profile string, logger *log.Logger) *TokenStore {
	if profile == "" {
		profile = "default"
	}
	return &TokenStore{
		fs:      fsys,
		dir:     dir,
		profile: profile,
		now:     time.Now,
		logger:  shared.WithLogger(logger, "component", "tokens"),
	}
}

// SetClock replaces the store's time source.
func (s *TokenStore) SetClock(now func() time.Time) {
	s.now = now
}

// Now returns the current time according to the store's clock.
func (s *TokenStore) Now() time.Time {
	return s.now()
}

// Path returns the token file location.
func (s *TokenStore) Path() string {
	return filepath.Join(s.dir, s.profile+".json")
}

// Save writes the record, creating the directory with owner-only permissions.
func (s *TokenStore) Save(token *models.TokenRecord) error {
	if token == nil {
		return fmt.Errorf("%w: nil token", shared.ErrInvalidInput)
	}

	if err := s.fs.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating token dir: %w", err)
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	tmp := s.Path() + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	if err := s.fs.Rename(tmp, s.Path()); err != nil {
		return fmt.Errorf("replacing token: %w", err)
	}

	s.logger.Debug("token saved", "profile", s.profile, "expires_at", token.ExpiresAt.Format(time.RFC3339))
	return nil
}

// Load returns the cached record, or nil when the file is missing or unreadable.
func (s *TokenStore) Load() *models.TokenRecord {
	data, err := afero.ReadFile(s.fs, s.Path())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("token file unreadable", "path", s.Path(), "error", err)
		}
		return nil
	}

	var token models.TokenRecord
	if err := json.Unmarshal(data, &token); err != nil {
		s.logger.Warn("token file corrupt", "path", s.Path(), "error", err)
		return nil
	}
	if token.AccessToken == "" || token.ExpiresAt.IsZero() {
		s.logger.Warn("token file incomplete", "path", s.Path())
		return nil
	}
	return &token
}

// IsExpired reports whether now >= expires_at. No grace window is applied.
func (s *TokenStore) IsExpired(token *models.TokenRecord) bool {
	return !s.now().Before(token.ExpiresAt)
}

// Clear removes the cached record and reports whether one existed.
func (s *TokenStore) Clear() (bool, error) {
	exists, err := afero.Exists(s.fs, s.Path())
	if err != nil {
		return false, fmt.Errorf("checking token file: %w", err)
	}
	if !exists {
		return false, nil
	}

	if err := s.fs.Remove(s.Path()); err != nil {
		return false, fmt.Errorf("removing token file: %w", err)
	}
	s.logger.Debug("token cleared", "profile", s.profile)
	return true, nil
}
