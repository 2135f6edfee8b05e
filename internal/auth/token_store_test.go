package auth

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmoni/internal/models"
	"github.com/spf13/afero"
)

func newMemStore(t *testing.T) (*TokenStore, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	return NewTokenStoreFs(fsys, "/tokens", "default", log.New(io.Discard)), fsys
}

func TestTokenStore(t *testing.T) {
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Save and Load", func(t *testing.T) {
		store, fsys := newMemStore(t)
		tok := &models.TokenRecord{
			AccessToken:  "access",
			RefreshToken: "refresh",
			TokenType:    "Bearer",
			ExpiresAt:    expires,
			Scope:        "user-library-read",
		}

		if err := store.Save(tok); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		info, err := fsys.Stat("/tokens/default.json")
		if err != nil {
			t.Fatalf("expected token file: %v", err)
		}
		if info.Mode().Perm() != 0o600 {
			t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
		}

		loaded := store.Load()
		if loaded == nil {
			t.Fatal("expected token to load")
		}
		if loaded.RefreshToken != "refresh" || !loaded.ExpiresAt.Equal(expires) {
			t.Errorf("unexpected token %+v", loaded)
		}
	})

	t.Run("Load missing returns nil", func(t *testing.T) {
		store, _ := newMemStore(t)
		if tok := store.Load(); tok != nil {
			t.Errorf("expected nil, got %+v", tok)
		}
	})

	t.Run("Load corrupt returns nil", func(t *testing.T) {
		store, fsys := newMemStore(t)
		_ = afero.WriteFile(fsys, "/tokens/default.json", []byte("{not json"), 0o600)

		if tok := store.Load(); tok != nil {
			t.Errorf("expected nil for corrupt file, got %+v", tok)
		}
	})

	t.Run("IsExpired boundary", func(t *testing.T) {
		store, _ := newMemStore(t)
		tok := &models.TokenRecord{AccessToken: "a", ExpiresAt: expires}

		tests := []struct {
			name string
			now  time.Time
			want bool
		}{
			{"before", expires.Add(-time.Nanosecond), false},
			{"equal", expires, true},
			{"after", expires.Add(time.Second), true},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				store.SetClock(func() time.Time { return tt.now })
				if got := store.IsExpired(tok); got != tt.want {
					t.Errorf("IsExpired at %v = %v, want %v", tt.now, got, tt.want)
				}
			})
		}
	})

	t.Run("Clear is idempotent", func(t *testing.T) {
		store, _ := newMemStore(t)
		_ = store.Save(&models.TokenRecord{AccessToken: "a", ExpiresAt: expires})

		existed, err := store.Clear()
		if err != nil || !existed {
			t.Fatalf("first Clear = %v, %v; want true, nil", existed, err)
		}

		existed, err = store.Clear()
		if err != nil || existed {
			t.Errorf("second Clear = %v, %v; want false, nil", existed, err)
		}

		if store.Load() != nil {
			t.Error("expected no token after Clear")
		}
	})

	t.Run("profiles are separate files", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		work := NewTokenStoreFs(fsys, "/tokens", "work", log.New(io.Discard))
		home := NewTokenStoreFs(fsys, "/tokens", "home", log.New(io.Discard))

		_ = work.Save(&models.TokenRecord{AccessToken: "w", ExpiresAt: expires})
		if home.Load() != nil {
			t.Error("expected home profile to be empty")
		}
	})
}
