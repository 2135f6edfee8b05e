package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmoni/internal/models"
	"github.com/desertthunder/harmoni/internal/shared"
	"github.com/spf13/afero"
)

type tokenServer struct {
	*httptest.Server
	calls        atomic.Int32
	lastVerifier atomic.Value
	fail         bool
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if ts.fail {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Invalid authorization code"}`)
			return
		}

		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			ts.lastVerifier.Store(r.PostForm.Get("code_verifier"))
			fmt.Fprint(w, `{"access_token":"access-1","token_type":"Bearer","expires_in":3600,"refresh_token":"refresh-1","scope":"user-library-read"}`)
		case "refresh_token":
			fmt.Fprint(w, `{"access_token":"access-2","token_type":"Bearer","expires_in":3600}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"unsupported_grant_type"}`)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestAuthenticator(t *testing.T, ts *tokenServer, redirect string) (*Authenticator, *TokenStore) {
	t.Helper()
	logger := log.New(io.Discard)
	store := NewTokenStoreFs(afero.NewMemMapFs(), "/tokens", "default", logger)
	a := NewAuthenticator(Options{
		ClientID:    "client-id",
		RedirectURI: redirect,
		ShowDialog:  true,
		AutoRefresh: true,
		AuthURL:     ts.URL + "/authorize",
		TokenURL:    ts.URL + "/api/token",
		HTTPClient:  ts.Client(),
	}, store, logger)
	return a, store
}

func TestBegin(t *testing.T) {
	ts := newTokenServer(t)
	a, _ := newTestAuthenticator(t, ts, "http://127.0.0.1:8888/callback")

	flow, err := a.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	u, err := url.Parse(flow.AuthURL)
	if err != nil {
		t.Fatalf("invalid auth url: %v", err)
	}
	q := u.Query()

	checks := map[string]string{
		"client_id":             "client-id",
		"response_type":         "code",
		"redirect_uri":          "http://127.0.0.1:8888/callback",
		"code_challenge_method": "S256",
		"code_challenge":        flow.Challenge,
		"state":                 flow.State,
		"show_dialog":           "true",
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}

	if len(flow.Verifier) < 43 {
		t.Errorf("verifier too short: %d", len(flow.Verifier))
	}

	other, _ := a.Begin()
	if other.State == flow.State || other.Verifier == flow.Verifier {
		t.Error("expected fresh state and verifier per attempt")
	}

	t.Run("missing client id", func(t *testing.T) {
		b := NewAuthenticator(Options{}, nil, log.New(io.Discard))
		if _, err := b.Begin(); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})
}

func TestParseRedirect(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		code    string
		wantErr error
	}{
		{"full url", "http://127.0.0.1:8888/callback?code=abc&state=s1", "abc", nil},
		{"bare query", "?code=abc&state=s1", "abc", nil},
		{"raw code", "  AQBrawcode  ", "AQBrawcode", nil},
		{"provider error", "http://127.0.0.1:8888/callback?error=access_denied&state=s1", "", shared.ErrAuthDenied},
		{"state mismatch", "http://127.0.0.1:8888/callback?code=abc&state=evil", "", shared.ErrStateMismatch},
		{"missing state", "http://127.0.0.1:8888/callback?code=abc", "", shared.ErrStateMismatch},
		{"no query", "http://127.0.0.1:8888/callback", "", shared.ErrInvalidInput},
		{"empty", "   ", "", shared.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := ParseRedirect(tt.input, "s1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if code != tt.code {
				t.Errorf("code = %q, want %q", code, tt.code)
			}
		})
	}
}

func TestComplete(t *testing.T) {
	t.Run("state mismatch never reaches token endpoint", func(t *testing.T) {
		ts := newTokenServer(t)
		a, store := newTestAuthenticator(t, ts, "http://127.0.0.1:8888/callback")
		flow, _ := a.Begin()

		_, err := a.Complete(context.Background(), flow, "http://127.0.0.1:8888/callback?code=abc&state=forged")
		if !errors.Is(err, shared.ErrStateMismatch) {
			t.Fatalf("expected ErrStateMismatch, got %v", err)
		}
		if n := ts.calls.Load(); n != 0 {
			t.Errorf("expected no token requests, got %d", n)
		}
		if store.Load() != nil {
			t.Error("expected no token to be stored")
		}
	})

	t.Run("exchange persists token", func(t *testing.T) {
		ts := newTokenServer(t)
		a, store := newTestAuthenticator(t, ts, "http://127.0.0.1:8888/callback")
		flow, _ := a.Begin()

		redirect := fmt.Sprintf("http://127.0.0.1:8888/callback?code=abc&state=%s", flow.State)
		tok, err := a.Complete(context.Background(), flow, redirect)
		if err != nil {
			t.Fatalf("Complete failed: %v", err)
		}

		if tok.AccessToken != "access-1" || tok.RefreshToken != "refresh-1" || tok.Scope != "user-library-read" {
			t.Errorf("unexpected token %+v", tok)
		}
		if v, _ := ts.lastVerifier.Load().(string); v != flow.Verifier {
			t.Error("expected verifier to be sent with the exchange")
		}
		if until := time.Until(tok.ExpiresAt); until < 50*time.Minute || until > 61*time.Minute {
			t.Errorf("expected absolute expiry about an hour out, got %v", tok.ExpiresAt)
		}
		if store.Load() == nil {
			t.Error("expected token to be persisted")
		}
	})

	t.Run("rejected exchange is an auth failure", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.fail = true
		a, _ := newTestAuthenticator(t, ts, "http://127.0.0.1:8888/callback")
		flow, _ := a.Begin()

		_, err := a.Complete(context.Background(), flow, "raw-code")
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
		if n := ts.calls.Load(); n != 1 {
			t.Errorf("expected exactly one exchange attempt, got %d", n)
		}
	})
}

func TestToken(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("no cached token", func(t *testing.T) {
		ts := newTokenServer(t)
		a, _ := newTestAuthenticator(t, ts, "http://127.0.0.1:8888/callback")

		if _, err := a.Token(context.Background()); !errors.Is(err, shared.ErrTokenUnavailable) {
			t.Errorf("expected ErrTokenUnavailable, got %v", err)
		}
	})

	t.Run("valid token is returned as is", func(t *testing.T) {
		ts := newTokenServer(t)
		a, store := newTestAuthenticator(t, ts, "http://127.0.0.1:8888/callback")
		store.SetClock(func() time.Time { return now })
		_ = store.Save(&models.TokenRecord{AccessToken: "cached", RefreshToken: "r", ExpiresAt: now.Add(time.Hour)})

		tok, err := a.Token(context.Background())
		if err != nil || tok.AccessToken != "cached" {
			t.Fatalf("expected cached token, got %+v, %v", tok, err)
		}
		if ts.calls.Load() != 0 {
			t.Error("expected no refresh")
		}
	})

	t.Run("expired token is refreshed", func(t *testing.T) {
		ts := newTokenServer(t)
		a, store := newTestAuthenticator(t, ts, "http://127.0.0.1:8888/callback")
		store.SetClock(func() time.Time { return now })
		_ = store.Save(&models.TokenRecord{AccessToken: "old", RefreshToken: "r", ExpiresAt: now, Scope: "user-library-read"})

		tok, err := a.Token(context.Background())
		if err != nil {
			t.Fatalf("refresh failed: %v", err)
		}
		if tok.AccessToken != "access-2" {
			t.Errorf("expected refreshed token, got %s", tok.AccessToken)
		}
		if tok.RefreshToken != "r" {
			t.Errorf("expected refresh token to be kept, got %q", tok.RefreshToken)
		}
		if tok.Scope != "user-library-read" {
			t.Errorf("expected scope to carry over, got %q", tok.Scope)
		}
		if got := store.Load(); got == nil || got.AccessToken != "access-2" {
			t.Error("expected refreshed token to be persisted")
		}
	})

	t.Run("expired without refresh token", func(t *testing.T) {
		ts := newTokenServer(t)
		a, store := newTestAuthenticator(t, ts, "http://127.0.0.1:8888/callback")
		store.SetClock(func() time.Time { return now })
		_ = store.Save(&models.TokenRecord{AccessToken: "old", ExpiresAt: now.Add(-time.Minute)})

		if _, err := a.Token(context.Background()); !errors.Is(err, shared.ErrTokenUnavailable) {
			t.Errorf("expected ErrTokenUnavailable, got %v", err)
		}
	})
}

func TestLogout(t *testing.T) {
	ts := newTokenServer(t)
	a, store := newTestAuthenticator(t, ts, "http://127.0.0.1:8888/callback")
	_ = store.Save(&models.TokenRecord{AccessToken: "a", ExpiresAt: time.Now().Add(time.Hour)})

	if existed, err := a.Logout(); err != nil || !existed {
		t.Errorf("Logout = %v, %v; want true, nil", existed, err)
	}
	if existed, _ := a.Logout(); existed {
		t.Error("second Logout should report no token")
	}
}

func TestAuthenticate(t *testing.T) {
	stateOf := func(t *testing.T, authURL string) string {
		t.Helper()
		u, err := url.Parse(authURL)
		if err != nil {
			t.Fatalf("bad auth url: %v", err)
		}
		return u.Query().Get("state")
	}

	t.Run("manual entry for non loopback redirect", func(t *testing.T) {
		ts := newTokenServer(t)
		a, _ := newTestAuthenticator(t, ts, "https://example.com/callback")

		var shown string
		tok, err := a.Authenticate(context.Background(), Interaction{
			Show: func(u string) { shown = u },
			Prompt: func(context.Context) (string, error) {
				return "https://example.com/callback?code=abc&state=" + stateOf(t, shown), nil
			},
		})
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if tok.AccessToken != "access-1" {
			t.Errorf("unexpected token %+v", tok)
		}
	})

	t.Run("loopback capture", func(t *testing.T) {
		ts := newTokenServer(t)

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("cannot reserve port: %v", err)
		}
		port := ln.Addr().(*net.TCPAddr).Port
		ln.Close()

		redirect := fmt.Sprintf("http://127.0.0.1:%d/callback", port)
		a, _ := newTestAuthenticator(t, ts, redirect)

		tok, err := a.Authenticate(context.Background(), Interaction{
			Timeout: 5 * time.Second,
			Open: func(authURL string) error {
				target := redirect + "?code=abc&state=" + stateOf(t, authURL)
				go func() {
					resp, err := http.Get(target)
					if err == nil {
						resp.Body.Close()
					}
				}()
				return nil
			},
			Prompt: func(context.Context) (string, error) {
				return "", errors.New("prompt should not be used")
			},
		})
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if tok.AccessToken != "access-1" {
			t.Errorf("unexpected token %+v", tok)
		}
	})

	t.Run("timeout falls back to prompt", func(t *testing.T) {
		ts := newTokenServer(t)

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("cannot reserve port: %v", err)
		}
		port := ln.Addr().(*net.TCPAddr).Port
		ln.Close()

		a, _ := newTestAuthenticator(t, ts, fmt.Sprintf("http://127.0.0.1:%d/callback", port))

		var shown string
		prompted := false
		_, err = a.Authenticate(context.Background(), Interaction{
			Timeout: 20 * time.Millisecond,
			Show:    func(u string) { shown = u },
			Prompt: func(context.Context) (string, error) {
				prompted = true
				return "?code=abc&state=" + stateOf(t, shown), nil
			},
		})
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if !prompted {
			t.Error("expected manual prompt after timeout")
		}
	})

	t.Run("interrupted wait falls back to prompt", func(t *testing.T) {
		ts := newTokenServer(t)

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("cannot reserve port: %v", err)
		}
		port := ln.Addr().(*net.TCPAddr).Port
		ln.Close()

		a, _ := newTestAuthenticator(t, ts, fmt.Sprintf("http://127.0.0.1:%d/callback", port))

		interrupt := make(chan struct{})
		var shown string
		var promptErr error
		tok, err := a.Authenticate(context.Background(), Interaction{
			Timeout:   time.Minute,
			Interrupt: interrupt,
			Show:      func(u string) { shown = u },
			Open: func(string) error {
				close(interrupt)
				return nil
			},
			Prompt: func(ctx context.Context) (string, error) {
				promptErr = ctx.Err()
				return "?code=abc&state=" + stateOf(t, shown), nil
			},
		})
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if promptErr != nil {
			t.Errorf("expected a live context at the prompt, got %v", promptErr)
		}
		if tok.AccessToken != "access-1" {
			t.Errorf("unexpected token %+v", tok)
		}
	})

	t.Run("cancelled context aborts the wait", func(t *testing.T) {
		ts := newTokenServer(t)

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("cannot reserve port: %v", err)
		}
		port := ln.Addr().(*net.TCPAddr).Port
		ln.Close()

		a, _ := newTestAuthenticator(t, ts, fmt.Sprintf("http://127.0.0.1:%d/callback", port))

		ctx, cancel := context.WithCancel(context.Background())
		_, err = a.Authenticate(ctx, Interaction{
			Timeout: time.Minute,
			Open: func(string) error {
				cancel()
				return nil
			},
			Prompt: func(context.Context) (string, error) {
				return "", errors.New("prompt should not be used")
			},
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if ts.calls.Load() != 0 {
			t.Error("expected no token requests")
		}
	})

	t.Run("denied", func(t *testing.T) {
		ts := newTokenServer(t)
		a, _ := newTestAuthenticator(t, ts, "https://example.com/callback")

		_, err := a.Authenticate(context.Background(), Interaction{
			Prompt: func(context.Context) (string, error) {
				return "https://example.com/callback?error=access_denied", nil
			},
		})
		if !errors.Is(err, shared.ErrAuthDenied) {
			t.Errorf("expected ErrAuthDenied, got %v", err)
		}
		if ts.calls.Load() != 0 {
			t.Error("expected no token requests after denial")
		}
	})
}

func TestTokenRecordJSON(t *testing.T) {
	tok := models.TokenRecord{AccessToken: "a", ExpiresAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	data, _ := json.Marshal(tok)

	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	if raw["expires_at"] != "2026-01-02T03:04:05Z" {
		t.Errorf("expected RFC3339 expires_at, got %v", raw["expires_at"])
	}
}
