package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmoni/internal/shared"
)

func TestLoopbackAddr(t *testing.T) {
	orig := containerCheck
	defer func() { containerCheck = orig }()
	containerCheck = func() bool { return false }

	tests := []struct {
		name string
		uri  string
		addr string
		ok   bool
	}{
		{"ipv4 loopback", "http://127.0.0.1:8888/callback", "127.0.0.1:8888", true},
		{"ipv6 loopback", "http://[::1]:8888/callback", "[::1]:8888", true},
		{"no port", "http://127.0.0.1/callback", "", false},
		{"https", "https://127.0.0.1:8888/callback", "", false},
		{"hostname", "http://localhost:8888/callback", "", false},
		{"remote", "http://10.0.0.5:8888/callback", "", false},
		{"garbage", "://", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, ok := LoopbackAddr(tt.uri)
			if ok != tt.ok || addr != tt.addr {
				t.Errorf("LoopbackAddr(%q) = %q, %v; want %q, %v", tt.uri, addr, ok, tt.addr, tt.ok)
			}
		})
	}

	t.Run("container binds all interfaces", func(t *testing.T) {
		containerCheck = func() bool { return true }
		addr, ok := LoopbackAddr("http://127.0.0.1:8888/callback")
		if !ok || addr != "0.0.0.0:8888" {
			t.Errorf("expected 0.0.0.0:8888, got %q %v", addr, ok)
		}
	})
}

func TestCallbackHandler(t *testing.T) {
	u, _ := url.Parse("http://127.0.0.1:8888/callback")

	t.Run("captures first request only", func(t *testing.T) {
		h := NewCallbackHandler(u)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=xyz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		res := <-h.Result()
		if res.URL != "http://127.0.0.1:8888/callback?code=abc&state=xyz" {
			t.Errorf("unexpected captured url %q", res.URL)
		}

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=again", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for second request, got %d", rec.Code)
		}
	})

	t.Run("error redirect still completes", func(t *testing.T) {
		h := NewCallbackHandler(u)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?error=access_denied", nil))

		if !strings.Contains(rec.Body.String(), "access_denied") {
			t.Errorf("expected error in page, got %q", rec.Body.String())
		}
		if res := <-h.Result(); !strings.Contains(res.URL, "error=access_denied") {
			t.Errorf("unexpected captured url %q", res.URL)
		}
	})
}

func TestCallbackListener(t *testing.T) {
	logger := log.New(io.Discard)

	t.Run("rejects non loopback", func(t *testing.T) {
		_, err := ListenCallback("https://example.com/callback", logger)
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("serves one redirect and ignores other paths", func(t *testing.T) {
		l, err := ListenCallback("http://127.0.0.1:0/callback", logger)
		if err != nil {
			t.Fatalf("failed to listen: %v", err)
		}
		base := fmt.Sprintf("http://%s", l.Addr().String())

		resp, err := http.Get(base + "/favicon.ico")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404 for other path, got %d", resp.StatusCode)
		}

		go func() {
			resp, err := http.Get(base + "/callback?code=abc&state=xyz")
			if err == nil {
				resp.Body.Close()
			}
		}()

		got, err := l.Await(context.Background(), 5*time.Second)
		if err != nil {
			t.Fatalf("expected redirect, got %v", err)
		}
		if !strings.Contains(got, "code=abc") || !strings.Contains(got, "state=xyz") {
			t.Errorf("unexpected redirect %q", got)
		}

		if err := l.Close(); err != nil {
			t.Errorf("second close should be a no-op, got %v", err)
		}
	})

	t.Run("times out", func(t *testing.T) {
		l, err := ListenCallback("http://127.0.0.1:0/callback", logger)
		if err != nil {
			t.Fatalf("failed to listen: %v", err)
		}

		_, err = l.Await(context.Background(), 20*time.Millisecond)
		if !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		l, err := ListenCallback("http://127.0.0.1:0/callback", logger)
		if err != nil {
			t.Fatalf("failed to listen: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := l.Await(ctx, time.Second); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
