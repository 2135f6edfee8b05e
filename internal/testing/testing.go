// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/harmoni/internal/models"
	"github.com/spf13/afero"
)

// StaticTokens is a test double for [services.TokenProvider].
//
// Token returns Current; ForceRefresh swaps in Refreshed and counts the call.
type StaticTokens struct {
	mu         sync.Mutex
	Current    *models.TokenRecord
	Refreshed  *models.TokenRecord
	RefreshErr error
	Granted    []string
	Refreshes  int
}

// NewStaticTokens returns tokens whose access token is "token-1" and refresh result "token-2".
func NewStaticTokens() *StaticTokens {
	exp := time.Now().Add(time.Hour)
	return &StaticTokens{
		Current:   &models.TokenRecord{AccessToken: "token-1", TokenType: "Bearer", ExpiresAt: exp, Scope: "user-library-read"},
		Refreshed: &models.TokenRecord{AccessToken: "token-2", TokenType: "Bearer", ExpiresAt: exp, Scope: "user-library-read"},
		Granted:   []string{"user-library-read", "playlist-read-private"},
	}
}

func (s *StaticTokens) Token(context.Context) (*models.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Current == nil {
		return nil, errors.New("no token")
	}
	return s.Current, nil
}

func (s *StaticTokens) ForceRefresh(context.Context) (*models.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Refreshes++
	if s.RefreshErr != nil {
		return nil, s.RefreshErr
	}
	s.Current = s.Refreshed
	return s.Current, nil
}

func (s *StaticTokens) Scopes() []string { return s.Granted }

// Sleeper records requested delays without sleeping.
type Sleeper struct {
	mu     sync.Mutex
	Delays []time.Duration
}

func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.Delays = append(s.Delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Recorded returns a copy of the recorded delays.
func (s *Sleeper) Recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.Delays...)
}

// MockDownloader is a test double for [library.Downloader].
type MockDownloader struct {
	mu     sync.Mutex
	Calls  []models.TrackDescriptor
	FailOn map[string]error
}

func (m *MockDownloader) Download(_ context.Context, track models.TrackDescriptor, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, track)
	if err, ok := m.FailOn[track.Key()]; ok {
		return err
	}
	return nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	mu       sync.Mutex
	response *http.Response
	err      error
	Calls    int
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

// MustWriteFile writes content to path on fsys, creating parent directories.
func MustWriteFile(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}
