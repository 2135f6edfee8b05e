// Spotify Web API client with token refresh, retry and pagination
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmoni/internal/models"
	"github.com/desertthunder/harmoni/internal/shared"
	"golang.org/x/time/rate"
)

const spotifyBaseURL = "https://api.spotify.com/v1"

const (
	DefaultMaxRetries  = 5
	DefaultBackoffBase = time.Second
	DefaultMaxBackoff  = 60 * time.Second
	DefaultNetworkCap  = 30 * time.Second
	DefaultRetryJitter = 250 * time.Millisecond
	DefaultTimeout     = 30 * time.Second

	minRetryAfter = time.Second
)

// TokenProvider hands out bearer tokens. [auth.Authenticator] implements it.
type TokenProvider interface {
	Token(ctx context.Context) (*models.TokenRecord, error)
	ForceRefresh(ctx context.Context) (*models.TokenRecord, error)
	Scopes() []string
}

// ClientOptions tunes retries and transport. Zero values take the package defaults.
type ClientOptions struct {
	BaseURL           string
	MaxRetries        int
	BackoffBase       time.Duration
	MaxBackoff        time.Duration
	NetworkMaxBackoff time.Duration
	RetryJitter       time.Duration
	NoJitter          bool // NoJitter turns off the 429 jitter term
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client issues authenticated GET requests against the Web API, one at a time per call.
// Retry state is local to each call.
type Client struct {
	tokens     TokenProvider
	httpClient *http.Client
	baseURL    string
	opts       ClientOptions
	limiter    *rate.Limiter
	logger     *log.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// NewClient creates a client that obtains tokens from tokens.
func NewClient(tokens TokenProvider, opts ClientOptions, logger *log.Logger) *Client {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.NetworkMaxBackoff <= 0 {
		opts.NetworkMaxBackoff = DefaultNetworkCap
	}
	if opts.NoJitter {
		opts.RetryJitter = 0
	} else if opts.RetryJitter <= 0 {
		opts.RetryJitter = DefaultRetryJitter
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Client{
		tokens:     tokens,
		httpClient: httpClient,
		baseURL:    baseURL,
		opts:       opts,
		limiter:    limiter,
		logger:     shared.WithLogger(logger, "component", "spotify"),
		sleep:      sleepContext,
		jitter:     rand.Float64,
	}
}

type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomeRetry
	outcomeUnauthorized
	outcomeFatal
)

// outcome is the classified result of one HTTP attempt.
type outcome struct {
	kind  outcomeKind
	delay time.Duration
	body  []byte
	err   error
}

// Get performs a GET on path with query and decodes the JSON body into out.
//
// A 401 triggers one token refresh and resend that does not count against MaxRetries.
// 429, 5xx and network failures are retried until MaxRetries attempts have been made.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := "GET " + path
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	refreshed := false
	var last error

	for attempt := 1; attempt <= c.opts.MaxRetries; {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		res := c.attempt(ctx, target, endpoint, tok, attempt)

		switch res.kind {
		case outcomeOK:
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(res.body, out); err != nil {
				return &APIError{Status: http.StatusOK, Endpoint: endpoint, Message: "decoding response: " + err.Error(), Kind: shared.ErrInvalidResponse}
			}
			return nil

		case outcomeUnauthorized:
			if refreshed {
				return res.err
			}
			refreshed = true
			c.logger.Info("access token rejected, refreshing once", "endpoint", endpoint)
			if _, err := c.tokens.ForceRefresh(ctx); err != nil {
				return fmt.Errorf("%w (refresh after 401 failed: %v)", res.err, err)
			}
			continue

		case outcomeFatal:
			return res.err
		}

		last = res.err
		if attempt == c.opts.MaxRetries {
			break
		}

		c.logger.Warn("retrying request", "endpoint", endpoint, "attempt", attempt, "max", c.opts.MaxRetries, "delay", res.delay, "error", res.err)
		if err := c.sleep(ctx, res.delay); err != nil {
			return err
		}
		attempt++
	}

	c.logger.Error("giving up", "endpoint", endpoint, "attempts", c.opts.MaxRetries, "error", last)
	return last
}

// attempt sends one request and classifies the result.
func (c *Client) attempt(ctx context.Context, target, endpoint string, tok *models.TokenRecord, attempt int) outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return outcome{kind: outcomeFatal, err: &APIError{Endpoint: endpoint, Message: err.Error(), Kind: shared.ErrClientRequest}}
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return outcome{kind: outcomeFatal, err: ctx.Err()}
		}
		return outcome{
			kind:  outcomeRetry,
			delay: c.backoff(attempt, c.opts.NetworkMaxBackoff),
			err:   &APIError{Endpoint: endpoint, Message: err.Error(), Kind: shared.ErrServerTransient},
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return outcome{kind: outcomeFatal, err: ctx.Err()}
		}
		return outcome{
			kind:  outcomeRetry,
			delay: c.backoff(attempt, c.opts.NetworkMaxBackoff),
			err:   &APIError{Status: resp.StatusCode, Endpoint: endpoint, Message: "reading body: " + err.Error(), Kind: shared.ErrServerTransient},
		}
	}

	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		return outcome{kind: outcomeOK, body: body}

	case status == http.StatusUnauthorized:
		c.diagnose(resp, endpoint, body, tok)
		return outcome{kind: outcomeUnauthorized, err: &APIError{Status: status, Endpoint: endpoint, Message: errorMessage(status, body), Kind: shared.ErrTokenUnavailable}}

	case status == http.StatusTooManyRequests:
		delay := retryAfter(resp.Header.Get("Retry-After")) + c.jitterDelay()
		return outcome{kind: outcomeRetry, delay: delay, err: &APIError{Status: status, Endpoint: endpoint, Message: errorMessage(status, body), Kind: shared.ErrRateLimited}}

	case status >= 500:
		return outcome{kind: outcomeRetry, delay: c.backoff(attempt, c.opts.MaxBackoff), err: &APIError{Status: status, Endpoint: endpoint, Message: errorMessage(status, body), Kind: shared.ErrServerTransient}}

	default:
		if status == http.StatusForbidden {
			c.diagnose(resp, endpoint, body, tok)
		}
		return outcome{kind: outcomeFatal, err: &APIError{Status: status, Endpoint: endpoint, Message: errorMessage(status, body), Kind: shared.ErrClientRequest}}
	}
}

// diagnose logs context for 401/403 responses. Token values are never logged.
func (c *Client) diagnose(resp *http.Response, endpoint string, body []byte, tok *models.TokenRecord) {
	granted := tok.Scopes()
	var missing []string
	for _, s := range c.tokens.Scopes() {
		if !slices.Contains(granted, s) {
			missing = append(missing, s)
		}
	}

	c.logger.Warn("authorization problem",
		"status", resp.StatusCode,
		"endpoint", endpoint,
		"www_authenticate", resp.Header.Get("WWW-Authenticate"),
		"message", errorMessage(resp.StatusCode, body),
		"token_scope", tok.Scope,
		"configured_scopes", strings.Join(c.tokens.Scopes(), " "),
		"missing_scopes", strings.Join(missing, " "),
	)
}

// backoff returns base * 2^(attempt-1), capped.
func (c *Client) backoff(attempt int, limit time.Duration) time.Duration {
	d := float64(c.opts.BackoffBase) * math.Pow(2, float64(attempt-1))
	if d > float64(limit) {
		return limit
	}
	return time.Duration(d)
}

func (c *Client) jitterDelay() time.Duration {
	return time.Duration(float64(c.opts.RetryJitter) * c.jitter())
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
// The result is never below one second.
func retryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	d := minRetryAfter
	if v == "" {
		return d
	}

	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		d = time.Duration(secs * float64(time.Second))
	} else if at, err := http.ParseTime(v); err == nil {
		d = time.Until(at)
	}

	return max(d, minRetryAfter)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Me returns the current user's profile.
func (c *Client) Me(ctx context.Context) (*UserProfile, error) {
	var user UserProfile
	if err := c.Get(ctx, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Playlists returns all of the current user's playlists.
func (c *Client) Playlists(ctx context.Context) ([]Playlist, error) {
	return FetchAll(ctx, c, "/me/playlists", nil, PageRequest{Limit: 50}, func(p Playlist) bool {
		return p.ID != ""
	})
}

// PlaylistTracks returns every item of the playlist identified by id, URI or share URL.
func (c *Client) PlaylistTracks(ctx context.Context, playlist string) ([]PlaylistItem, error) {
	id, err := ParsePlaylistID(playlist)
	if err != nil {
		return nil, err
	}

	q := url.Values{"additional_types": {"track"}}
	return FetchAll(ctx, c, "/playlists/"+url.PathEscape(string(id))+"/tracks", q, PageRequest{Limit: 100}, func(it PlaylistItem) bool {
		return it.Track != nil
	})
}

// SavedTracks returns the user's liked songs.
func (c *Client) SavedTracks(ctx context.Context) ([]SavedTrack, error) {
	return FetchAll(ctx, c, "/me/tracks", nil, PageRequest{Limit: 50}, func(it SavedTrack) bool {
		return it.Track != nil
	})
}

// PlaylistDescriptors fetches a playlist and converts it to deduplicated descriptors.
func (c *Client) PlaylistDescriptors(ctx context.Context, playlist string, maxTracks int) ([]models.TrackDescriptor, error) {
	items, err := c.PlaylistTracks(ctx, playlist)
	if err != nil {
		return nil, err
	}
	return PlaylistDescriptors(items, maxTracks), nil
}

// LikedDescriptors fetches liked songs and converts them to deduplicated descriptors.
func (c *Client) LikedDescriptors(ctx context.Context, maxTracks int) ([]models.TrackDescriptor, error) {
	items, err := c.SavedTracks(ctx)
	if err != nil {
		return nil, err
	}
	return SavedDescriptors(items, maxTracks), nil
}
