package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmoni/internal/models"
	"github.com/desertthunder/harmoni/internal/shared"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// DefaultScopes are requested when the configuration lists none.
var DefaultScopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopeUserLibraryRead,
}

// defaultLifetime applies when the provider omits expires_in.
const defaultLifetime = time.Hour

// refreshMargin makes [Authenticator.Token] refresh slightly before the hard expiry.
const refreshMargin = 30 * time.Second

// Options configures an [Authenticator].
type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	ShowDialog   bool
	AutoRefresh  bool

	// AuthURL and TokenURL default to the Spotify accounts endpoints.
	AuthURL  string
	TokenURL string

	// HTTPClient is used for token requests when set.
	HTTPClient *http.Client
}

// FlowState is held in memory for one authorization attempt and discarded afterwards.
type FlowState struct {
	Verifier  string
	Challenge string
	AuthURL   string
	State     string
}

// Authenticator runs the PKCE authorization code flow and refreshes cached tokens.
type Authenticator struct {
	config      *oauth2.Config
	store       *TokenStore
	showDialog  bool
	autoRefresh bool
	httpClient  *http.Client
	logger      *log.Logger
}

// NewAuthenticator creates an authenticator that persists tokens in store.
func NewAuthenticator(opts Options, store *TokenStore, logger *log.Logger) *Authenticator {
	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	authURL, tokenURL := opts.AuthURL, opts.TokenURL
	if authURL == "" {
		authURL = spotifyauth.AuthURL
	}
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}

	style := oauth2.AuthStyleInParams
	if opts.ClientSecret != "" {
		style = oauth2.AuthStyleInHeader
	}

	return &Authenticator{
		config: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: style,
			},
		},
		store:       store,
		showDialog:  opts.ShowDialog,
		autoRefresh: opts.AutoRefresh,
		httpClient:  opts.HTTPClient,
		logger:      shared.WithLogger(logger, "component", "auth"),
	}
}

// Store returns the backing token store.
func (a *Authenticator) Store() *TokenStore {
	return a.store
}

// Scopes returns the configured scopes.
func (a *Authenticator) Scopes() []string {
	return a.config.Scopes
}

// RedirectURI returns the configured redirect URI.
func (a *Authenticator) RedirectURI() string {
	return a.config.RedirectURL
}

// Begin generates a verifier, its S256 challenge and a csrf state, and builds the authorization URL.
func (a *Authenticator) Begin() (*FlowState, error) {
	if a.config.ClientID == "" {
		return nil, fmt.Errorf("%w: client id is empty", shared.ErrMissingCredentials)
	}

	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	verifier := oauth2.GenerateVerifier()
	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if a.showDialog {
		opts = append(opts, oauth2.SetAuthURLParam("show_dialog", "true"))
	}

	return &FlowState{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		AuthURL:   a.config.AuthCodeURL(state, opts...),
		State:     state,
	}, nil
}

// ParseRedirect extracts the authorization code from a pasted redirect URL, a bare query string,
// or a raw code.
//
// A URL carrying an error parameter yields [shared.ErrAuthDenied]. A URL whose state differs
// from expectedState yields [shared.ErrStateMismatch]. A raw code has no state and is accepted as is.
func ParseRedirect(input, expectedState string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("%w: empty redirect", shared.ErrInvalidInput)
	}

	if !looksLikeRedirect(input) {
		return input, nil
	}

	raw := input
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[i+1:]
	}
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}

	query, err := url.ParseQuery(raw)
	if err != nil {
		return "", fmt.Errorf("%w: malformed redirect query: %v", shared.ErrInvalidInput, err)
	}

	if e := query.Get("error"); e != "" {
		if desc := query.Get("error_description"); desc != "" {
			return "", fmt.Errorf("%w: %s (%s)", shared.ErrAuthDenied, e, desc)
		}
		return "", fmt.Errorf("%w: %s", shared.ErrAuthDenied, e)
	}

	code := query.Get("code")
	if code == "" && !query.Has("state") {
		return "", fmt.Errorf("%w: redirect has no code parameter", shared.ErrInvalidInput)
	}

	if query.Get("state") != expectedState {
		return "", fmt.Errorf("%w: redirect state does not match this attempt", shared.ErrStateMismatch)
	}

	if code == "" {
		return "", fmt.Errorf("%w: redirect has no code parameter", shared.ErrInvalidInput)
	}
	return code, nil
}

func looksLikeRedirect(s string) bool {
	return strings.Contains(s, "://") ||
		strings.HasPrefix(s, "?") ||
		strings.Contains(s, "code=") ||
		strings.Contains(s, "error=")
}

// Complete parses the redirect input and exchanges the code. The state check happens before
// any network call.
func (a *Authenticator) Complete(ctx context.Context, flow *FlowState, input string) (*models.TokenRecord, error) {
	code, err := ParseRedirect(input, flow.State)
	if err != nil {
		return nil, err
	}
	return a.Exchange(ctx, flow, code)
}

// Exchange trades an authorization code plus the flow's verifier for a token and persists it.
// It is never retried since codes are single use.
func (a *Authenticator) Exchange(ctx context.Context, flow *FlowState, code string) (*models.TokenRecord, error) {
	tok, err := a.config.Exchange(a.withClient(ctx), code, oauth2.VerifierOption(flow.Verifier))
	if err != nil {
		return nil, a.tokenError("code exchange", err)
	}

	record := a.toRecord(tok, "")
	if err := a.store.Save(record); err != nil {
		return nil, err
	}

	a.logger.Info("authorization complete", "scope", record.Scope, "expires_at", record.ExpiresAt.Format(time.RFC3339))
	return record, nil
}

// Refresh exchanges refreshToken for a new token and persists it. The previous refresh token is
// kept when the provider does not rotate it.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*models.TokenRecord, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", shared.ErrTokenUnavailable)
	}

	src := a.config.TokenSource(a.withClient(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return nil, a.tokenError("token refresh", err)
	}

	record := a.toRecord(tok, refreshToken)
	if record.Scope == "" {
		if prev := a.store.Load(); prev != nil {
			record.Scope = prev.Scope
		}
	}
	if err := a.store.Save(record); err != nil {
		return nil, err
	}

	a.logger.Debug("token refreshed", "expires_at", record.ExpiresAt.Format(time.RFC3339))
	return record, nil
}

// Token returns a usable cached token, refreshing it when it is expired or about to expire.
func (a *Authenticator) Token(ctx context.Context) (*models.TokenRecord, error) {
	tok := a.store.Load()
	if tok == nil {
		return nil, fmt.Errorf("%w: not authenticated, run `harmoni spotify auth`", shared.ErrTokenUnavailable)
	}

	if a.store.Now().Before(tok.ExpiresAt.Add(-refreshMargin)) {
		return tok, nil
	}

	if !a.autoRefresh || tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token expired and cannot be refreshed, run `harmoni spotify auth`", shared.ErrTokenUnavailable)
	}
	return a.Refresh(ctx, tok.RefreshToken)
}

// ForceRefresh refreshes the cached token regardless of its expiry.
func (a *Authenticator) ForceRefresh(ctx context.Context) (*models.TokenRecord, error) {
	tok := a.store.Load()
	if tok == nil || tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token cached", shared.ErrTokenUnavailable)
	}
	return a.Refresh(ctx, tok.RefreshToken)
}

// Logout clears the cached token and reports whether one existed.
func (a *Authenticator) Logout() (bool, error) {
	return a.store.Clear()
}

func (a *Authenticator) withClient(ctx context.Context) context.Context {
	if a.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

func (a *Authenticator) toRecord(tok *oauth2.Token, fallbackRefresh string) *models.TokenRecord {
	expires := tok.Expiry
	if expires.IsZero() {
		expires = a.store.Now().Add(defaultLifetime)
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = fallbackRefresh
	}

	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	scope, _ := tok.Extra("scope").(string)
	return &models.TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		TokenType:    tokenType,
		ExpiresAt:    expires.UTC(),
		Scope:        scope,
	}
}

// tokenError maps token endpoint failures to [shared.ErrAuthFailed] without echoing the request.
func (a *Authenticator) tokenError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		a.logger.Error(op+" rejected", "status", status, "error_code", re.ErrorCode, "description", re.ErrorDescription)
		if re.ErrorCode != "" {
			return fmt.Errorf("%w: %s: %s %s", shared.ErrAuthFailed, op, re.ErrorCode, re.ErrorDescription)
		}
		return fmt.Errorf("%w: %s: status %d", shared.ErrAuthFailed, op, status)
	}
	a.logger.Error(op+" failed", "error", err)
	return fmt.Errorf("%w: %s: %v", shared.ErrAuthFailed, op, err)
}
