package main

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/desertthunder/harmoni/internal/auth"
	"github.com/desertthunder/harmoni/internal/formatter"
	"github.com/desertthunder/harmoni/internal/models"
	"github.com/desertthunder/harmoni/internal/server"
	"github.com/desertthunder/harmoni/internal/shared"
	"github.com/desertthunder/harmoni/internal/ui"
	"github.com/urfave/cli/v3"
)

const setupInstructions = `To use the Spotify Web API:
  1. Open https://developer.spotify.com/dashboard and create an app.
  2. Add this redirect URI to the app settings: %s
  3. Copy the app's Client ID into [spotify] client_id in %s
     (or set HARMONI_SPOTIFY_CLIENT_ID).
  4. Run: harmoni spotify auth
`

// SpotifyAuth runs the PKCE authorization flow and caches the token for the current profile.
//
// Captures the redirect on a local listener when the redirect URI is a loopback address, and
// otherwise asks for the redirect URL to be pasted.
func (r *Runner) SpotifyAuth(ctx context.Context, cmd *cli.Command) error {
	a, err := r.authenticator()
	if err != nil {
		return err
	}

	timeout := cmd.Duration("timeout")
	if timeout <= 0 {
		timeout = shared.Seconds(r.cfg().Spotify.CallbackTimeout)
	}

	_, waits := server.LoopbackAddr(a.RedirectURI())

	var prompting atomic.Bool
	authCtx, interrupt, stop := r.authInterrupts(ctx, &prompting)
	defer stop()

	in := auth.Interaction{
		Show: func(authURL string) {
			r.writePlain("%s\n\n%s\n\n", ui.Title("Open this URL to authorize harmoni:"), authURL)
			if waits {
				r.writePlain("Waiting for the redirect. Press Ctrl+C to paste it instead.\n")
			}
		},
		Prompt: func(ctx context.Context) (string, error) {
			prompting.Store(true)
			return r.promptRedirect(ctx)
		},
		Timeout:   timeout,
		Interrupt: interrupt,
	}
	if !cmd.Bool("no-browser") {
		in.Open = r.openBrowser
	}

	token, err := a.Authenticate(authCtx, in)
	if err != nil {
		return err
	}

	r.writePlain("%s\n", ui.Success("Authorization successful"))
	r.writePlain("Token cached at %s (expires %s)\n", a.Store().Path(), token.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return r.writePlain("You can now use: harmoni spotify liked\n")
}

// SpotifyLogout removes the cached token.
func (r *Runner) SpotifyLogout(ctx context.Context, cmd *cli.Command) error {
	a, err := r.authenticator()
	if err != nil {
		return err
	}

	removed, err := a.Logout()
	if err != nil {
		return err
	}
	if !removed {
		return r.writePlain("No cached token for profile %q\n", r.cfg().Storage.Profile)
	}
	return r.writePlain("%s\n", ui.Success("Logged out"))
}

// SpotifyStatus reports whether credentials are configured and a token is cached.
func (r *Runner) SpotifyStatus(ctx context.Context, cmd *cli.Command) error {
	config := r.cfg()

	r.writePlain("%s\n", ui.Title("Spotify"))
	r.writePlain("Profile:      %s\n", config.Storage.Profile)
	r.writePlain("Redirect URI: %s\n", config.Spotify.RedirectURI)
	r.writePlain("Scopes:       %s\n", strings.Join(config.Spotify.Scopes, ", "))

	a, err := r.authenticator()
	if err != nil {
		r.writePlain("\n%s\n\n", ui.Warn(err.Error()))
		return r.writePlain(setupInstructions, config.Spotify.RedirectURI, r.configPath)
	}
	r.writePlain("Client ID:    set\n\n")

	store := a.Store()
	token := store.Load()
	expired := token != nil && store.IsExpired(token)
	return r.writePlain("%s", ui.TokenStatus(token, expired, r.now()))
}

// SpotifyMe prints the current user's profile.
func (r *Runner) SpotifyMe(ctx context.Context, cmd *cli.Command) error {
	client, err := r.spotifyClient()
	if err != nil {
		return err
	}

	me, err := client.Me(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(me, true)
	}
	return r.writePlain("%s", ui.Profile(me))
}

// SpotifyPlaylists lists every playlist of the current user.
func (r *Runner) SpotifyPlaylists(ctx context.Context, cmd *cli.Command) error {
	client, err := r.spotifyClient()
	if err != nil {
		return err
	}

	playlists, err := client.Playlists(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, true)
	}
	return r.writePlain("%s", ui.Playlists(playlists))
}

// SpotifyTracks lists the tracks of one playlist.
func (r *Runner) SpotifyTracks(ctx context.Context, cmd *cli.Command) error {
	playlist := cmd.StringArg("playlist")
	if playlist == "" {
		return fmt.Errorf("%w: playlist id, URI or URL", shared.ErrMissingArgument)
	}

	client, err := r.spotifyClient()
	if err != nil {
		return err
	}

	tracks, err := client.PlaylistDescriptors(ctx, playlist, int(cmd.Int("max")))
	if err != nil {
		return err
	}
	return r.emitTracks(cmd, "Playlist "+playlist, tracks)
}

// SpotifyLiked lists saved tracks.
func (r *Runner) SpotifyLiked(ctx context.Context, cmd *cli.Command) error {
	client, err := r.spotifyClient()
	if err != nil {
		return err
	}

	tracks, err := client.LikedDescriptors(ctx, int(cmd.Int("max")))
	if err != nil {
		return err
	}
	return r.emitTracks(cmd, "Liked Songs", tracks)
}

func (r *Runner) emitTracks(cmd *cli.Command, title string, tracks []models.TrackDescriptor) error {
	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteCatalog(r.fs, path, tracks); err != nil {
			return err
		}
		return r.writePlain("%s\n", ui.Success(fmt.Sprintf("Wrote %d tracks to %s", len(tracks), path)))
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"tracks": tracks}, true)
	}
	return r.writePlain("%s", ui.TrackList(title, tracks))
}
