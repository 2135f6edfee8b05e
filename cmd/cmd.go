// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/harmoni/internal/tasks"
	"github.com/urfave/cli/v3"
)

func rootFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
			Sources: cli.EnvVars("HARMONI_CONFIG"),
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable debug logging",
		},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}
}

func maxFlag() cli.Flag {
	return &cli.IntFlag{Name: "max", Usage: "Maximum number of tracks to keep (0 for all)"}
}

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Write tracks to a .json, .csv or .txt file",
	}
}

func dirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "dir",
		Aliases: []string{"d"},
		Usage:   "Directory of Exportify CSV files (default: sync.watch_dir)",
	}
}

func sourceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "source",
		Aliases: []string{"s"},
		Usage:   "Read tracks from a catalog JSON or Exportify CSV instead of the catalog database",
	}
}

func playlistFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "playlist",
		Aliases: []string{"p"},
		Usage:   "Download into a sub-folder named after this playlist",
	}
}

// initCommand writes a starter config and prepares the catalog database.
func initCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Create config.toml from the template and initialize the catalog database",
		Action: r.Init,
	}
}

// spotifyCommand handles Spotify authentication and library reads
func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Spotify account operations",
		Commands: []*cli.Command{
			{
				Name:  "auth",
				Usage: "Authorize with Spotify using OAuth2 PKCE",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL without opening a browser",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser redirect",
					},
				},
				Action: r.SpotifyAuth,
			},
			{
				Name:   "logout",
				Usage:  "Delete the cached token for the current profile",
				Action: r.SpotifyLogout,
			},
			{
				Name:   "status",
				Usage:  "Show credential and token status with setup instructions",
				Action: r.SpotifyStatus,
			},
			{
				Name:   "me",
				Usage:  "Show the current user's profile",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.SpotifyMe,
			},
			{
				Name:   "playlists",
				Usage:  "List the current user's playlists",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.SpotifyPlaylists,
			},
			{
				Name:  "tracks",
				Usage: "List a playlist's tracks",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "playlist", UsageText: "playlist id, URI or URL"},
				},
				Flags:  []cli.Flag{maxFlag(), outputFlag(), jsonFlag()},
				Action: r.SpotifyTracks,
			},
			{
				Name:   "liked",
				Usage:  "List saved (liked) tracks",
				Flags:  []cli.Flag{maxFlag(), outputFlag(), jsonFlag()},
				Action: r.SpotifyLiked,
			},
		},
	}
}

// syncCommand handles the Exportify CSV catalog
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Ingest Exportify CSV exports into the track catalog",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Sync new and modified CSV files",
				Flags:  []cli.Flag{dirFlag(), jsonFlag()},
				Action: r.SyncRun,
			},
			{
				Name:   "status",
				Usage:  "Show last sync time and pending files",
				Flags:  []cli.Flag{dirFlag(), jsonFlag()},
				Action: r.SyncStatus,
			},
			{
				Name:   "clear",
				Usage:  "Forget synced files so the next run re-reads every CSV",
				Action: r.SyncClear,
			},
			{
				Name:  "watch",
				Usage: "Sync on file changes and on an interval until interrupted",
				Flags: []cli.Flag{
					dirFlag(),
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "Periodic sync interval (default: sync.interval, 0 disables)",
						Value: -1,
					},
					&cli.DurationFlag{
						Name:  "debounce",
						Usage: "Wait for writes to settle before syncing",
						Value: tasks.DefaultDebounce,
					},
				},
				Action: r.SyncWatch,
			},
			{
				Name:  "export",
				Usage: "Write the catalog to a .json, .csv or .txt file",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Action: r.SyncExport,
			},
		},
	}
}

// libraryCommand reconciles tracks with files on disk and downloads the rest
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "library",
		Aliases: []string{"lib"},
		Usage:   "Compare tracks with downloaded files",
		Commands: []*cli.Command{
			{
				Name:   "pending",
				Usage:  "List tracks not yet downloaded",
				Flags:  []cli.Flag{sourceFlag(), playlistFlag(), jsonFlag()},
				Action: r.LibraryPending,
			},
			{
				Name:  "download",
				Usage: "Download pending tracks with the configured downloader",
				Flags: []cli.Flag{
					sourceFlag(),
					playlistFlag(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Download at most this many tracks (0 for all)",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Print the commands without running them",
					},
				},
				Action: r.LibraryDownload,
			},
		},
	}
}
