package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmoni/internal/auth"
	"github.com/desertthunder/harmoni/internal/library"
	"github.com/desertthunder/harmoni/internal/repositories"
	"github.com/desertthunder/harmoni/internal/services"
	"github.com/desertthunder/harmoni/internal/shared"
	"github.com/desertthunder/harmoni/internal/tasks"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
	fs         afero.Fs
	now        func() time.Time

	endpoints   Endpoints
	downloader  library.Downloader
	openBrowser func(string) error
	interactive func() bool
	signals     func() (<-chan os.Signal, func())
}

// Endpoints overrides the Spotify URLs; empty fields use the real service.
type Endpoints struct {
	AuthURL  string
	TokenURL string
	APIURL   string
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	Input       io.Reader
	Fs          afero.Fs
	Now         func() time.Time
	Endpoints   Endpoints
	Downloader  library.Downloader
	OpenBrowser func(string) error
	Interactive func() bool
	// Signals subscribes to interrupts for the auth flow; the func stops the subscription.
	Signals func() (<-chan os.Signal, func())
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}
	if opts.Interactive == nil {
		opts.Interactive = stdinIsTerminal
	}
	if opts.Signals == nil {
		opts.Signals = notifySignals
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		input:       opts.Input,
		fs:          opts.Fs,
		now:         opts.Now,
		endpoints:   opts.Endpoints,
		downloader:  opts.Downloader,
		openBrowser: opts.OpenBrowser,
		interactive: opts.Interactive,
		signals:     opts.Signals,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		initCommand, spotifyCommand, syncCommand, libraryCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before loads the configuration named by --config unless one was injected.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	if path := cmd.String("config"); path != "" && r.configPath == "" {
		r.configPath = path
	}
	if r.config != nil {
		return ctx, nil
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(r.configPath); err == nil {
		if config, err = shared.LoadConfig(r.configPath); err != nil {
			return ctx, err
		}
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		config.ApplyEnv()
	}
	r.config = config
	return ctx, nil
}

// cfg returns the loaded config, falling back to defaults when no Before hook ran.
func (r *Runner) cfg() *shared.Config {
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}
	return r.config
}

func (r *Runner) authenticator() (*auth.Authenticator, error) {
	config := r.cfg()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	dir, err := config.ResolveTokenDir()
	if err != nil {
		return nil, err
	}

	store := auth.NewTokenStoreFs(r.fs, dir, config.Storage.Profile, r.logger)
	store.SetClock(r.now)

	return auth.NewAuthenticator(auth.Options{
		ClientID:     config.Spotify.ClientID,
		ClientSecret: config.Spotify.ClientSecret,
		RedirectURI:  config.Spotify.RedirectURI,
		Scopes:       config.Spotify.Scopes,
		ShowDialog:   config.Spotify.ShowDialog,
		AutoRefresh:  config.Spotify.AutoRefresh,
		AuthURL:      r.endpoints.AuthURL,
		TokenURL:     r.endpoints.TokenURL,
		HTTPClient:   r.httpClient,
	}, store, r.logger), nil
}

func (r *Runner) spotifyClient() (*services.Client, error) {
	a, err := r.authenticator()
	if err != nil {
		return nil, err
	}

	c := r.cfg().Client
	opts := services.ClientOptions{
		BaseURL:           r.endpoints.APIURL,
		MaxRetries:        c.MaxRetries,
		BackoffBase:       shared.Seconds(c.BackoffBase),
		MaxBackoff:        shared.Seconds(c.MaxBackoff),
		NetworkMaxBackoff: shared.Seconds(c.NetworkMaxBackoff),
		RetryJitter:       shared.Seconds(c.RetryJitter),
		NoJitter:          c.RetryJitter < 0,
		Timeout:           shared.Seconds(c.Timeout),
		RequestsPerSecond: c.RequestsPerSecond,
	}
	if r.httpClient != http.DefaultClient {
		opts.HTTPClient = r.httpClient
	}
	return services.NewClient(a, opts, r.logger), nil
}

// syncEngine opens the catalog database; the returned func closes it.
func (r *Runner) syncEngine() (*tasks.SyncEngine, func(), error) {
	config := r.cfg()

	db, err := shared.OpenDatabase(config.Storage.Database)
	if err != nil {
		return nil, nil, err
	}

	var opts []tasks.Option
	if config.Sync.CatalogJSON != "" {
		opts = append(opts, tasks.WithCatalogExport(config.Sync.CatalogJSON))
	}
	opts = append(opts, tasks.WithClock(r.now))

	engine := tasks.NewSyncEngine(r.fs, repositories.NewSyncStore(db), r.logger, opts...)
	return engine, func() { db.Close() }, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
