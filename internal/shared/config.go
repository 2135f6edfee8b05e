package shared

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

const appName = "harmoni"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Client  ClientConfig  `toml:"client"`
	Storage StorageConfig `toml:"storage"`
	Sync    SyncConfig    `toml:"sync"`
	Library LibraryConfig `toml:"library"`
}

// SpotifyConfig contains OAuth application settings.
type SpotifyConfig struct {
	ClientID        string   `toml:"client_id"`
	ClientSecret    string   `toml:"client_secret"`
	RedirectURI     string   `toml:"redirect_uri"`
	Scopes          []string `toml:"scopes"`
	AutoRefresh     bool     `toml:"auto_refresh"`
	ShowDialog      bool     `toml:"show_dialog"`
	CallbackTimeout float64  `toml:"callback_timeout"`
}

// ClientConfig tunes the Web API client's retry behavior. Durations are in seconds.
type ClientConfig struct {
	MaxRetries        int     `toml:"max_retries"`
	BackoffBase       float64 `toml:"backoff_base"`
	MaxBackoff        float64 `toml:"max_backoff"`
	NetworkMaxBackoff float64 `toml:"network_max_backoff"`
	RetryJitter       float64 `toml:"retry_jitter"`
	Timeout           float64 `toml:"timeout"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// StorageConfig locates the token cache and the catalog database.
type StorageConfig struct {
	TokenDir string `toml:"token_dir"`
	Profile  string `toml:"profile"`
	Database string `toml:"database"`
}

// SyncConfig contains CSV sync settings.
type SyncConfig struct {
	WatchDir    string  `toml:"watch_dir"`
	CatalogJSON string  `toml:"catalog_json"`
	Interval    float64 `toml:"interval"`
}

// LibraryConfig contains download destination and downloader command settings.
type LibraryConfig struct {
	OutputDir    string   `toml:"output_dir"`
	AudioFormat  string   `toml:"audio_format"`
	SleepBetween float64  `toml:"sleep_between"`
	Downloader   []string `toml:"downloader"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyEnv()
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes config as TOML and writes it to path.
func SaveConfig(path string, config *Config) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ApplyEnv overrides selected values from HARMONI_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("HARMONI_SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("HARMONI_PROFILE"); v != "" {
		c.Storage.Profile = v
	}
}

// Validate reports whether the Spotify section is usable for authentication.
func (c *Config) Validate() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientID == "your_spotify_client_id" {
		return fmt.Errorf("%w: spotify.client_id is not set", ErrMissingCredentials)
	}

	u, err := url.Parse(c.Spotify.RedirectURI)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: spotify.redirect_uri %q is not an http(s) URL", ErrInvalidConfig, c.Spotify.RedirectURI)
	}

	if c.Client.MaxRetries < 1 {
		return fmt.Errorf("%w: client.max_retries must be at least 1", ErrInvalidConfig)
	}

	return nil
}

// ResolveTokenDir returns the configured token directory, or <user config dir>/harmoni/tokens.
func (c *Config) ResolveTokenDir() (string, error) {
	if c.Storage.TokenDir != "" {
		return c.Storage.TokenDir, nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("getting user config dir: %w", err)
	}
	return filepath.Join(dir, appName, "tokens"), nil
}

// Seconds converts a fractional number of seconds from the config into a [time.Duration].
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
