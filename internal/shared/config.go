package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

const appName = "ytmirror"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	YouTube     YouTubeConfig     `toml:"youtube"`
	Sync        SyncConfig        `toml:"sync"`
	Paths       PathsConfig       `toml:"paths"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials and the most recent OAuth2 token.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
	TokenType    string `toml:"token_type"`
	Expiry       string `toml:"expiry"` // RFC 3339
}

// Update stores token in the configuration.
func (s *SpotifyConfig) Update(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidCredentials)
	}

	s.AccessToken = token.AccessToken
	s.TokenType = token.TokenType
	if token.RefreshToken != "" {
		s.RefreshToken = token.RefreshToken
	}
	if token.Expiry.IsZero() {
		s.Expiry = ""
	} else {
		s.Expiry = token.Expiry.UTC().Format(time.RFC3339)
	}
	return nil
}

// Token returns the stored OAuth2 token, or nil if none has been saved.
func (s SpotifyConfig) Token() *oauth2.Token {
	if s.AccessToken == "" && s.RefreshToken == "" {
		return nil
	}

	token := &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
	}
	if expiry, err := time.Parse(time.RFC3339, s.Expiry); err == nil {
		token.Expiry = expiry
	}
	return token
}

// Map returns the client credentials in the form accepted by the Spotify service constructor.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
	}
}

// YouTubeConfig controls the yt-dlp backend.
type YouTubeConfig struct {
	YtdlpPath              string `toml:"ytdlp_path"`
	CookiesFile            string `toml:"cookies_file"`
	CookiesFromBrowser     string `toml:"cookies_from_browser"`
	DownloadTimeoutSeconds int    `toml:"download_timeout_seconds"`
	AudioQuality           string `toml:"audio_quality"`
	SearchSuffix           string `toml:"search_suffix"`
}

// DownloadTimeout returns the per-download timeout.
func (y YouTubeConfig) DownloadTimeout() time.Duration {
	return Seconds(y.DownloadTimeoutSeconds)
}

// SyncConfig holds the pacing and throttle constants applied to every playlist in a session.
type SyncConfig struct {
	SongDelayMinSeconds      int  `toml:"song_delay_min_seconds"`
	SongDelayMaxSeconds      int  `toml:"song_delay_max_seconds"`
	PlaylistDelaySeconds     int  `toml:"playlist_delay_seconds"`
	FailurePauseSeconds      int  `toml:"failure_pause_seconds"`
	PauseThreshold           int  `toml:"pause_threshold"`
	AbortThreshold           int  `toml:"abort_threshold"`
	ThrottleWarnSeconds      int  `toml:"throttle_warn_seconds"`
	ThrottleEscalateSeconds  int  `toml:"throttle_escalate_seconds"`
	MaxDurationSeconds       int  `toml:"max_duration_seconds"`
	DurationToleranceSeconds int  `toml:"duration_tolerance_seconds"`
	MaxDownloads             int  `toml:"max_downloads"`
	TagFiles                 bool `toml:"tag_files"`
}

// PathsConfig locates the files ytmirror reads and writes.
type PathsConfig struct {
	Registry string `toml:"registry"`
	MusicDir string `toml:"music_dir"`
	LogDir   string `toml:"log_dir"`
	LockFile string `toml:"lock_file"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains settings for the local OAuth callback server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values from [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

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

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes config as TOML and writes it to path, replacing any existing file.
//
// The file holds OAuth tokens so it is written with owner-only permissions.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Resolve expands "~" in every configured path and fills empty paths with locations under
// the XDG base directories.
func (c *Config) Resolve() error {
	var err error

	for _, p := range []*string{&c.Paths.Registry, &c.Paths.MusicDir, &c.Paths.LogDir, &c.Paths.LockFile, &c.Database.Path} {
		if *p, err = ExpandHome(*p); err != nil {
			return err
		}
	}

	if c.Paths.MusicDir == "" {
		if c.Paths.MusicDir, err = ExpandHome(filepath.Join("~", "Music", "Spotify", "exports")); err != nil {
			return err
		}
	}

	if c.Paths.LogDir == "" {
		c.Paths.LogDir = filepath.Join(xdg.StateHome, appName, "logs")
	}

	if c.Paths.LockFile == "" {
		if c.Paths.LockFile, err = xdg.StateFile(filepath.Join(appName, "sync.lock")); err != nil {
			return fmt.Errorf("failed to resolve lock file: %w", err)
		}
	}

	if c.Database.Path == "" {
		if c.Database.Path, err = xdg.DataFile(filepath.Join(appName, appName+".db")); err != nil {
			return fmt.Errorf("failed to resolve database path: %w", err)
		}
	}

	return nil
}

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Seconds converts a whole number of seconds from the config file into a [time.Duration].
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
