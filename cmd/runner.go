package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytmirror/internal/repositories"
	"github.com/desertthunder/ytmirror/internal/services"
	"github.com/desertthunder/ytmirror/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	loaded      bool
	verbose     bool
	spotify     services.OAuthService
	backend     services.Backend
	logger      *log.Logger
	logOutput   io.Writer
	output      io.Writer
	sleep       shared.SleepFunc
	now         func() time.Time
	openBrowser func(string) error
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A non-nil Config is used as is; otherwise the file named by --config is loaded before each command.
// Spotify and Backend replace the services built from the configuration.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Spotify     services.OAuthService
	Backend     services.Backend
	Logger      *log.Logger
	LogOutput   io.Writer
	Output      io.Writer
	Sleep       shared.SleepFunc
	Now         func() time.Time
	OpenBrowser func(string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	loaded := opts.Config != nil
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(opts.LogOutput)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Sleep == nil {
		opts.Sleep = shared.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		loaded:      loaded,
		spotify:     opts.Spotify,
		backend:     opts.Backend,
		logger:      opts.Logger,
		logOutput:   opts.LogOutput,
		output:      opts.Output,
		sleep:       opts.Sleep,
		now:         opts.Now,
		openBrowser: opts.OpenBrowser,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, playlistsCommand, addCommand, registryCommand, syncCommand, failuresCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before applies the global flags and loads the configuration.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		r.verbose = true
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if !r.loaded {
		r.config = r.loadConfig()
		r.loaded = true
	}

	if err := r.config.Resolve(); err != nil {
		return ctx, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}
	return ctx, nil
}

// loadConfig reads the config file, falling back to defaults when it is missing or broken.
func (r *Runner) loadConfig() *shared.Config {
	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		return shared.DefaultConfig()
	}

	config, err := shared.LoadConfig(r.configPath)
	if err != nil {
		r.logger.Warn("failed to load config, using defaults", "error", err)
		return shared.DefaultConfig()
	}
	return config
}

// catalog returns the Spotify service, authenticating with the stored token on first use.
func (r *Runner) catalog(ctx context.Context) (services.OAuthService, error) {
	if r.spotify != nil {
		return r.spotify, nil
	}

	svc, err := r.newSpotifyService()
	if err != nil {
		return nil, err
	}
	svc.SetTokenRefreshCallback(func(token *oauth2.Token) error {
		if err := r.saveToken(token); err != nil {
			return err
		}
		r.logger.Debug("refreshed Spotify token saved", "path", r.configPath)
		return nil
	})

	if err := svc.OAuthenticate(ctx, r.config.Credentials.Spotify.Token()); err != nil {
		return nil, err
	}

	r.spotify = svc
	return svc, nil
}

func (r *Runner) newSpotifyService() (*services.SpotifyService, error) {
	creds := r.config.Credentials.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrMissingCredentials, r.configPath)
	}

	svc, err := services.NewSpotifyService(creds.Map(), services.WithSpotifyLogger(r.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify service: %w", err)
	}
	return svc, nil
}

// withCatalog runs fn against the catalog. When the stored token is rejected it runs the
// OAuth flow once and retries.
func (r *Runner) withCatalog(ctx context.Context, fn func(services.OAuthService) error) error {
	catalog, err := r.catalog(ctx)
	if err != nil {
		return err
	}

	err = fn(catalog)
	if !errors.Is(err, shared.ErrTokenExpired) {
		return err
	}

	r.writePlainln("⚠ Spotify rejected the stored token. Starting reauthorization...")
	if err := r.reauthorize(ctx, catalog); err != nil {
		return fmt.Errorf("reauthorization failed: %w", err)
	}
	r.writePlain("✓ Successfully reauthenticated. Retrying operation...\n\n")

	return fn(catalog)
}

// saveToken stores token in the config file.
func (r *Runner) saveToken(token *oauth2.Token) error {
	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// openHistory opens the history database, applying pending migrations.
func (r *Runner) openHistory() (*repositories.History, func(), error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if _, err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repositories.NewHistory(db), func() { db.Close() }, nil
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
