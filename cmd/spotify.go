package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/desertthunder/ytmirror/internal/formatter"
	"github.com/desertthunder/ytmirror/internal/models"
	"github.com/desertthunder/ytmirror/internal/registry"
	"github.com/desertthunder/ytmirror/internal/server"
	"github.com/desertthunder/ytmirror/internal/services"
	"github.com/desertthunder/ytmirror/internal/shared"
	"github.com/desertthunder/ytmirror/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// authTimeout bounds the wait for the browser callback.
const authTimeout = 2 * time.Minute

// playlistNamer is implemented by catalogs that can look up a playlist's display name.
type playlistNamer interface {
	PlaylistName(ctx context.Context, playlistURL string) (string, error)
}

// Auth performs OAuth2 authentication flow for Spotify.
//
// Starts a local HTTP server, opens browser for user authorization, and exchanges auth code for tokens.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	var oauthSrv services.OAuthService = r.spotify
	if oauthSrv == nil {
		svc, err := r.newSpotifyService()
		if err != nil {
			return err
		}
		oauthSrv = svc
	}

	token, err := r.doOAuth(ctx, oauthSrv, "authorization")
	if err != nil {
		return err
	}

	if err := r.saveToken(token); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to %s\n\n", r.configPath)
	r.writePlain("You can now use: ytmirror playlists\n")

	return nil
}

// reauthorize replaces a rejected token and re-authenticates catalog with the new one.
func (r *Runner) reauthorize(ctx context.Context, catalog services.OAuthService) error {
	token, err := r.doOAuth(ctx, catalog, "reauthorization")
	if err != nil {
		return err
	}

	if err := r.saveToken(token); err != nil {
		return err
	}
	r.writePlain("✓ New tokens saved to %s\n", r.configPath)

	if err := catalog.OAuthenticate(ctx, token); err != nil {
		return fmt.Errorf("failed to authenticate with new tokens: %w", err)
	}
	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, oauthSrv services.OAuthService, prefix string) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	handler := server.NewOAuthHandler(oauthSrv.GetOAuthConfig(), state)
	addr := net.JoinHostPort(r.config.Server.Host, strconv.Itoa(r.config.Server.Port))
	srv := server.NewCallbackServer(addr, handler, r.logger)
	if err := srv.Start(); err != nil {
		return nil, err
	}
	r.logger.Infof("started OAuth server for %s at %v", prefix, addr)

	authURL := oauthSrv.GetAuthURL(state)
	r.writePlain("→ Opening browser for Spotify %s...\n", prefix)
	if err := r.openBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", authTimeout)

	result, err := srv.Wait(ctx, authTimeout)
	switch {
	case errors.Is(err, server.ErrCallbackTimeout):
		return nil, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, authTimeout)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	case result.Token == nil:
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}

	return result.Token, nil
}

// Playlists lists the authenticated user's public playlists.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	var playlists []models.Playlist
	err := r.withCatalog(ctx, func(c services.OAuthService) error {
		var err error
		playlists, err = c.ListOwnedPublicPlaylists(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, true)
	}

	r.writePlain("Found %d playlists:\n\n", len(playlists))
	return r.writePlain("%s\n", formatter.Playlists(playlists))
}

// Add registers a playlist URL under a folder named after the playlist.
func (r *Runner) Add(ctx context.Context, cmd *cli.Command) error {
	url := cmd.StringArg("url")
	if url == "" {
		return fmt.Errorf("%w: playlist URL is required", shared.ErrMissingArgument)
	}
	if _, err := services.PlaylistIDFromURL(url); err != nil {
		return err
	}

	reg, err := registry.Load(r.config.Paths.Registry)
	if err != nil {
		return err
	}

	name := cmd.String("name")
	if name == "" {
		err := r.withCatalog(ctx, func(c services.OAuthService) error {
			namer, ok := c.(playlistNamer)
			if !ok {
				return fmt.Errorf("%w: --name is required for %s", shared.ErrMissingArgument, c.Name())
			}
			var err error
			name, err = namer.PlaylistName(ctx, url)
			return err
		})
		if err != nil {
			return err
		}
	}

	folder := registry.FolderFor(r.config.Paths.MusicDir, name)
	if err := reg.Add(folder, url); err != nil {
		return err
	}
	if err := reg.Save(r.config.Paths.Registry); err != nil {
		return err
	}

	r.logger.Info("playlist registered", "folder", folder, "url", url)
	return r.writePlain("✓ Added %s → %s\n", name, folder)
}

// Registry prints registered playlists in sync order.
func (r *Runner) Registry(ctx context.Context, cmd *cli.Command) error {
	reg, err := registry.Load(r.config.Paths.Registry)
	if err != nil {
		return err
	}

	entries := reg.Filter(cmd.String("playlist"))
	if len(entries) == 0 {
		return r.writePlain("No playlists registered in %s\n", r.config.Paths.Registry)
	}
	return r.writePlain("%s\n", formatter.Registry(entries))
}

// Failures prints each playlist's failure log.
func (r *Runner) Failures(ctx context.Context, cmd *cli.Command) error {
	reg, err := registry.Load(r.config.Paths.Registry)
	if err != nil {
		return err
	}

	shown := 0
	for _, ref := range reg.Filter(cmd.String("playlist")) {
		dir, err := shared.ExpandHome(ref.Folder)
		if err != nil {
			return err
		}

		failed, err := tasks.ReadFailedTracks(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			r.logger.Warn("unreadable failure log", "folder", ref.Folder, "error", err)
			continue
		}
		if len(failed) == 0 {
			continue
		}

		shown++
		r.writePlain("%s (%d)\n", filepath.Base(dir), len(failed))
		r.writePlain("%s\n\n", formatter.FailedTracks(failed))
	}

	if shown == 0 {
		return r.writePlain("No failed tracks recorded\n")
	}
	return nil
}
