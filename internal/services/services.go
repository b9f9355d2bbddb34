package services

import (
	"context"
	"time"

	"github.com/desertthunder/ytmirror/internal/models"
	"golang.org/x/oauth2"
)

// Catalog supplies the remote side of a sync: the user's playlists and their ordered track lists.
//
// Implementations must flatten upstream pagination and drop tracks that cannot be matched
// (no name, no artist, or local files).
type Catalog interface {
	// ListOwnedPublicPlaylists returns public playlists owned by the authenticated user.
	ListOwnedPublicPlaylists(ctx context.Context) ([]models.Playlist, error)

	// ListTracks returns every track of the playlist at playlistURL in playlist order.
	ListTracks(ctx context.Context, playlistURL string) ([]models.Track, error)

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}

// OAuthService extends [Catalog] for OAuth providers that support server-side authentication flows.
type OAuthService interface {
	Catalog

	// GetOAuthConfig returns the OAuth2 configuration for this service.
	GetOAuthConfig() *oauth2.Config

	// GetAuthURL returns the OAuth2 authorization URL for the given state token.
	GetAuthURL(state string) string

	// OAuthenticate authenticates using a previously obtained token, refreshing it when needed.
	OAuthenticate(ctx context.Context, token *oauth2.Token) error
}

// Auth is the credential context handed to the media backend for each download.
//
// At most one source is used: a cookies file takes precedence over browser cookies.
type Auth struct {
	CookiesFile        string
	CookiesFromBrowser string
}

// Source describes where cookies come from, for logging.
func (a Auth) Source() string {
	switch {
	case a.CookiesFile != "":
		return "file:" + a.CookiesFile
	case a.CookiesFromBrowser != "":
		return "browser:" + a.CookiesFromBrowser
	default:
		return "none"
	}
}

// Constraints bound a single backend fetch.
type Constraints struct {
	// MaxDuration rejects candidate videos at or above this length before download.
	MaxDuration time.Duration
	// OutputTemplate is the destination path without extension.
	OutputTemplate string
	Auth           Auth
}

// Media describes a completed download.
type Media struct {
	Path     string
	Duration time.Duration // zero when unknown
}

// Backend searches the video platform for query, downloads the best audio stream and
// transcodes it to MP3 at c.OutputTemplate.
//
// On failure it returns a [*BackendError] carrying the raw message and leaves no partial
// files behind.
type Backend interface {
	Fetch(ctx context.Context, query string, c Constraints) (Media, error)
}

// BackendError is a download failure with the backend's error text preserved verbatim.
type BackendError struct {
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	return e.Message
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Tagger writes catalog metadata into a downloaded file.
type Tagger interface {
	Tag(path string, track models.Track) error
}
