// Spotify Web API implementation of [Catalog]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytmirror/internal/models"
	"github.com/desertthunder/ytmirror/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	playlistPageSize = 50
	trackPageSize    = 100
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Artists      []SpotifyArtist `json:"artists"`
	Album        SpotifyAlbum    `json:"album"`
	DurationMS   int             `json:"duration_ms"`
	IsLocal      bool            `json:"is_local"`
	ExternalURLs externalURLs    `json:"external_urls"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type simplePlaylistTracks struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Owner        Owner                `json:"owner"`
	Public       bool                 `json:"public"`
	Tracks       simplePlaylistTracks `json:"tracks"`
	ExternalURLs externalURLs         `json:"external_urls"`
}

// SpotifyPlaylistTrack represents a track within a playlist context.
//
// Track is nil for tracks that are no longer available.
type SpotifyPlaylistTrack struct {
	IsLocal bool          `json:"is_local"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPaginatedPlaylists represents a paginated response of playlists.
type SpotifyPaginatedPlaylists struct {
	Items []SpotifySimplePlaylist `json:"items"`
	Total int                     `json:"total"`
	Next  *string                 `json:"next"`
}

// SpotifyPaginatedPlaylistTracks represents a paginated response of playlist items.
type SpotifyPaginatedPlaylistTracks struct {
	Items []SpotifyPlaylistTrack `json:"items"`
	Total int                    `json:"total"`
	Next  *string                `json:"next"`
}

// SpotifyOption configures a [SpotifyService].
type SpotifyOption func(*SpotifyService)

// WithBaseURL points the service at a different API root (primarily for tests).
func WithBaseURL(u string) SpotifyOption {
	return func(s *SpotifyService) {
		if u != "" {
			s.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithRateLimit sets the steady request rate and burst sent to the API.
func WithRateLimit(r rate.Limit, burst int) SpotifyOption {
	return func(s *SpotifyService) {
		s.limiter = rate.NewLimiter(r, burst)
	}
}

// WithSpotifyLogger sets the logger used for request tracing.
func WithSpotifyLogger(l *log.Logger) SpotifyOption {
	return func(s *SpotifyService) {
		if l != nil {
			s.logger = l
		}
	}
}

// SpotifyService implements [OAuthService] for the Spotify Web API.
//
// Uses [oauth2] for authentication and a [rate.Limiter] to stay well below API quotas.
type SpotifyService struct {
	config         *oauth2.Config
	token          *oauth2.Token
	httpClient     *http.Client
	baseURL        string
	limiter        *rate.Limiter
	logger         *log.Logger
	userID         string
	onTokenRefresh func(*oauth2.Token) error
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string, opts ...SpotifyOption) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id in credentials", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret in credentials", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://127.0.0.1:3000/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"playlist-read-private",
			"playlist-read-collaborative",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	s := &SpotifyService{
		config:     config,
		httpClient: http.DefaultClient,
		baseURL:    spotifyBaseURL,
		limiter:    rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
		logger:     log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetOAuthConfig returns the OAuth2 configuration.
func (s *SpotifyService) GetOAuthConfig() *oauth2.Config {
	return s.config
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// SetTokenRefreshCallback registers fn to be called whenever the token source hands out a new token.
// An error from fn is logged and does not fail the request that triggered the refresh.
func (s *SpotifyService) SetTokenRefreshCallback(fn func(*oauth2.Token) error) {
	s.onTokenRefresh = fn
}

// OAuthenticate authenticates with a stored token. Expired access tokens are refreshed
// transparently using the refresh token.
func (s *SpotifyService) OAuthenticate(ctx context.Context, token *oauth2.Token) error {
	if token == nil || (token.AccessToken == "" && token.RefreshToken == "") {
		return fmt.Errorf("%w: no stored Spotify token, run `ytmirror auth`", shared.ErrNotAuthenticated)
	}

	source := &refreshableTokenSource{
		source:   s.config.TokenSource(ctx, token),
		callback: s.onTokenRefresh,
		logger:   s.logger,
		last:     token.AccessToken,
	}
	s.token = token
	s.httpClient = oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, source))
	s.userID = ""
	return nil
}

// refreshableTokenSource reports every new access token to callback.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(*oauth2.Token) error
	logger   *log.Logger
	mu       sync.Mutex
	last     string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := token.AccessToken != r.last
	r.last = token.AccessToken
	r.mu.Unlock()

	if changed && r.callback != nil {
		r.notify(token)
	}
	return token, nil
}

func (r *refreshableTokenSource) notify(token *oauth2.Token) {
	if err := r.callback(token); err != nil && r.logger != nil {
		r.logger.Warn("failed to persist refreshed token", "error", err)
	}
}

// doRequest performs an authenticated GET against the Spotify API and decodes the JSON body into result.
//
// endpoint may be a path relative to the API root or an absolute "next" URL from a paginated response.
func (s *SpotifyService) doRequest(ctx context.Context, endpoint string, result any) error {
	if s.token == nil {
		return fmt.Errorf("%w: call OAuthenticate first", shared.ErrNotAuthenticated)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	apiURL := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		apiURL = s.baseURL + endpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	s.logger.Debug("spotify request", "url", apiURL)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: %v", shared.ErrTokenExpired, err)
		}
		return fmt.Errorf("%w: request failed: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: status %d", shared.ErrTokenExpired, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, apiURL)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: retry after %s seconds", shared.ErrRateLimited, resp.Header.Get("Retry-After"))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: spotify API error: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
	}
	return nil
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, "/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SpotifyService) currentUserID(ctx context.Context) (string, error) {
	if s.userID != "" {
		return s.userID, nil
	}
	user, err := s.UserProfile(ctx)
	if err != nil {
		return "", err
	}
	s.userID = user.ID
	return s.userID, nil
}

// ListOwnedPublicPlaylists retrieves every playlist owned by the current user that is public.
func (s *SpotifyService) ListOwnedPublicPlaylists(ctx context.Context) ([]models.Playlist, error) {
	userID, err := s.currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	var playlists []models.Playlist
	endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=0", playlistPageSize)
	for endpoint != "" {
		var page SpotifyPaginatedPlaylists
		if err := s.doRequest(ctx, endpoint, &page); err != nil {
			return nil, err
		}

		for _, sp := range page.Items {
			if sp.Owner.ID != userID || !sp.Public {
				continue
			}
			playlists = append(playlists, models.Playlist{
				ID:          sp.ID,
				Name:        sp.Name,
				URL:         playlistURL(sp.ID, sp.ExternalURLs.Spotify),
				Owner:       sp.Owner.ID,
				TotalTracks: sp.Tracks.Total,
			})
		}

		endpoint = nextPage(page.Next)
	}

	return playlists, nil
}

// ListTracks retrieves every streamable track of a playlist, in playlist order.
func (s *SpotifyService) ListTracks(ctx context.Context, playlistRef string) ([]models.Track, error) {
	id, err := PlaylistIDFromURL(playlistRef)
	if err != nil {
		return nil, err
	}

	var tracks []models.Track
	endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=0&additional_types=track", url.PathEscape(id), trackPageSize)
	for endpoint != "" {
		var page SpotifyPaginatedPlaylistTracks
		if err := s.doRequest(ctx, endpoint, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if track, ok := convertTrack(item); ok {
				tracks = append(tracks, track)
			}
		}

		endpoint = nextPage(page.Next)
	}

	return tracks, nil
}

// PlaylistName returns the display name of a playlist.
func (s *SpotifyService) PlaylistName(ctx context.Context, playlistRef string) (string, error) {
	id, err := PlaylistIDFromURL(playlistRef)
	if err != nil {
		return "", err
	}

	var playlist struct {
		Name string `json:"name"`
	}
	if err := s.doRequest(ctx, fmt.Sprintf("/playlists/%s?fields=name", url.PathEscape(id)), &playlist); err != nil {
		return "", err
	}
	return playlist.Name, nil
}

// convertTrack maps a playlist item to a [models.Track], rejecting unavailable, local,
// nameless and artistless entries.
func convertTrack(item SpotifyPlaylistTrack) (models.Track, bool) {
	st := item.Track
	if st == nil || item.IsLocal || st.IsLocal || strings.TrimSpace(st.Name) == "" {
		return models.Track{}, false
	}

	artists := make([]string, 0, len(st.Artists))
	for _, a := range st.Artists {
		if name := strings.TrimSpace(a.Name); name != "" {
			artists = append(artists, name)
		}
	}
	if len(artists) == 0 {
		return models.Track{}, false
	}

	trackURL := st.ExternalURLs.Spotify
	if trackURL == "" && st.ID != "" {
		trackURL = "https://open.spotify.com/track/" + st.ID
	}

	return models.Track{
		Title:    st.Name,
		Artists:  artists,
		Album:    st.Album.Name,
		Duration: time.Duration(st.DurationMS) * time.Millisecond,
		URL:      trackURL,
	}, true
}

func nextPage(next *string) string {
	if next == nil {
		return ""
	}
	return *next
}

func playlistURL(id, external string) string {
	if external != "" {
		return external
	}
	return "https://open.spotify.com/playlist/" + id
}

// PlaylistIDFromURL extracts the playlist ID from an open.spotify.com URL, a spotify:playlist: URI
// or a bare ID.
func PlaylistIDFromURL(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty playlist reference", shared.ErrInvalidArgument)
	}

	if id, ok := strings.CutPrefix(ref, "spotify:playlist:"); ok {
		return validPlaylistID(id, ref)
	}

	if strings.Contains(ref, "://") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		for i := 0; i+1 < len(parts); i++ {
			if parts[i] == "playlist" {
				return validPlaylistID(parts[i+1], ref)
			}
		}
		return "", fmt.Errorf("%w: not a playlist URL: %s", shared.ErrInvalidArgument, ref)
	}

	return validPlaylistID(ref, ref)
}

func validPlaylistID(id, ref string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: missing playlist ID in %s", shared.ErrInvalidArgument, ref)
	}
	for _, r := range id {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return "", fmt.Errorf("%w: invalid playlist ID %q", shared.ErrInvalidArgument, id)
		}
	}
	return id, nil
}
