// Package services wraps the external collaborators the sync engine talks to.
//
// # Catalog
//
// [Catalog] supplies playlists and their tracks. [SpotifyService] implements it over the Spotify Web
// API using OAuth2 with automatic token refresh; refreshed tokens are reported through
// [SpotifyService.SetTokenRefreshCallback] so the CLI can persist them. Requests are paced with a
// token-bucket limiter and every paginated endpoint is flattened into a single ordered slice.
//
// # Media Backend
//
// [Backend] turns a search query into a transcoded audio file. [Ytdlp] drives the yt-dlp binary
// through an [Executor], so tests never spawn a process. Failures come back as [*BackendError] with
// the raw error text intact; classification is left to the caller.
//
// # Tagging
//
// [ID3Tagger] writes title, artist, album and the catalog URL into downloaded MP3 files.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : OAuthenticate() not called
//   - [shared.ErrTokenExpired] : OAuth token rejected, reauthorization needed
//   - [shared.ErrRateLimited] : catalog returned 429
//   - [shared.ErrAPIRequest] : HTTP request failed
//   - [shared.ErrPlaylistNotFound] : playlist ID not found
package services
