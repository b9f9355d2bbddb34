// Package server runs the short-lived local HTTP server that receives the Spotify OAuth callback.
//
// # Routing
//
// The callback server routes through a small [http.ServeMux] wrapper that accepts only GET on the
// callback path, answering other methods with 405 so a stray request cannot consume the one-shot
// callback. [Middleware] runs in the order given, around the whole mux; [Logging] records each
// request through a charmbracelet logger without its query string.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback flow. It serves the path of the
// configured redirect URL, validates the state parameter (CSRF protection), exchanges the authorization
// code for tokens, and sends the result through a channel. It only processes one callback to prevent
// replay attacks.
//
// # Lifecycle
//
// [CallbackServer] starts the listener in the background for `ytmirror auth` (and for reauthorization
// when a stored token is rejected mid-command), then [CallbackServer.Wait] blocks until a callback
// arrives, the listener fails, or the timeout expires, and shuts the server down.
package server
