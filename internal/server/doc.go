// Package server provides HTTP routing, middleware, and OAuth callback
// handling for the CLI login flow.
//
// The [Router] interface defines HTTP routing with middleware support;
// [Middleware] wraps handlers in reverse order (last added executes first),
// following the standard Go pattern. The [BasicRouter] implementation uses
// [http.ServeMux] internally with method filtering.
//
// [OAuthHandler] implements the OAuth2 authorization code callback: it
// validates the state parameter (CSRF protection), exchanges the
// authorization code for tokens, and sends the result through a channel.
// Only one callback is processed per handler to prevent replay.
//
// When the user runs `tidesync spotify auth`, a temporary HTTP server starts
// on localhost, handles the callback, and shuts down after receiving the
// token. Tidal uses the device code flow and needs no callback server.
package server
