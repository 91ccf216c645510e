// Package middleware holds the gin middleware of the jsGist server: CORS,
// per-client rate limiting, request ids and access logging.
package middleware
