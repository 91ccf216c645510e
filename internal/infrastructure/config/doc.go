// Package config provides 12-factor configuration for the jsGist server.
//
// Configuration is loaded from environment variables with defaults. A YAML
// or TOML file named by JSGIST_CONFIG is applied on top.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Runner: runner environment, transport, timeouts
//   - Gist: gist API, auth token, cache
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Environment Variables:
//   - PORT, HOST
//   - RUNNER_ENV, RUNNER_MODE, RUNNER_BINARY, RUNNER_TIMEOUT
//   - GIST_API_URL, GIST_TOKEN, GIST_CACHE_TTL
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST
package config
