// Package main is the jsGist server.
//
// It hosts editor workspaces, each owning a sandbox controller that runs
// gists in an isolated runner and streams their console output back.
//
//	Editor (browser / WebSocket client) → server → runner (goroutine or jsgist-runner process)
//
// The server provides:
//   - REST API for workspaces: create, run, stop, load, fork, logs
//   - WebSocket streaming of consolidated logs at /stream
//   - The runner bootstrap script at /jsgist-runner.js
//   - Prometheus metrics at /metrics
//
// Configuration comes from the environment (see internal/infrastructure/config)
// with an optional YAML or TOML file named by JSGIST_CONFIG. Flags override
// both.
//
// Usage:
//
//	./server -port 8080
//	RUNNER_MODE=process RUNNER_BINARY=./jsgist-runner ./server
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
