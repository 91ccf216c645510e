/*
Package monitoring provides Prometheus metrics for the jsGist server.

# Overview

Each Metrics value owns a private registry, so tests and multiple servers in
one process never collide on metric names. The registry is exposed through
Handler.

# Metrics

- HTTP requests (latency, throughput, size) keyed by route template
- Sandbox sessions started, live, and their startup latency
- Messages dropped because they came from a replaced session
- Execution protocol traffic by direction and type
- Open workspaces and gist load outcomes
- WebSocket connections and messages

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics)
	// ... runner requests its code ...
	timer.Stop()
*/
package monitoring
