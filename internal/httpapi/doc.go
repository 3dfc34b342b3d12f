// Package httpapi serves a small read-only HTTP API over the running bar:
// health, the rendered line, the scheduler queue, run history and
// Prometheus metrics. Optional pprof endpoints mount under /debug.
package httpapi
