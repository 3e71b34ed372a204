// Package observability provides structured JSON logging built on slog and
// Prometheus metrics on a private registry, plus context propagation for
// request and session IDs.
package observability
