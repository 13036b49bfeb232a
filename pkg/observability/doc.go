// Package observability provides structured logging, Prometheus metrics,
// health probes, and OpenTelemetry tracing for the console.
//
// Logging is JSON over stdlib slog with a small fluent wrapper (WithField,
// WithError). Request and session IDs travel through context and are folded
// into loggers by FromContext.
//
// Metrics cover the console's HTTP surface, login/session lifecycle, route
// guard decisions, platform API calls, the event socket, and internal caches.
// All metric names carry the console_ prefix.
//
// HealthChecker probes registered dependencies; the platform API is the only
// required one. Tracing exports spans over OTLP/gRPC when enabled.
package observability
