// Package plugin provides ready-made observability plugins for the
// interceptor chain: LoggingPlugin (structured logs), TracingPlugin
// (OpenTelemetry spans) and MetricsPlugin (Prometheus collectors).
//
// None of them ever short-circuits a chain: every hook returns a nil result.
// Register them on a runner through runner.Options.Plugins.
package plugin
