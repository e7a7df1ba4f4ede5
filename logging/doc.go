// Package logging provides a minimal logging interface and adapters for agentloom.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that runners, agents, flows and plugins use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "text"})
//	r := runner.New("app", root, func(o *runner.Options) { o.Logger = logger })
package logging
