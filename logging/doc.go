// Package logging provides a minimal logging interface and adapters for assistmesh.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// that the orchestrator, agents, tools and backends use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ZerologAdapter wrapping github.com/rs/zerolog
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.New(func(o *logging.Options) {
//	  o.Level = logging.LogLevelDebug
//	  o.Format = "console"
//	})
//	orch := orchestrator.New(root, func(o *orchestrator.Options) { o.Logger = logger })
//
// Log messages are dotted event keys ("agent.run.start") followed by
// key/value pairs.
package logging
