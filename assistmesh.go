// Package assistmesh is the entry point for embedding an assistant in a Go
// program. Most applications:
//  1. Load a configuration file (or build a config.Config in code)
//  2. Open an assistant from it
//  3. Send messages through HandleMessage and read the run history
//
// Backends are chosen by keyword from the model names in the configuration,
// so switching from OpenAI to Anthropic or Groq is a one-line config change.
package assistmesh

import (
	"context"
	"fmt"

	"github.com/hupe1980/assistmesh/assistant"
	"github.com/hupe1980/assistmesh/backend"
	"github.com/hupe1980/assistmesh/config"
	"github.com/hupe1980/assistmesh/logging"
	"github.com/hupe1980/assistmesh/runstore"
	"github.com/hupe1980/assistmesh/telemetry"
)

// Assistant is a built assistant. Close releases its stores.
type Assistant = assistant.Assistant

// Options configures Open and Load.
type Options struct {
	// Registry overrides the default backend registry.
	Registry *backend.Registry

	// Runs overrides the configured run store.
	Runs runstore.Store

	// Metrics records turns, tool calls and backend resolutions when set.
	Metrics *telemetry.Metrics

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Open builds an assistant from cfg.
func Open(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*Assistant, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	registry := opts.Registry
	if registry == nil {
		registry = backend.NewDefault(func(o *backend.Options) {
			o.Logger = opts.Logger
			if opts.Metrics != nil {
				o.OnResolve = opts.Metrics.ObserveResolve
			}
		})
	}

	a, err := assistant.Build(ctx, cfg, func(o *assistant.Options) {
		o.Registry = registry
		o.Runs = opts.Runs
		o.Metrics = opts.Metrics
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, fmt.Errorf("build assistant: %w", err)
	}
	return a, nil
}

// Load reads the configuration at path (empty for defaults plus environment)
// and opens the assistant it describes.
func Load(ctx context.Context, path string, optFns ...func(o *Options)) (*Assistant, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return Open(ctx, cfg, optFns...)
}
