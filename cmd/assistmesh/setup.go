package main

import (
	"context"
	"os"

	"github.com/hupe1980/assistmesh"
	"github.com/hupe1980/assistmesh/assistant"
	"github.com/hupe1980/assistmesh/config"
	"github.com/hupe1980/assistmesh/logging"
	"github.com/hupe1980/assistmesh/telemetry"
)

// loadConfig reads the config and builds the logger it describes.
func (c *CLI) loadConfig() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	if c.Debug {
		level = logging.LogLevelDebug
	}

	logger := logging.New(func(o *logging.Options) {
		o.Level = level
		o.Format = cfg.Log.Format
		o.Output = os.Stderr
	})

	return cfg, logger, nil
}

// build assembles the assistant. Metrics may be nil.
func build(ctx context.Context, cfg *config.Config, logger logging.Logger, metrics *telemetry.Metrics) (*assistant.Assistant, error) {
	return assistmesh.Open(ctx, cfg, func(o *assistmesh.Options) {
		o.Logger = logger
		o.Metrics = metrics
	})
}

// open loads the config and builds the assistant without metrics.
func (c *CLI) open(ctx context.Context) (*assistant.Assistant, logging.Logger, error) {
	cfg, logger, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	a, err := build(ctx, cfg, logger, nil)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}
