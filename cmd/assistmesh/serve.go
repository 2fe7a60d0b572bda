package main

import (
	"context"

	"github.com/hupe1980/assistmesh/server"
	"github.com/hupe1980/assistmesh/telemetry"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides server.addr)."`
}

func (c *ServeCmd) Run(ctx context.Context, cli *CLI) error {
	cfg, logger, err := cli.loadConfig()
	if err != nil {
		return err
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Metrics {
		metrics = telemetry.NewMetrics()
	}

	_, shutdown, err := telemetry.NewTracerProvider(func(o *telemetry.TracingOptions) {
		o.Enabled = cfg.Telemetry.Tracing
		o.ServiceName = cfg.Telemetry.ServiceName
		o.Version = version()
	})
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	a, err := build(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := cfg.Server.Addr
	if c.Addr != "" {
		addr = c.Addr
	}

	srv := server.New(a, func(o *server.Options) {
		o.AllowedOrigins = cfg.Server.AllowedOrigins
		o.Logger = logger
		if cfg.Server.RequestTimeout > 0 {
			o.RequestTimeout = cfg.Server.RequestTimeout
		}
		if metrics != nil {
			o.Metrics = metrics.Handler()
		}
	})

	return srv.ListenAndServe(ctx, addr)
}
