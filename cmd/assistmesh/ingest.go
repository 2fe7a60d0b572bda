package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/assistmesh/assistant"
	"github.com/hupe1980/assistmesh/knowledge/reader"
	"github.com/hupe1980/assistmesh/logging"
)

// IngestCmd adds files to the knowledge base.
type IngestCmd struct {
	Paths    []string `arg:"" help:"Files or directories to ingest." type:"existingpath"`
	NoUpsert bool     `name:"no-upsert" help:"Skip documents whose source is already stored instead of replacing them."`
	Watch    bool     `help:"Keep running and ingest files as they are created or changed in the given directories."`
}

func (c *IngestCmd) Run(ctx context.Context, cli *CLI) error {
	a, logger, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := reader.ReadPaths(ctx, c.Paths...)
	if err != nil {
		return err
	}

	n, err := a.Ingest(ctx, docs, !c.NoUpsert)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "ingested %d of %d documents into %s\n", n, len(docs), a.Knowledge.Collection())

	if !c.Watch {
		return nil
	}

	return c.watch(ctx, a, logger)
}

func (c *IngestCmd) watch(ctx context.Context, a *assistant.Assistant, logger logging.Logger) error {
	onChange := func(ctx context.Context, paths []string) {
		docs, err := reader.ReadPaths(ctx, paths...)
		if err != nil {
			logger.Warn("ingest.watch.read_failed", "error", err.Error())
			return
		}

		// Changed files must replace their previous chunks.
		n, err := a.Ingest(ctx, docs, true)
		if err != nil {
			logger.Error("ingest.watch.failed", "error", err.Error())
			return
		}
		logger.Info("ingest.watch.ingested", "documents", n, "paths", paths)
	}

	errCh := make(chan error, len(c.Paths))
	watched := 0
	for _, p := range c.Paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			continue
		}
		watched++
		go func(dir string) {
			errCh <- reader.Watch(ctx, dir, onChange, func(o *reader.WatchOptions) { o.Logger = logger })
		}(p)
	}

	if watched == 0 {
		return errors.New("--watch requires at least one directory")
	}

	fmt.Fprintf(os.Stderr, "watching %d directories, press Ctrl+C to stop\n", watched)

	for i := 0; i < watched; i++ {
		if err := <-errCh; err != nil {
			return err
		}
	}
	return nil
}
