package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/hupe1980/assistmesh/backend"
)

// ResolveCmd shows backend selection without constructing anything.
type ResolveCmd struct {
	Kind   string `arg:"" help:"Backend kind." enum:"llm,embedder,vector_store"`
	Name   string `arg:"" optional:"" help:"Name to resolve. Lists the priority table when empty."`
	Output string `short:"o" help:"Output format." enum:"text,json,yaml" default:"text"`
}

func (c *ResolveCmd) Run() error {
	r := backend.NewDefault()
	kind := backend.Kind(c.Kind)

	if c.Name == "" {
		entries := r.Entries(kind)
		if c.Output != "text" {
			return printValue(os.Stdout, c.Output, entries)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PRIORITY\tBACKEND\tKEYWORDS\tDESCRIPTION")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Priority, e.Backend, strings.Join(e.Keywords, ","), e.Description)
		}
		return w.Flush()
	}

	selected, err := r.Select(kind, c.Name)
	if err != nil {
		return err
	}

	if c.Output != "text" {
		return printValue(os.Stdout, c.Output, map[string]string{"kind": c.Kind, "name": c.Name, "backend": selected})
	}
	fmt.Fprintln(os.Stdout, selected)
	return nil
}
