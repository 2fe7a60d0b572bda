package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// RunsCmd lists run ids for a user.
type RunsCmd struct {
	User   string `help:"User id." default:"cli" env:"USER"`
	Output string `short:"o" help:"Output format." enum:"text,json,yaml" default:"text"`
}

func (c *RunsCmd) Run(ctx context.Context, cli *CLI) error {
	a, _, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ids, err := a.ListRuns(ctx, c.User)
	if err != nil {
		return err
	}

	if c.Output != "text" {
		return printValue(os.Stdout, c.Output, map[string]any{"user_id": c.User, "run_ids": ids})
	}
	for _, id := range ids {
		fmt.Fprintln(os.Stdout, id)
	}
	return nil
}

// HistoryCmd prints the turns of a run.
type HistoryCmd struct {
	RunID  string `arg:"" name:"run-id" help:"Run id."`
	Output string `short:"o" help:"Output format." enum:"text,json,yaml" default:"text"`
}

func (c *HistoryCmd) Run(ctx context.Context, cli *CLI) error {
	a, _, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	turns, err := a.History(ctx, c.RunID)
	if err != nil {
		return err
	}

	if c.Output != "text" {
		return printValue(os.Stdout, c.Output, turns)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, t := range turns {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Timestamp.Local().Format(time.DateTime), t.Role, t.Content)
	}
	return w.Flush()
}

// ClearCmd deletes the knowledge base collection.
type ClearCmd struct {
	Yes bool `short:"y" help:"Do not ask for confirmation."`
}

func (c *ClearCmd) Run(ctx context.Context, cli *CLI) error {
	a, _, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Knowledge == nil {
		return errors.New("knowledge base is disabled")
	}

	if !c.Yes {
		fmt.Fprintf(os.Stderr, "Delete all documents in %s? [y/N] ", a.Knowledge.Collection())
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if reply := strings.ToLower(strings.TrimSpace(answer)); reply != "y" && reply != "yes" {
			return errors.New("aborted")
		}
	}

	if err := a.ClearKnowledge(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "cleared %s\n", a.Knowledge.Collection())
	return nil
}
