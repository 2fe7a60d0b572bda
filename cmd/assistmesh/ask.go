package main

import (
	"context"
	"fmt"
	"os"
)

// AskCmd sends a single message.
type AskCmd struct {
	Message string `arg:"" help:"Message to send."`
	RunID   string `name:"run" help:"Run id; a new run is created when empty."`
	User    string `help:"User id." default:"cli" env:"USER"`
	Output  string `short:"o" help:"Output format." enum:"text,json,yaml" default:"text"`
}

func (c *AskCmd) Run(ctx context.Context, cli *CLI) error {
	a, _, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	reply, err := a.Handle(ctx, c.RunID, c.User, c.Message)
	if err != nil {
		return err
	}

	if c.Output == "text" {
		_, err = fmt.Fprintln(os.Stdout, reply.Text)
		return err
	}
	return printValue(os.Stdout, c.Output, reply)
}
