package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/hupe1980/assistmesh/orchestrator"
)

// ChatCmd runs an interactive conversation.
type ChatCmd struct {
	RunID string `name:"run" help:"Resume this run id instead of starting a new run."`
	User  string `help:"User id." default:"cli" env:"USER"`
}

func (c *ChatCmd) Run(ctx context.Context, cli *CLI) error {
	a, _, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	runID := c.RunID
	if runID == "" {
		if runID, err = a.CreateRun(ctx, c.User); err != nil {
			return err
		}
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Fprintf(os.Stderr, "run %s (type exit to quit)\n", runID)
	}

	return chatLoop(ctx, a.Orchestrator, runID, c.User, os.Stdin, os.Stdout, interactive)
}

// chatLoop reads one message per line until EOF or exit. Turn errors are
// printed and the loop continues.
func chatLoop(ctx context.Context, o *orchestrator.Orchestrator, runID, userID string, in io.Reader, out io.Writer, prompt bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		if prompt {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		reply, err := o.Handle(ctx, runID, userID, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}

		fmt.Fprintln(out, reply.Text)
	}
}
