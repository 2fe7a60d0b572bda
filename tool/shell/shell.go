// Package shell provides the run_shell_command tool.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/tool"
)

// Name is the tool name.
const Name = "run_shell_command"

// Options configures the shell tool.
type Options struct {
	// Dir is the working directory for commands. Empty uses the process cwd.
	Dir string

	// Timeout bounds each command (default 30s).
	Timeout time.Duration

	// Tail limits the output to the last N lines (default 50).
	Tail int

	// Allow restricts executables when non-empty.
	Allow []string
}

type shellArgs struct {
	Args []string `json:"args" jsonschema:"description=The command to run as a list of strings (program followed by arguments)"`
}

// New returns the run_shell_command tool.
func New(optFns ...func(o *Options)) tool.Tool {
	opts := Options{Timeout: 30 * time.Second, Tail: 50}
	for _, fn := range optFns {
		fn(&opts)
	}

	return tool.NewTypedTool(Name, "Runs a shell command and returns the output or error. The command is given as a list of arguments, no shell expansion is performed.",
		func(tc *core.ToolContext, args shellArgs) (any, error) {
			return run(tc, opts, args.Args)
		})
}

func run(tc *core.ToolContext, opts Options, args []string) (string, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", &tool.ToolArgumentError{Tool: Name, Message: "args must name a program"}
	}

	if len(opts.Allow) > 0 && !allowed(opts.Allow, args[0]) {
		return "", fmt.Errorf("command %q is not allowed", args[0])
	}

	ctx, cancel := context.WithTimeout(tc.Context(), opts.Timeout)
	defer cancel()

	tc.LogInfo("tool.shell.exec", "program", args[0], "argc", len(args)-1)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = opts.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("command timed out after %s", opts.Timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("command failed: %s", tail(msg, opts.Tail))
	}

	return tail(stdout.String(), opts.Tail), nil
}

func allowed(allow []string, program string) bool {
	for _, a := range allow {
		if a == program {
			return true
		}
	}
	return false
}

// tail keeps the last n lines of s.
func tail(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if n <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
