// Command assistmesh runs and talks to a configured assistant.
//
// Usage:
//
//	assistmesh serve --config assistmesh.yaml
//	assistmesh chat --run 3f2c... --user alice
//	assistmesh ask "What's 2+3?"
//	assistmesh ingest ./docs --watch
//	assistmesh resolve llm claude-3-haiku-20240307
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// CLI defines the command-line interface.
type CLI struct {
	Config string `short:"c" help:"Path to the YAML config file." type:"path" env:"ASSISTMESH_CONFIG"`
	Debug  bool   `help:"Enable debug logging."`

	Serve   ServeCmd   `cmd:"" help:"Start the HTTP server."`
	Chat    ChatCmd    `cmd:"" help:"Chat interactively on a new or resumed run."`
	Ask     AskCmd     `cmd:"" help:"Send one message and print the answer."`
	Ingest  IngestCmd  `cmd:"" help:"Add files to the knowledge base."`
	Runs    RunsCmd    `cmd:"" help:"List run ids for a user."`
	History HistoryCmd `cmd:"" help:"Print the turns of a run."`
	Clear   ClearCmd   `cmd:"" help:"Delete all knowledge base documents."`
	Resolve ResolveCmd `cmd:"" help:"Show which backend a name selects."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// VersionCmd prints the module version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("assistmesh %s\n", version())
	return nil
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	// Loaded before parsing so .env can provide flag defaults such as
	// ASSISTMESH_CONFIG.
	if err := loadEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("assistmesh"),
		kong.Description("Assistant orchestration over pluggable model, embedding and vector store backends."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.FatalIfErrorf(kctx.Run(&cli))
}

// loadEnv loads dotenv files. Missing files are skipped and variables
// already set in the environment win.
func loadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}
