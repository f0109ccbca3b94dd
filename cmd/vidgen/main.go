// Package main provides the videogen command line client. It submits prompts
// through the proxy, polls jobs to completion, and manages the local history.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maauso/videogen/internal/bootstrap"
	"github.com/maauso/videogen/internal/config"
)

// errUsage is returned for malformed command lines.
var errUsage = errors.New("usage error")

const usage = `usage: vidgen <command> [flags]

commands:
  submit    submit one prompt and wait for the video
  batch     submit one prompt per line of a file
  history   list or clear the local history
  query     look up one job by id
  refresh   re-query every pending history entry
  token     set or clear the stored provider token
  models    show or reorder the model preference

Run "vidgen <command> -h" for the flags of a command.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// command is one subcommand.
type command func(ctx context.Context, app *app, args []string) error

var commands = map[string]command{
	"submit":  runSubmit,
	"batch":   runBatch,
	"history": runHistory,
	"query":   runQuery,
	"refresh": runRefresh,
	"token":   runToken,
	"models":  runModels,
}

// app is what every subcommand works with.
type app struct {
	*bootstrap.Client
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return errUsage
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cfg.NewLoggerTo(stderr)

	client, err := bootstrap.NewClient(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer client.Close()

	return cmd(ctx, &app{Client: client, stdout: stdout, stderr: stderr, logger: logger}, args[1:])
}

// printJSON writes v to stdout as indented JSON.
func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
