// Command hamcontestlog ingests amateur radio contest logs and Reverse Beacon
// Network spots into a SQL store.
//
// Usage:
//
//	hamcontestlog log --edition cw2024 <path|url>...
//	hamcontestlog contest <name> --year 2024 --mode cw [--call EF6T]...
//	hamcontestlog rbn [--day 2024-11-23] [--days 1]
//	hamcontestlog stations <edition>
//	hamcontestlog query <sql>
//	hamcontestlog serve
//
// Settings come from the environment, optionally seeded from a .env file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

const usage = `usage: hamcontestlog <command> [flags]

commands:
  log       parse and store Cabrillo logs from paths or URLs
  contest   ingest the public logs of a contest edition
  rbn       ingest daily Reverse Beacon Network archives
  stations  list contacts per station for an edition
  query     run a read-only SQL query against the store
  serve     run the HTTP API and the daily RBN scheduler
`

type command func(ctx context.Context, args []string) error

var commands = map[string]command{
	"log":      runLog,
	"contest":  runContest,
	"rbn":      runRBN,
	"stations": runStations,
	"query":    runQuery,
	"serve":    runServe,
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(os.Stderr, usage)
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return cmd(ctx, args[1:])
}
