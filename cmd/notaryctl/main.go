package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wolfman30/notary-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/notary-booking/internal/config"
	"github.com/wolfman30/notary-booking/pkg/logging"
)

const usage = `usage: notaryctl <command> [flags]

commands:
  dates        [-month YYYY-MM]           month calendar with blocked days
  slots        [-date YYYY-MM-DD]         time grid (for the date, if given)
  limit        [YYYY-MM-DD]               daily booking limit
  book         -date -time -type [-notes] [-custom] [-service] [-take-alternative]
  suggest      -date [-days]              alternative slots near a date
  appointments                            list your appointments
  cancel       -id [-reason]              cancel one appointment
  blackout     -date|-recurring [-reason] [-start -end] [-proceed | -cancel-reason -mode -ids -include-reason]
  watch-stats                             poll admin stats and serve the status endpoints
`

// errUsage signals a bad invocation (exit code 2).
var errUsage = errors.New("usage")

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.NewWithWriter(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := run(ctx, cfg, logger, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, args []string, out io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	app, err := bootstrap.Build(ctx, cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.Error("failed to build client", "error", err)
		return 1
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	if err := cmd(ctx, app, args[1:], out); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			return 2
		}
		if errors.Is(err, errNeedsDecision) {
			fmt.Fprintln(os.Stderr, err)
			return 3
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
