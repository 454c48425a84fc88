package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/docflow/internal/common"
)

const usage = `usage:
  docflow process -files a.pdf,b.pdf [-engine name] [-langs en,vi] [-set key:field=value ...] [-export excel|csv|json|local-xlsx] [-out path]
  docflow schema get|reset
  docflow schema set -file schema.json
  docflow schema add -name Total -type number [-required] [-description text] [-format fmt]
  docflow schema delete -name Total
`

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	if len(os.Args) < 2 {
		printError("%s", usage)
		os.Exit(2)
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch os.Args[1] {
	case "process":
		err = runProcess(ctx, cfg, logger, os.Args[2:])
	case "schema":
		err = runSchema(ctx, cfg, logger, os.Args[2:])
	default:
		printError("Error: unknown command %q\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		printError("Error: %s\n", common.UserMessage(err))
		logger.Debug("docflow.failed", "error", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a failure onto the process status: 2 for bad input, 3 when
// the server no longer knows the job or session, 4 when retrying later may
// help, 1 otherwise.
func exitCode(err error) int {
	if errors.Is(err, common.ErrInvalidInput) {
		return 2
	}
	if common.IsNotFound(err) {
		return 3
	}
	switch status.Code(err) {
	case codes.InvalidArgument:
		return 2
	case codes.Unavailable, codes.ResourceExhausted:
		return 4
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return 4
	}
	return 1
}

// newLogger returns a JSON handler for LOG_FORMAT=json, otherwise a compact
// text handler without time and level keys.
func newLogger(c common.LogConfig) *slog.Logger {
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: c.SlogLevel()}))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: c.SlogLevel(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}
