// Command boomkit is a terminal client for the BOOM marketplace: it watches the
// wallet, prices assets and executes buys and batch sells.
//
// Usage:
//
//	boomkit --config config.yaml watch
//	boomkit quote <boom-id> --qty 2
//	boomkit buy <boom-id> --qty 2
//	boomkit sell <boom-id> --qty 3
//	boomkit simulate --addr 127.0.0.1:8090
//
// Settings come from the YAML file, then BOOMKIT_* environment variables
// (a .env file is loaded when present), then flags.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/vadiminshakov/boomkit/config"
	"github.com/vadiminshakov/boomkit/internal/logging"
)

func main() {
	app := &cli.App{
		Name:  "boomkit",
		Usage: "BOOM marketplace wallet and trading client",
		Flags: config.Flags(),
		Commands: []*cli.Command{
			watchCommand(),
			walletCommand(),
			quoteCommand(),
			buyCommand(),
			sellCommand(),
			simulateCommand(),
			initCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads the config and builds the logger shared by every command.
func bootstrap(c *cli.Context) (config.Config, *zap.Logger, error) {
	cfg, err := config.FromCLI(c)
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Development: cfg.Dev,
		File:        cfg.LogFile,
	})
	if err != nil {
		return config.Config{}, nil, errors.Wrap(err, "init logger")
	}

	return cfg, logger, nil
}
