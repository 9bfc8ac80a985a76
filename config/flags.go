package config

import (
	"github.com/urfave/cli/v2"
)

// Flags are the global command line flags. Values set on the command line win over file and environment.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to yaml config"},
		&cli.StringFlag{Name: "api-url", Usage: "marketplace REST base url"},
		&cli.StringFlag{Name: "stream-url", Usage: "push stream websocket url"},
		&cli.StringFlag{Name: "token", Usage: "bearer token of the authenticated session"},
		&cli.StringFlag{Name: "currency", Usage: "account currency used for display"},
		&cli.DurationFlag{Name: "poll-interval", Usage: "wallet polling interval"},
		&cli.DurationFlag{Name: "timeout", Usage: "REST request timeout"},
		&cli.StringFlag{Name: "data-dir", Usage: "directory for wallet snapshots and the receipt journal"},
		&cli.StringFlag{Name: "web-addr", Usage: "listen address of the wallet dashboard"},
		&cli.StringFlag{Name: "log-file", Usage: "also write JSON logs to this rotated file"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		&cli.BoolFlag{Name: "dev", Usage: "human readable console logs"},
	}
}

// FromCLI loads the config file named by --config and applies explicitly set flags on top.
func FromCLI(c *cli.Context) (Config, error) {
	cfg, err := Load(c.String("config"))
	if err != nil {
		return Config{}, err
	}

	stringFlags := map[string]*string{
		"api-url":    &cfg.APIURL,
		"stream-url": &cfg.StreamURL,
		"token":      &cfg.Token,
		"currency":   &cfg.Currency,
		"data-dir":   &cfg.DataDir,
		"web-addr":   &cfg.WebAddr,
		"log-file":   &cfg.LogFile,
		"log-level":  &cfg.LogLevel,
	}
	for name, dst := range stringFlags {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	if c.IsSet("poll-interval") {
		cfg.PollInterval = c.Duration("poll-interval")
	}
	if c.IsSet("timeout") {
		cfg.RequestTimeout = c.Duration("timeout")
	}
	if c.IsSet("dev") {
		cfg.Dev = c.Bool("dev")
	}

	return cfg, nil
}
