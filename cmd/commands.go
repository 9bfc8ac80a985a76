package main

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/boomkit/config"
	"github.com/vadiminshakov/boomkit/internal"
	"github.com/vadiminshakov/boomkit/internal/domain"
	"github.com/vadiminshakov/boomkit/internal/setup"
	"github.com/vadiminshakov/boomkit/internal/simulate"
	"github.com/vadiminshakov/boomkit/internal/storage/simstate"
	"github.com/vadiminshakov/boomkit/internal/web"
)

// withSession runs fn with an initialized session and disposes it afterwards.
// Short-lived commands do not open the push stream.
func withSession(c *cli.Context, stream bool, fn func(s *internal.Session, cfg config.Config, l *zap.Logger) error) error {
	cfg, logger, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if !stream {
		cfg.StreamURL = ""
	}
	s, err := internal.NewSession(cfg, logger)
	if err != nil {
		return err
	}
	defer s.Dispose()

	s.Init(c.Context)
	return fn(s, cfg, logger)
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "keep the wallet in sync and serve the dashboard",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-web", Usage: "do not start the dashboard"},
		},
		Action: func(c *cli.Context) error {
			return withSession(c, true, func(s *internal.Session, cfg config.Config, l *zap.Logger) error {
				g, ctx := errgroup.WithContext(c.Context)

				g.Go(func() error { return s.Run(ctx) })

				if !c.Bool("no-web") {
					srv := &web.Server{
						Addr:     cfg.WebAddr,
						Wallet:   s.Wallet,
						History:  s.Snapshots,
						Receipts: s.Receipts,
						Gatherer: s.Registry,
						Currency: cfg.Currency,
						Logger:   l.Named("web"),
					}
					g.Go(func() error { return srv.Start(ctx) })
				}

				sub := s.Wallet.Subscribe()
				if snap, ok := s.Wallet.Snapshot(); ok {
					fmt.Println(setup.RenderWallet(snap, cfg.Currency))
				}
				g.Go(func() error {
					defer s.Wallet.Unsubscribe(sub)
					for {
						select {
						case <-ctx.Done():
							return nil
						case snap, open := <-sub:
							if !open {
								return nil
							}
							fmt.Println(setup.RenderWallet(snap, cfg.Currency))
						}
					}
				})

				return g.Wait()
			})
		},
	}
}

func walletCommand() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "show the wallet and holdings",
		Action: func(c *cli.Context) error {
			return withSession(c, false, func(s *internal.Session, cfg config.Config, _ *zap.Logger) error {
				snap, ok := s.Wallet.Snapshot()
				if !ok {
					return cli.Exit(setup.RenderError(&domain.NetworkError{Op: "wallet", Err: errors.New("no balance available")}), 1)
				}
				fmt.Println(setup.RenderWallet(snap, cfg.Currency))
				fmt.Println(setup.RenderHoldings(s.Inventory.CountByAsset()))
				return nil
			})
		},
	}
}

func sideFlag(c *cli.Context) (domain.Side, error) {
	side := domain.Side(c.String("side"))
	if !side.IsValid() {
		return "", errors.Errorf("unknown side %q", side)
	}
	return side, nil
}

func quoteCommand() *cli.Command {
	return &cli.Command{
		Name:      "quote",
		Usage:     "price an asset and show its valuation",
		ArgsUsage: "<boom-id>",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "qty", Value: 1, Usage: "units to price"},
			&cli.StringFlag{Name: "side", Value: "buy", Usage: "buy or sell"},
		},
		Action: func(c *cli.Context) error {
			assetID := c.Args().First()
			if assetID == "" {
				return errors.New("boom id is required")
			}
			side, err := sideFlag(c)
			if err != nil {
				return err
			}

			return withSession(c, false, func(s *internal.Session, cfg config.Config, l *zap.Logger) error {
				q, err := s.Quotes.QuoteOrEstimate(c.Context, side, assetID, c.Int64("qty"))
				if err != nil {
					return cli.Exit(setup.RenderError(err), 1)
				}
				fmt.Println(setup.RenderQuote(q, cfg.Currency))

				v, ok := s.Book.Get(assetID)
				if !ok {
					return nil
				}
				fees, err := s.Quotes.Fees(c.Context, assetID)
				if err != nil {
					l.Debug("fee breakdown unavailable", zap.Error(err))
				}
				progress := s.Engine.CapProgress(v.EffectiveCapitalization)
				fmt.Println(setup.RenderValuation(setup.ValuationView{
					Valuation:  v,
					Fees:       fees,
					Progress:   progress,
					Milestone:  s.Engine.NextMilestone(progress),
					Reached:    s.Engine.MilestoneReached(progress),
					Influence:  s.Engine.DescribeMicroInfluence(s.Engine.UnitsCrossed(v.EffectiveCapitalization)),
					FinalLabel: "(palier atteint)",
				}, cfg.Currency))
				return nil
			})
		},
	}
}

func buyCommand() *cli.Command {
	return &cli.Command{
		Name:      "buy",
		Usage:     "buy units of an asset",
		ArgsUsage: "<boom-id>",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "qty", Value: 1, Usage: "units to buy"},
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "skip the confirmation"},
		},
		Action: func(c *cli.Context) error {
			assetID := c.Args().First()
			if assetID == "" {
				return errors.New("boom id is required")
			}
			qty := c.Int64("qty")

			return withSession(c, false, func(s *internal.Session, cfg config.Config, _ *zap.Logger) error {
				if !c.Bool("yes") {
					q, err := s.Quotes.QuoteOrEstimate(c.Context, domain.SideBuy, assetID, qty)
					if err != nil {
						return cli.Exit(setup.RenderError(err), 1)
					}
					fmt.Println(setup.RenderQuote(q, cfg.Currency))
					ok, err := setup.Confirm(fmt.Sprintf("Buy %d × %s?", qty, assetID), "The final price is the one on the receipt.")
					if err != nil || !ok {
						return err
					}
				}

				receipt, err := s.Trader.ExecuteBuy(c.Context, assetID, qty)
				if err != nil {
					return cli.Exit(setup.RenderError(err), 1)
				}
				fmt.Println(setup.RenderReceipt(receipt, cfg.Currency))
				return nil
			})
		},
	}
}

func sellCommand() *cli.Command {
	return &cli.Command{
		Name:      "sell",
		Usage:     "sell units of an asset, oldest first, or explicit holdings",
		ArgsUsage: "<boom-id>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "qty", Value: 1, Usage: "units to sell"},
			&cli.StringSliceFlag{Name: "holding", Usage: "sell these holding ids instead, in order"},
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "skip the confirmation"},
		},
		Action: func(c *cli.Context) error {
			assetID := c.Args().First()
			holdingIDs := c.StringSlice("holding")
			if assetID == "" && len(holdingIDs) == 0 {
				return errors.New("boom id or --holding is required")
			}

			return withSession(c, false, func(s *internal.Session, cfg config.Config, _ *zap.Logger) error {
				count := len(holdingIDs)
				if count == 0 {
					count = c.Int("qty")
				}
				if !c.Bool("yes") {
					if assetID != "" {
						if q, err := s.Quotes.QuoteOrEstimate(c.Context, domain.SideSell, assetID, 1); err == nil {
							fmt.Println(setup.RenderQuote(q, cfg.Currency))
						}
					}
					if len(holdingIDs) > 0 {
						if err := s.Inventory.EnsureLoaded(c.Context); err != nil {
							return cli.Exit(setup.RenderError(err), 1)
						}
						for _, id := range holdingIDs {
							h, ok := s.Inventory.Get(id)
							if !ok {
								return cli.Exit(fmt.Sprintf("holding %s is not in your inventory", id), 1)
							}
							fmt.Printf("  %s  %s\n", h.ID, lo.CoalesceOrEmpty(h.AssetName, h.AssetID))
						}
					}
					ok, err := setup.Confirm(fmt.Sprintf("Sell %d unit(s)?", count), "Units are sold one by one; a failure stops the rest.")
					if err != nil || !ok {
						return err
					}
				}

				var (
					report domain.BatchSellReport
					err    error
				)
				if len(holdingIDs) > 0 {
					report, err = s.Trader.ExecuteSellBatch(c.Context, holdingIDs)
				} else {
					report, err = s.Trader.SellQuantity(c.Context, assetID, count)
				}
				if len(report.Outcomes) > 0 {
					fmt.Println(setup.RenderBatch(report, cfg.Currency))
				}
				if err != nil {
					return cli.Exit(setup.RenderError(err), 1)
				}
				return nil
			})
		},
	}
}

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "serve an in-memory marketplace for demos",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "127.0.0.1:8090", Usage: "listen address"},
			&cli.StringFlag{Name: "cash", Value: "100000", Usage: "starting cash balance"},
			&cli.StringFlag{Name: "virtual", Value: "0", Usage: "non-spendable promotional balance"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := bootstrap(c)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cash, err := decimal.NewFromString(c.String("cash"))
			if err != nil {
				return errors.Wrap(err, "invalid --cash")
			}
			virtual, err := decimal.NewFromString(c.String("virtual"))
			if err != nil {
				return errors.Wrap(err, "invalid --virtual")
			}
			store, err := simstate.NewStore(filepath.Join(cfg.DataDir, "simulate"))
			if err != nil {
				return err
			}

			backend := simulate.NewBackend(cash, nil, logger.Named("simulate"),
				simulate.WithStore(store),
				simulate.WithToken(cfg.Token),
				simulate.WithVirtualBalance(virtual),
			)
			for _, a := range simulate.DemoAssets() {
				backend.AddAsset(a.ID, a.Name, a.Base, a.Social)
			}

			return simulate.Serve(c.Context, c.String("addr"), backend, logger)
		},
	}
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "write a config file interactively",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Value: "config.yaml", Usage: "file to write"},
		},
		Action: func(c *cli.Context) error {
			return setup.RunWizard(c.String("out"))
		},
	}
}
