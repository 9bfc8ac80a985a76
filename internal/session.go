package internal

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vadiminshakov/boomkit/config"
	"github.com/vadiminshakov/boomkit/internal/clients"
	"github.com/vadiminshakov/boomkit/internal/domain"
	"github.com/vadiminshakov/boomkit/internal/metrics"
	"github.com/vadiminshakov/boomkit/internal/services/inventory"
	"github.com/vadiminshakov/boomkit/internal/services/market/book"
	"github.com/vadiminshakov/boomkit/internal/services/quote"
	"github.com/vadiminshakov/boomkit/internal/services/stream"
	"github.com/vadiminshakov/boomkit/internal/services/trader"
	"github.com/vadiminshakov/boomkit/internal/services/valuation"
	"github.com/vadiminshakov/boomkit/internal/services/wallet"
	"github.com/vadiminshakov/boomkit/internal/storage/receipts"
	"github.com/vadiminshakov/boomkit/internal/storage/walletsnapshots"
)

// Session owns every component of one authenticated user session.
// Nothing is global: build one with NewSession, then Init, Run and Dispose it.
type Session struct {
	Config    config.Config
	API       *clients.BoomClient
	Engine    *valuation.Engine
	Book      *book.Book
	Quotes    *quote.Service
	Inventory *inventory.Inventory
	Wallet    *wallet.Reconciler
	Trader    *trader.Executor
	// Stream is nil when no stream url is configured.
	Stream    *stream.Client
	Registry  *prometheus.Registry
	Snapshots *walletsnapshots.WALStore
	Receipts  *receipts.WALStore

	l *zap.Logger
}

// NewSession wires the components from cfg.
func NewSession(cfg config.Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	snapshots, err := walletsnapshots.NewWALStore(filepath.Join(cfg.DataDir, "wallet"))
	if err != nil {
		return nil, err
	}
	journal, err := receipts.NewWALStore(filepath.Join(cfg.DataDir, "receipts"))
	if err != nil {
		_ = snapshots.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	tokens := clients.StaticToken(cfg.Token)
	api := clients.NewBoomClient(cfg.APIURL, tokens,
		clients.WithTimeout(cfg.RequestTimeout),
		clients.WithReadRetries(cfg.ReadRetries),
		clients.WithLogger(logger.Named("api")),
	)

	engine := valuation.NewEngine(cfg.Constants)
	valuations := book.New()
	quotes := quote.NewService(api, valuations, engine, logger.Named("quotes"))
	holdings := inventory.New(api, logger.Named("inventory"))
	reconciler := wallet.NewReconciler(api, logger.Named("wallet"),
		wallet.WithStore(snapshots),
		wallet.WithMetrics(m),
		wallet.WithPollInterval(cfg.PollInterval),
		wallet.WithSyncTimeout(cfg.RequestTimeout),
	)

	executor, err := trader.NewExecutor(trader.Deps{
		API:       api,
		Wallet:    reconciler,
		Inventory: holdings,
		Quotes:    quotes,
		Journal:   journal,
		Metrics:   m,
	}, logger.Named("trader"))
	if err != nil {
		_ = snapshots.Close()
		_ = journal.Close()
		return nil, err
	}

	s := &Session{
		Config:    cfg,
		API:       api,
		Engine:    engine,
		Book:      valuations,
		Quotes:    quotes,
		Inventory: holdings,
		Wallet:    reconciler,
		Trader:    executor,
		Registry:  registry,
		Snapshots: snapshots,
		Receipts:  journal,
		l:         logger,
	}

	if cfg.StreamURL != "" {
		s.Stream = stream.NewClient(cfg.StreamURL, tokens, logger.Named("stream"), stream.WithMetrics(m))
		s.subscribe()
	}

	return s, nil
}

func (s *Session) subscribe() {
	onValuation := func(ev domain.StreamEvent) {
		if v, ok := s.Book.ApplyEvent(ev); ok {
			s.l.Debug("valuation updated",
				zap.String("boom_id", v.ID),
				zap.String("total_value", v.TotalValue.String()))
		}
		s.applyPushedBalance(ev)
	}
	s.Stream.Subscribe(domain.EventMarketUpdate, onValuation)
	s.Stream.Subscribe(domain.EventSocialUpdate, onValuation)

	s.Stream.Subscribe(domain.EventStateInvalidation, func(ev domain.StreamEvent) {
		s.Inventory.Invalidate()
		if !s.applyPushedBalance(ev) {
			s.Wallet.RequestBackendSync(domain.ReasonStreamInvalidation)
		}
	})

	s.Stream.Subscribe(domain.EventUserNotification, func(ev domain.StreamEvent) {
		s.l.Info("notification", zap.String("id", ev.ID), zap.String("message", ev.Message))
		s.applyPushedBalance(ev)
	})
}

// applyPushedBalance applies a balance carried by a push event, stamped on receipt.
func (s *Session) applyPushedBalance(ev domain.StreamEvent) bool {
	if ev.NewCashBalance == nil {
		return false
	}
	return s.Wallet.Apply(domain.WalletUpdate{
		Sequence: s.Wallet.NextSequence(),
		Reason:   domain.ReasonStreamBalance,
		Cash:     *ev.NewCashBalance,
	})
}

// Init restores the last wallet, runs the bootstrap sync, loads holdings and opens the stream.
// Network failures are logged, never returned.
func (s *Session) Init(ctx context.Context) {
	s.Wallet.Init(ctx)

	if err := s.Inventory.Refresh(ctx); err != nil {
		s.l.Warn("initial holdings load failed", zap.Error(err))
	}

	if s.Stream != nil {
		s.Stream.Start(ctx)
	}
}

// Run polls the wallet until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	return s.Wallet.Run(ctx)
}

// Dispose stops background work and closes the stores. Late results are dropped.
func (s *Session) Dispose() {
	if s.Stream != nil {
		s.Stream.Close()
	}
	s.Wallet.Dispose()

	if err := s.Snapshots.Close(); err != nil {
		s.l.Warn("close wallet snapshots", zap.Error(err))
	}
	if err := s.Receipts.Close(); err != nil {
		s.l.Warn("close receipt journal", zap.Error(err))
	}
}
