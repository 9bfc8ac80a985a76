// Package quote provides buy and sell quotes with a local estimate fallback.
package quote

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/boomkit/internal/domain"
	"github.com/vadiminshakov/boomkit/internal/services/valuation"
)

var (
	// ErrCrossedQuote a live quote priced on the wrong side of the asset's total value.
	ErrCrossedQuote = errors.New("quote crosses total value")
	// ErrNoValuation no valuation known to estimate a quote from.
	ErrNoValuation = errors.New("no valuation known for asset")
)

type quoteAPI interface {
	BuyQuote(ctx context.Context, assetID string, quantity int64) (domain.Quote, *domain.AssetValuation, error)
	SellQuote(ctx context.Context, assetID string) (domain.Quote, *domain.AssetValuation, error)
}

type valuationBook interface {
	Get(id string) (domain.AssetValuation, bool)
	Put(v domain.AssetValuation)
}

// Service fetches live quotes. Quotes are not reservations: the trade
// endpoint alone decides the realized price.
type Service struct {
	api    quoteAPI
	book   valuationBook
	engine *valuation.Engine
	l      *zap.Logger
}

// NewService creates a quote Service.
func NewService(api quoteAPI, book valuationBook, engine *valuation.Engine, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{api: api, book: book, engine: engine, l: logger}
}

// BuyQuote returns a live buy quote, or nil with the reason when none is usable.
func (s *Service) BuyQuote(ctx context.Context, assetID string, quantity int64) (*domain.Quote, error) {
	if quantity < 1 {
		quantity = 1
	}
	q, v, err := s.api.BuyQuote(ctx, assetID, quantity)
	if err != nil {
		return nil, errors.Wrapf(err, "buy quote for %s", assetID)
	}
	return s.accept(q, v)
}

// SellQuote returns a live quote for selling one unit, or nil with the reason.
func (s *Service) SellQuote(ctx context.Context, assetID string) (*domain.Quote, error) {
	q, v, err := s.api.SellQuote(ctx, assetID)
	if err != nil {
		return nil, errors.Wrapf(err, "sell quote for %s", assetID)
	}
	return s.accept(q, v)
}

// QuoteOrEstimate returns the live quote when available, otherwise a local
// estimate with Estimated set. It fails only when no valuation is known.
func (s *Service) QuoteOrEstimate(ctx context.Context, side domain.Side, assetID string, quantity int64) (domain.Quote, error) {
	var (
		live *domain.Quote
		err  error
	)
	switch side {
	case domain.SideSell:
		live, err = s.SellQuote(ctx, assetID)
	default:
		live, err = s.BuyQuote(ctx, assetID, quantity)
	}
	if err == nil && live != nil {
		return *live, nil
	}

	s.l.Warn("live quote unavailable, using estimate",
		zap.String("asset_id", assetID),
		zap.String("side", side.String()),
		zap.Error(err))

	v, ok := s.book.Get(assetID)
	if !ok {
		return domain.Quote{}, errors.Wrapf(ErrNoValuation, "estimate %s quote for %s", side, assetID)
	}
	return s.engine.EstimateQuote(v, side, quantity), nil
}

// Fees returns fee percentages for an asset from whatever live quotes are available.
func (s *Service) Fees(ctx context.Context, assetID string) (valuation.FeeBreakdown, error) {
	buy, buyErr := s.BuyQuote(ctx, assetID, 1)
	sell, sellErr := s.SellQuote(ctx, assetID)
	if buyErr != nil || sellErr != nil {
		s.l.Debug("fee breakdown without full live quotes",
			zap.String("asset_id", assetID),
			zap.NamedError("buy_error", buyErr),
			zap.NamedError("sell_error", sellErr))
	}

	v, ok := s.book.Get(assetID)
	if !ok {
		return valuation.FeeBreakdown{}, errors.Wrapf(ErrNoValuation, "fees for %s", assetID)
	}
	return s.engine.FeePercents(v, buy, sell), nil
}

func (s *Service) accept(q domain.Quote, v *domain.AssetValuation) (*domain.Quote, error) {
	if v != nil {
		s.book.Put(*v)
	}
	known, ok := s.book.Get(q.AssetID)
	if ok && !q.Respects(known.TotalValue) {
		s.l.Warn("discarding crossed quote",
			zap.String("asset_id", q.AssetID),
			zap.String("side", q.Side.String()),
			zap.String("unit_price", q.UnitPrice.String()),
			zap.String("total_value", known.TotalValue.String()))
		return nil, ErrCrossedQuote
	}
	q.Estimated = false
	return &q, nil
}
