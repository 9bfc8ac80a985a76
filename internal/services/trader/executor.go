// Package trader executes buys and batch sells against the BOOM backend and
// feeds every server-confirmed balance back into the wallet reconciler.
package trader

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/boomkit/internal/domain"
	"github.com/vadiminshakov/boomkit/internal/metrics"
)

// SellContext is the trade context shared by every sell batch: one batch in flight at a time.
const SellContext = "sell"

// BuyContext returns the trade context of a buy for assetID.
func BuyContext(assetID string) string {
	return "buy:" + assetID
}

type tradeAPI interface {
	Purchase(ctx context.Context, assetID string, quantity int64) (domain.TradeReceipt, error)
	Sell(ctx context.Context, holdingID string) (domain.TradeReceipt, error)
}

type walletLedger interface {
	NextSequence() uint64
	Apply(update domain.WalletUpdate) bool
	RequestBackendSync(reason domain.SyncReason)
	HasSufficientFunds(amount decimal.Decimal) bool
	BalanceKnown() bool
}

type holdingsCache interface {
	EnsureLoaded(ctx context.Context) error
	Refresh(ctx context.Context) error
	Invalidate()
	MarkSold(holdingID string)
	ByAsset(assetID string) []domain.Holding
}

type buyQuoter interface {
	BuyQuote(ctx context.Context, assetID string, quantity int64) (*domain.Quote, error)
}

type receiptJournal interface {
	Record(receipt domain.TradeReceipt) error
}

// StateListener observes trade context transitions.
type StateListener func(tradeContext string, state domain.TradeState)

// Deps bundles the collaborators of an Executor. Quotes, Journal and Metrics are optional.
type Deps struct {
	API       tradeAPI
	Wallet    walletLedger
	Inventory holdingsCache
	Quotes    buyQuoter
	Journal   receiptJournal
	Metrics   *metrics.Metrics
}

// Executor runs trades. Each trade context has its own state machine and
// rejects a second submission while one is in flight.
type Executor struct {
	deps     Deps
	l        *zap.Logger
	listener StateListener

	mu     sync.Mutex
	states map[string]domain.TradeState
}

// NewExecutor creates an executor.
func NewExecutor(deps Deps, logger *zap.Logger) (*Executor, error) {
	if deps.API == nil {
		return nil, errors.New("trade API is required")
	}
	if deps.Wallet == nil {
		return nil, errors.New("wallet reconciler is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("inventory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Executor{
		deps:   deps,
		l:      logger,
		states: make(map[string]domain.TradeState),
	}, nil
}

// OnStateChange registers a listener for state transitions. Not safe to call concurrently with trades.
func (e *Executor) OnStateChange(fn StateListener) {
	e.listener = fn
}

// State returns the current state of a trade context.
func (e *Executor) State(tradeContext string) domain.TradeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[tradeContext]
}

func (e *Executor) transition(tradeContext string, next domain.TradeState) bool {
	e.mu.Lock()
	cur := e.states[tradeContext]
	if !cur.CanTransition(next) {
		e.mu.Unlock()
		return false
	}
	if next == domain.TradeStateIdle {
		delete(e.states, tradeContext)
	} else {
		e.states[tradeContext] = next
	}
	e.mu.Unlock()

	if e.listener != nil {
		e.listener(tradeContext, next)
	}
	return true
}

func (e *Executor) begin(tradeContext string) error {
	if !e.transition(tradeContext, domain.TradeStateSubmitting) {
		return domain.ErrTradeInProgress
	}
	return nil
}

func (e *Executor) finish(tradeContext string, side domain.Side, err error) {
	final := domain.TradeStateSucceeded
	outcome := "succeeded"
	if err != nil {
		final = domain.TradeStateFailed
		outcome = "failed"
	}
	e.transition(tradeContext, final)
	e.transition(tradeContext, domain.TradeStateIdle)
	e.deps.Metrics.Trade(side.String(), outcome)
}

// ExecuteBuy purchases quantity units of assetID with a single request.
// The receipt balance is applied immediately; a full resync follows in the background.
func (e *Executor) ExecuteBuy(ctx context.Context, assetID string, quantity int64) (receipt domain.TradeReceipt, err error) {
	if quantity <= 0 {
		return domain.TradeReceipt{}, errors.Errorf("buy quantity must be positive, got %d", quantity)
	}

	tc := BuyContext(assetID)
	if err := e.begin(tc); err != nil {
		return domain.TradeReceipt{}, err
	}
	defer func() { e.finish(tc, domain.SideBuy, err) }()

	if err := e.checkFunds(ctx, assetID, quantity); err != nil {
		return domain.TradeReceipt{}, err
	}

	seq := e.deps.Wallet.NextSequence()
	receipt, err = e.deps.API.Purchase(ctx, assetID, quantity)
	if err != nil {
		e.l.Warn("purchase failed",
			zap.String("asset", assetID),
			zap.Int64("quantity", quantity),
			zap.Error(err))
		return domain.TradeReceipt{}, errors.Wrapf(err, "buy %d of %s", quantity, assetID)
	}
	if receipt.AssetID == "" {
		receipt.AssetID = assetID
	}

	e.l.Info("purchase executed",
		zap.String("asset", assetID),
		zap.Int64("quantity", quantity),
		zap.String("amount", receipt.Amount.String()),
		zap.String("fees", receipt.Fees.String()),
		zap.String("reference", receipt.Reference))

	e.applyReceipt(seq, domain.ReasonPurchase, receipt)
	e.deps.Wallet.RequestBackendSync(domain.ReasonPostTrade)

	e.deps.Inventory.Invalidate()
	if err := e.deps.Inventory.Refresh(ctx); err != nil {
		e.l.Warn("failed to refresh holdings after purchase", zap.Error(err))
	}

	e.journal(receipt)
	return receipt, nil
}

// checkFunds rejects the buy locally when a live quote exceeds the usable balance.
// Without a live quote or a confirmed balance the server stays the only judge.
func (e *Executor) checkFunds(ctx context.Context, assetID string, quantity int64) error {
	if e.deps.Quotes == nil {
		return nil
	}
	if !e.deps.Wallet.BalanceKnown() {
		e.l.Debug("wallet balance unknown, skipping funds pre-check", zap.String("asset", assetID))
		return nil
	}

	q, err := e.deps.Quotes.BuyQuote(ctx, assetID, quantity)
	if err != nil || q == nil {
		e.l.Debug("no live quote for funds pre-check", zap.String("asset", assetID), zap.Error(err))
		return nil
	}

	if !e.deps.Wallet.HasSufficientFunds(q.TotalAmount) {
		return errors.Wrapf(domain.ErrInsufficientFunds, "buy %d of %s costs %s", quantity, assetID, q.TotalAmount)
	}
	return nil
}

// ExecuteSellBatch sells holdings one at a time in the given order. The first
// failure stops the batch: already sold holdings stay sold and the rest are
// reported as not attempted. The report is returned together with the error.
func (e *Executor) ExecuteSellBatch(ctx context.Context, holdingIDs []string) (report domain.BatchSellReport, err error) {
	if len(holdingIDs) == 0 {
		return domain.BatchSellReport{}, errors.New("no holdings to sell")
	}

	if err := e.begin(SellContext); err != nil {
		return domain.BatchSellReport{}, err
	}
	defer func() { e.finish(SellContext, domain.SideSell, err) }()

	report = domain.BatchSellReport{
		Outcomes:  make([]domain.SellOutcome, 0, len(holdingIDs)),
		NetAmount: decimal.Zero,
		Fees:      decimal.Zero,
	}

	for i, id := range holdingIDs {
		if err = ctx.Err(); err != nil {
			report.Outcomes = append(report.Outcomes, notAttempted(holdingIDs[i:])...)
			break
		}

		seq := e.deps.Wallet.NextSequence()
		receipt, sellErr := e.deps.API.Sell(ctx, id)
		if sellErr != nil {
			e.l.Warn("sell failed, stopping batch",
				zap.String("holding", id),
				zap.Int("sold", i),
				zap.Int("remaining", len(holdingIDs)-i-1),
				zap.Error(sellErr))

			report.Outcomes = append(report.Outcomes, domain.SellOutcome{
				HoldingID: id,
				Status:    domain.SellStatusFailed,
				Err:       sellErr,
			})
			report.Outcomes = append(report.Outcomes, notAttempted(holdingIDs[i+1:])...)
			err = errors.Wrapf(sellErr, "sell holding %s", id)
			break
		}

		if receipt.HoldingID == "" {
			receipt.HoldingID = id
		}
		e.applyReceipt(seq, domain.ReasonSale, receipt)
		e.deps.Inventory.MarkSold(id)
		e.journal(receipt)

		report.NetAmount = report.NetAmount.Add(receipt.NetAmount)
		report.Fees = report.Fees.Add(receipt.Fees)
		r := receipt
		report.Outcomes = append(report.Outcomes, domain.SellOutcome{
			HoldingID: id,
			Status:    domain.SellStatusSold,
			Receipt:   &r,
		})
	}

	if report.SoldCount() > 0 {
		e.deps.Wallet.RequestBackendSync(domain.ReasonPostTrade)
		e.deps.Inventory.Invalidate()
	}

	e.l.Info("sell batch finished",
		zap.Int("requested", len(holdingIDs)),
		zap.Int("sold", report.SoldCount()),
		zap.String("net_amount", report.NetAmount.String()),
		zap.String("fees", report.Fees.String()))

	return report, err
}

func notAttempted(ids []string) []domain.SellOutcome {
	return lo.Map(ids, func(id string, _ int) domain.SellOutcome {
		return domain.SellOutcome{HoldingID: id, Status: domain.SellStatusNotAttempted}
	})
}

// SellQuantity sells quantity holdings of assetID, oldest first.
func (e *Executor) SellQuantity(ctx context.Context, assetID string, quantity int) (domain.BatchSellReport, error) {
	if quantity <= 0 {
		return domain.BatchSellReport{}, errors.Errorf("sell quantity must be positive, got %d", quantity)
	}

	if err := e.deps.Inventory.EnsureLoaded(ctx); err != nil {
		return domain.BatchSellReport{}, errors.Wrap(err, "load holdings")
	}

	holdings := e.deps.Inventory.ByAsset(assetID)
	if len(holdings) < quantity {
		return domain.BatchSellReport{}, &domain.InsufficientHoldingsError{
			AssetID:   assetID,
			Requested: quantity,
			Held:      len(holdings),
		}
	}

	ids := lo.Map(holdings[:quantity], func(h domain.Holding, _ int) string { return h.ID })
	return e.ExecuteSellBatch(ctx, ids)
}

func (e *Executor) applyReceipt(seq uint64, reason domain.SyncReason, receipt domain.TradeReceipt) {
	if !receipt.BalanceReported {
		e.l.Debug("receipt carries no balance, waiting for resync", zap.String("reference", receipt.Reference))
		return
	}
	e.deps.Wallet.Apply(domain.WalletUpdate{
		Sequence: seq,
		Reason:   reason,
		Cash:     receipt.NewCashBalance,
	})
}

func (e *Executor) journal(receipt domain.TradeReceipt) {
	if e.deps.Journal == nil {
		return
	}
	if err := e.deps.Journal.Record(receipt); err != nil {
		e.l.Warn("failed to journal receipt", zap.String("reference", receipt.Reference), zap.Error(err))
	}
}
