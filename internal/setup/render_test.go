package setup

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/vadiminshakov/boomkit/internal/domain"
)

func TestRenderWallet(t *testing.T) {
	out := RenderWallet(domain.WalletSnapshot{
		CashBalance:    decimal.NewFromInt(1500),
		UsableBalance:  decimal.NewFromInt(1200),
		VirtualBalance: decimal.NewFromInt(300),
		Reason:         domain.ReasonRestored,
		Stale:          true,
	}, "XOF")

	assert.Contains(t, out, "1,200.00 XOF")
	assert.Contains(t, out, "not spendable")
	assert.Contains(t, out, "refreshing")
}

func TestRenderQuote_Estimated(t *testing.T) {
	out := RenderQuote(domain.Quote{AssetID: "b1", Side: domain.SideBuy, Quantity: 2, Estimated: true}, "XOF")
	assert.Contains(t, out, "BUY quote b1")
	assert.Contains(t, out, "estimate")
}

func TestRenderBatch_Partial(t *testing.T) {
	out := RenderBatch(domain.BatchSellReport{
		Outcomes: []domain.SellOutcome{
			{HoldingID: "h1", Status: domain.SellStatusSold},
			{HoldingID: "h2", Status: domain.SellStatusFailed},
			{HoldingID: "h3", Status: domain.SellStatusNotAttempted},
		},
		NetAmount: decimal.NewFromInt(95),
	}, "XOF")
	assert.Contains(t, out, "1 of 3 sold")
	assert.Contains(t, out, "not_attempted")
}

func TestRenderError(t *testing.T) {
	out := RenderError(&domain.InsufficientHoldingsError{AssetID: "b1", Requested: 3, Held: 1})
	assert.Contains(t, out, "You can sell up to 1")

	out = RenderError(errors.Wrap(domain.ErrInsufficientFunds, "Solde insuffisant"))
	assert.Contains(t, out, "Deposit funds")

	out = RenderError(&domain.ServerRejectedError{Status: 400, Message: "Quota journalier atteint"})
	assert.Contains(t, out, "Quota journalier atteint")
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateURL("https://api.example.com"))
	assert.Error(t, validateURL("api.example.com"))
	assert.NoError(t, validateInterval("30s"))
	assert.Error(t, validateInterval("10ms"))
	assert.Error(t, validateInterval("soon"))
}
