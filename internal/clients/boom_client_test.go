package clients

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vadiminshakov/boomkit/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *BoomClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewBoomClient(srv.URL, StaticToken("tok"), WithReadRetries(0), WithTimeout(2*time.Second))
}

func TestBoomClient_Purchase(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/purchase/bom", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))

		payload, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req map[string]any
		require.NoError(t, json.Unmarshal(payload, &req))
		assert.Equal(t, "boom-1", req["boom_id"])
		assert.EqualValues(t, 2, req["quantity"])

		_, _ = io.WriteString(w, `{"success":true,"data":{"amount":"210.00","fees":10,"new_cash_balance":"790.5","reference":"TX-1"}}`)
	})

	receipt, err := client.Purchase(context.Background(), "boom-1", 2)
	require.NoError(t, err)
	assert.True(t, receipt.Amount.Equal(decimal.NewFromInt(210)))
	assert.True(t, receipt.Fees.Equal(decimal.NewFromInt(10)))
	assert.True(t, receipt.NetAmount.Equal(decimal.NewFromInt(220)), "net defaults to amount+fees on buy")
	assert.True(t, receipt.NewCashBalance.Equal(decimal.RequireFromString("790.5")))
	assert.True(t, receipt.BalanceReported)
	assert.Equal(t, "TX-1", receipt.Reference)
	assert.Equal(t, int64(2), receipt.Quantity)
	assert.Equal(t, domain.SideBuy, receipt.Side)
}

func TestBoomClient_SellReceiptWithoutBalance(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/market/sell", r.URL.Path)
		_, _ = io.WriteString(w, `{"transaction":{"amount":100,"fee":"5","id":42}}`)
	})

	receipt, err := client.Sell(context.Background(), "h-1")
	require.NoError(t, err)
	assert.False(t, receipt.BalanceReported)
	assert.True(t, receipt.NetAmount.Equal(decimal.NewFromInt(95)))
	assert.Equal(t, "42", receipt.Reference)
	assert.Equal(t, "h-1", receipt.HoldingID)
}

func TestBoomClient_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		target error
	}{
		{name: "code funds", status: http.StatusBadRequest, body: `{"code":"insufficient_funds","message":"Solde insuffisant"}`, target: domain.ErrInsufficientFunds},
		{name: "payment required", status: http.StatusPaymentRequired, body: `{}`, target: domain.ErrInsufficientFunds},
		{name: "message funds", status: http.StatusBadRequest, body: `{"error":"Insufficient balance for this purchase"}`, target: domain.ErrInsufficientFunds},
		{name: "already sold", status: http.StatusBadRequest, body: `{"message":"BOOM already sold"}`, target: domain.ErrStaleAsset},
		{name: "sell not found", status: http.StatusNotFound, body: `{"message":"missing"}`, target: domain.ErrStaleAsset},
		{name: "server down", status: http.StatusBadGateway, body: `oops`, target: domain.ErrNetwork},
		{name: "rejected", status: http.StatusUnprocessableEntity, body: `{"message":"Marché fermé"}`, target: domain.ErrServerRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := client.Sell(context.Background(), "h-1")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}

	t.Run("rejected message verbatim", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"message":"Marché fermé"}`)
		})
		_, err := client.Purchase(context.Background(), "b", 1)
		var rejected *domain.ServerRejectedError
		require.True(t, errors.As(err, &rejected))
		assert.Equal(t, "Marché fermé", rejected.Message)
	})
}

func TestBoomClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewBoomClient(url, nil, WithReadRetries(0))
	_, err := client.Purchase(context.Background(), "b", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNetwork))
}

func TestBoomClient_BuyQuote(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/market/price/boom-9/buy", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("quantity"))
		_, _ = io.WriteString(w, `{"unit_price":"105","fee_amount":"15","boom":{"id":"boom-9","social_value":"20","total_value":100,"effective_capitalization":"2500000"}}`)
	})

	q, v, err := client.BuyQuote(context.Background(), "boom-9", 3)
	require.NoError(t, err)
	assert.True(t, q.UnitPrice.Equal(decimal.NewFromInt(105)))
	assert.Equal(t, int64(3), q.Quantity)
	assert.True(t, q.TotalAmount.Equal(decimal.NewFromInt(315)))
	assert.True(t, q.FeeRate.Equal(decimal.RequireFromString("0.047619")), "rate %s", q.FeeRate)
	assert.False(t, q.Estimated)

	require.NotNil(t, v)
	assert.True(t, v.BaseValue.Equal(decimal.NewFromInt(80)))
	assert.True(t, v.EffectiveCapitalization.Equal(decimal.NewFromInt(2_500_000)))
}

func TestBoomClient_QuotePriceFollowsSide(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"buy_price":"110","sell_price":"90","total_value":"100"}`)
	})

	sell, v, err := client.SellQuote(context.Background(), "b1")
	require.NoError(t, err)
	assert.True(t, sell.UnitPrice.Equal(decimal.NewFromInt(90)), "sell unit %s", sell.UnitPrice)
	require.NotNil(t, v)
	assert.True(t, sell.Respects(v.TotalValue))

	buy, _, err := client.BuyQuote(context.Background(), "b1", 1)
	require.NoError(t, err)
	assert.True(t, buy.UnitPrice.Equal(decimal.NewFromInt(110)), "buy unit %s", buy.UnitPrice)
	assert.True(t, buy.Respects(v.TotalValue))
}

func TestBoomClient_InconsistentValuationIsLogged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"unit_price":"105","boom":{"id":"b1","base_value":"80","social_value":"30","total_value":"100"}}`)
	}))
	defer srv.Close()

	core, logs := observer.New(zap.WarnLevel)
	client := NewBoomClient(srv.URL, nil, WithReadRetries(0), WithLogger(zap.New(core)))

	_, v, err := client.BuyQuote(context.Background(), "b1", 1)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 1, logs.FilterMessage("inconsistent asset valuation").Len())
}

func TestBoomClient_QuoteWithoutPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":"ok"}`)
	})

	_, _, err := client.SellQuote(context.Background(), "b")
	require.Error(t, err)
}

func TestBoomClient_Inventory(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"inventory":[{"id":1,"boom_id":"b1","title":"Sunset","created_at":"2026-01-02T10:00:00Z"},{"user_bom_id":"2","bom":{"id":"b2"}},{"title":"no id"}]}`)
	})

	holdings, err := client.Inventory(context.Background())
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	assert.Equal(t, "1", holdings[0].ID)
	assert.Equal(t, "b1", holdings[0].AssetID)
	assert.Equal(t, "Sunset", holdings[0].AssetName)
	assert.False(t, holdings[0].AcquiredAt.IsZero())
	assert.Equal(t, "b2", holdings[1].AssetID)
}

func TestBoomClient_WalletFallsBackToCashEndpoint(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wallet/balance":
			_, _ = io.WriteString(w, `{"virtual_balance":"50"}`)
		case "/wallet/cash-balance":
			_, _ = io.WriteString(w, `{"data":{"cash_balance":1200,"usable_balance":"1000"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	state, err := client.Wallet(context.Background())
	require.NoError(t, err)
	require.NotNil(t, state.Cash)
	assert.True(t, state.Cash.Equal(decimal.NewFromInt(1200)))
	assert.True(t, state.Usable.Equal(decimal.NewFromInt(1000)))
	assert.True(t, state.Virtual.Equal(decimal.NewFromInt(50)))
}

func TestDecodeStreamEvent(t *testing.T) {
	ev, err := DecodeStreamEvent([]byte(`{"type":"market_update","boom_id":"b1","new_social_value":"12.5","new_total_value":112.5,"delta":"2.5","action":"buy","social_event":"share","version":7}`))
	require.NoError(t, err)
	assert.Equal(t, domain.EventMarketUpdate, ev.Type)
	assert.Equal(t, "b1", ev.BoomID)
	assert.True(t, ev.NewTotalValue.Equal(decimal.RequireFromString("112.5")))
	assert.Equal(t, uint64(7), ev.Version)
	assert.Equal(t, "market_update:b1", ev.StreamKey())

	_, err = DecodeStreamEvent([]byte(`{"type":"mystery"}`))
	assert.Error(t, err)
}
