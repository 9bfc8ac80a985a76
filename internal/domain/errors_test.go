package domain

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy_Matching(t *testing.T) {
	holdings := &InsufficientHoldingsError{AssetID: "b1", Requested: 3, Held: 1}
	wrapped := errors.Wrap(holdings, "sell quantity")

	assert.True(t, errors.Is(wrapped, ErrInsufficientHoldings))

	var target *InsufficientHoldingsError
	assert.True(t, errors.As(wrapped, &target))
	assert.Equal(t, 1, target.Held)

	netErr := &NetworkError{Op: "purchase", Err: fmt.Errorf("dial tcp: timeout")}
	assert.True(t, errors.Is(netErr, ErrNetwork))
	assert.False(t, errors.Is(netErr, ErrServerRejected))

	rejected := &ServerRejectedError{Status: 422, Message: "BOOM indisponible"}
	assert.True(t, errors.Is(errors.Wrap(rejected, "buy"), ErrServerRejected))
}

func TestUserMessageFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		action UserAction
	}{
		{name: "nil", err: nil, action: ActionNone},
		{name: "funds", err: errors.Wrap(ErrInsufficientFunds, "buy"), action: ActionDeposit},
		{name: "holdings", err: &InsufficientHoldingsError{AssetID: "b", Requested: 4, Held: 2}, action: ActionClampQuantity},
		{name: "stale", err: ErrStaleAsset, action: ActionReload},
		{name: "rejected", err: &ServerRejectedError{Status: 400, Message: "market closed"}, action: ActionRetry},
		{name: "in progress", err: ErrTradeInProgress, action: ActionWait},
		{name: "network", err: &NetworkError{Op: "sell", Err: errors.New("reset")}, action: ActionRetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.action, UserMessageFor(tt.err).Action)
		})
	}

	msg := UserMessageFor(&ServerRejectedError{Status: 400, Message: "market closed"})
	assert.Equal(t, "market closed", msg.Body)

	clamp := UserMessageFor(&InsufficientHoldingsError{AssetID: "b", Requested: 4, Held: 2})
	assert.Equal(t, 2, clamp.SuggestedQuantity)
}
