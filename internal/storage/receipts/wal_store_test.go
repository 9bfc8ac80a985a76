package receipts

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/boomkit/internal/domain"
)

func TestWALStore_Record(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Record(domain.TradeReceipt{Side: domain.SideBuy, Amount: decimal.NewFromInt(100), Reference: "TX-1"}))
	require.NoError(t, store.Record(domain.TradeReceipt{Side: domain.SideSell, Amount: decimal.NewFromInt(50)}))

	records, err := store.ReceiptsAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "TX-1", records[0].Value.Reference)
	assert.Equal(t, domain.SideSell, records[1].Value.Side)

	tail, err := store.ReceiptsAfter(records[0].Index)
	require.NoError(t, err)
	assert.Len(t, tail, 1)
}
