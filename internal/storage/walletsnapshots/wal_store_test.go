package walletsnapshots

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/boomkit/internal/domain"
)

func TestWALStore_SaveAndRead(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Latest()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(domain.WalletSnapshot{CashBalance: decimal.NewFromInt(100), AppliedSequence: 1, Reason: domain.ReasonBootstrap}))
	require.NoError(t, store.Save(domain.WalletSnapshot{CashBalance: decimal.NewFromInt(80), AppliedSequence: 2, Reason: domain.ReasonPurchase}))

	latest, ok, err := store.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, latest.CashBalance.Equal(decimal.NewFromInt(80)))

	records, err := store.SnapshotsAfter(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(2), records[0].Index)
	assert.Equal(t, domain.ReasonPurchase, records[0].Snapshot.Reason)
	assert.Equal(t, uint64(2), store.CurrentIndex())
}

func TestWALStore_ReopenKeepsLatest(t *testing.T) {
	dir := t.TempDir()
	store, err := NewWALStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(domain.WalletSnapshot{CashBalance: decimal.NewFromInt(42), AppliedSequence: 7, Reason: domain.ReasonPoll}))
	require.NoError(t, store.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	latest, ok, err := reopened.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, latest.CashBalance.Equal(decimal.NewFromInt(42)))
}
