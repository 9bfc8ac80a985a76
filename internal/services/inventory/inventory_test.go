package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/boomkit/internal/domain"
)

type fakeAPI struct {
	holdings []domain.Holding
	err      error
	calls    int
}

func (f *fakeAPI) Inventory(ctx context.Context) ([]domain.Holding, error) {
	f.calls++
	return f.holdings, f.err
}

func TestInventory_RefreshAndQuery(t *testing.T) {
	now := time.Now()
	api := &fakeAPI{holdings: []domain.Holding{
		{ID: "h3", AssetID: "b1", AcquiredAt: now},
		{ID: "h1", AssetID: "b1", AcquiredAt: now.Add(-time.Hour)},
		{ID: "h2", AssetID: "b2", AcquiredAt: now},
		{ID: "h4", AssetID: "b2", Sold: true},
	}}
	inv := New(api, nil)
	assert.Empty(t, inv.All(), "nothing loaded yet")

	require.NoError(t, inv.EnsureLoaded(context.Background()))
	require.NoError(t, inv.EnsureLoaded(context.Background()))
	assert.Equal(t, 1, api.calls, "fresh cache is not reloaded")

	b1 := inv.ByAsset("b1")
	require.Len(t, b1, 2)
	assert.Equal(t, "h1", b1[0].ID, "oldest first")
	assert.Equal(t, map[string]int{"b1": 2, "b2": 1}, inv.CountByAsset())

	h, ok := inv.Get("h2")
	require.True(t, ok)
	assert.Equal(t, "b2", h.AssetID)

	inv.MarkSold("h1")
	_, ok = inv.Get("h1")
	assert.False(t, ok)

	inv.Invalidate()
	require.NoError(t, inv.EnsureLoaded(context.Background()))
	assert.Equal(t, 2, api.calls)
}

func TestInventory_RefreshErrorKeepsCache(t *testing.T) {
	api := &fakeAPI{holdings: []domain.Holding{{ID: "h1", AssetID: "b1"}}}
	inv := New(api, nil)
	require.NoError(t, inv.Refresh(context.Background()))

	api.err = errors.New("down")
	require.Error(t, inv.Refresh(context.Background()))
	assert.Len(t, inv.All(), 1)
}
