// Package inventory caches the caller's holdings between explicit refreshes.
package inventory

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/vadiminshakov/boomkit/internal/domain"
)

type inventoryAPI interface {
	Inventory(ctx context.Context) ([]domain.Holding, error)
}

// Inventory holdings cache. It is stale after Invalidate until the next Refresh.
type Inventory struct {
	api      inventoryAPI
	l        *zap.Logger
	mu       sync.RWMutex
	holdings map[string]domain.Holding
	stale    bool
	loaded   bool
}

// New creates an Inventory.
func New(api inventoryAPI, logger *zap.Logger) *Inventory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inventory{
		api:      api,
		l:        logger,
		holdings: make(map[string]domain.Holding),
		stale:    true,
	}
}

// Refresh reloads holdings from the server.
func (i *Inventory) Refresh(ctx context.Context) error {
	holdings, err := i.api.Inventory(ctx)
	if err != nil {
		return errors.Wrap(err, "refresh inventory")
	}

	next := make(map[string]domain.Holding, len(holdings))
	for _, h := range holdings {
		if h.Sold {
			continue
		}
		next[h.ID] = h
	}

	i.mu.Lock()
	i.holdings = next
	i.stale = false
	i.loaded = true
	i.mu.Unlock()

	i.l.Debug("inventory refreshed", zap.Int("holdings", len(next)))
	return nil
}

// EnsureLoaded refreshes when the cache is stale.
func (i *Inventory) EnsureLoaded(ctx context.Context) error {
	i.mu.RLock()
	fresh := i.loaded && !i.stale
	i.mu.RUnlock()
	if fresh {
		return nil
	}
	return i.Refresh(ctx)
}

// Invalidate marks the cache stale.
func (i *Inventory) Invalidate() {
	i.mu.Lock()
	i.stale = true
	i.mu.Unlock()
}

// MarkSold removes a holding after a successful sell.
func (i *Inventory) MarkSold(holdingID string) {
	i.mu.Lock()
	delete(i.holdings, holdingID)
	i.mu.Unlock()
}

// Get returns a holding by id.
func (i *Inventory) Get(holdingID string) (domain.Holding, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	h, ok := i.holdings[holdingID]
	return h, ok
}

// All returns every unsold holding, oldest first.
func (i *Inventory) All() []domain.Holding {
	i.mu.RLock()
	all := lo.Values(i.holdings)
	i.mu.RUnlock()

	sortHoldings(all)
	return all
}

// ByAsset returns the unsold holdings of one asset, oldest first.
func (i *Inventory) ByAsset(assetID string) []domain.Holding {
	return lo.Filter(i.All(), func(h domain.Holding, _ int) bool {
		return h.AssetID == assetID
	})
}

// CountByAsset number of units held per asset.
func (i *Inventory) CountByAsset() map[string]int {
	return lo.CountValuesBy(i.All(), func(h domain.Holding) string {
		return h.AssetID
	})
}

func sortHoldings(hs []domain.Holding) {
	sort.Slice(hs, func(a, b int) bool {
		if !hs[a].AcquiredAt.Equal(hs[b].AcquiredAt) {
			return hs[a].AcquiredAt.Before(hs[b].AcquiredAt)
		}
		return hs[a].ID < hs[b].ID
	})
}
