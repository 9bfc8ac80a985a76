// Package book keeps the latest known valuation of every asset seen by the client.
package book

import (
	"sync"

	"github.com/vadiminshakov/boomkit/internal/domain"
)

// Book is an in-memory valuation cache fed by quotes and push events.
type Book struct {
	mu    sync.RWMutex
	items map[string]domain.AssetValuation
}

// New creates an empty Book.
func New() *Book {
	return &Book{items: make(map[string]domain.AssetValuation)}
}

// Get returns the valuation of an asset.
func (b *Book) Get(id string) (domain.AssetValuation, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.items[id]
	return v, ok
}

// Put stores a valuation, replacing any previous one.
func (b *Book) Put(v domain.AssetValuation) {
	if v.ID == "" {
		return
	}
	b.mu.Lock()
	b.items[v.ID] = v
	b.mu.Unlock()
}

// ApplyEvent merges a market or social update into the book.
// Unknown assets are only created when the event carries a total value.
func (b *Book) ApplyEvent(ev domain.StreamEvent) (domain.AssetValuation, bool) {
	if ev.BoomID == "" || (ev.Type != domain.EventMarketUpdate && ev.Type != domain.EventSocialUpdate) {
		return domain.AssetValuation{}, false
	}
	if ev.NewSocialValue == nil && ev.NewTotalValue == nil {
		return domain.AssetValuation{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	current, ok := b.items[ev.BoomID]
	if !ok {
		if ev.NewTotalValue == nil {
			return domain.AssetValuation{}, false
		}
		current = domain.NewAssetValuation(ev.BoomID, nil, ev.NewSocialValue, ev.NewTotalValue)
	} else {
		current = current.WithSocialUpdate(ev.NewSocialValue, ev.NewTotalValue)
	}
	b.items[ev.BoomID] = current

	return current, true
}
