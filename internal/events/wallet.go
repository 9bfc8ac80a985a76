// Package events fans out wallet snapshots to in-process observers.
package events

import (
	"sync"

	"github.com/vadiminshakov/boomkit/internal/domain"
)

const defaultSubscriberBuffer = 64

// WalletBroadcaster fans out snapshots to all subscribers via buffered channels.
// A slow subscriber misses intermediate snapshots but always ends on the
// latest one: when its buffer is full the oldest queued snapshot is evicted.
type WalletBroadcaster struct {
	mu     sync.Mutex
	subs   map[chan domain.WalletSnapshot]struct{}
	buffer int
	closed bool
}

// NewWalletBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewWalletBroadcaster(buffer int) *WalletBroadcaster {
	if buffer < 1 {
		buffer = defaultSubscriberBuffer
	}
	return &WalletBroadcaster{
		subs:   make(map[chan domain.WalletSnapshot]struct{}),
		buffer: buffer,
	}
}

// Publish sends the snapshot to all subscribers. A full buffer loses its
// oldest entry, never the snapshot being published.
func (b *WalletBroadcaster) Publish(s domain.WalletSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		for {
			select {
			case ch <- s:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Subscribe returns a channel that receives snapshots until Unsubscribe or Close.
// Subscribing to a closed broadcaster yields a closed channel.
func (b *WalletBroadcaster) Subscribe() <-chan domain.WalletSnapshot {
	ch := make(chan domain.WalletSnapshot, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *WalletBroadcaster) Unsubscribe(sub <-chan domain.WalletSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		if (<-chan domain.WalletSnapshot)(ch) == sub {
			delete(b.subs, ch)
			close(ch)
			return
		}
	}
}

// Close closes every subscriber channel. Later publishes are no-ops.
func (b *WalletBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
