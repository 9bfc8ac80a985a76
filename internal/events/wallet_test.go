package events

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/boomkit/internal/domain"
)

func TestWalletBroadcaster_PublishSubscribe(t *testing.T) {
	b := NewWalletBroadcaster(2)
	sub := b.Subscribe()

	b.Publish(domain.WalletSnapshot{CashBalance: decimal.NewFromInt(10), AppliedSequence: 1})
	got := <-sub
	assert.Equal(t, uint64(1), got.AppliedSequence)

	b.Unsubscribe(sub)
	_, ok := <-sub
	assert.False(t, ok, "unsubscribed channel is closed")

	b.Publish(domain.WalletSnapshot{AppliedSequence: 2})
}

func TestWalletBroadcaster_SlowConsumerKeepsLatest(t *testing.T) {
	b := NewWalletBroadcaster(1)
	sub := b.Subscribe()

	b.Publish(domain.WalletSnapshot{AppliedSequence: 1})
	b.Publish(domain.WalletSnapshot{AppliedSequence: 2})

	got := <-sub
	assert.Equal(t, uint64(2), got.AppliedSequence)
	select {
	case extra := <-sub:
		t.Fatalf("unexpected snapshot %d", extra.AppliedSequence)
	default:
	}
}

func TestWalletBroadcaster_OverflowEndsOnNewest(t *testing.T) {
	b := NewWalletBroadcaster(0)
	sub := b.Subscribe()

	for seq := uint64(1); seq <= defaultSubscriberBuffer+1; seq++ {
		b.Publish(domain.WalletSnapshot{AppliedSequence: seq})
	}

	var last domain.WalletSnapshot
	for len(sub) > 0 {
		last = <-sub
	}
	assert.Equal(t, uint64(defaultSubscriberBuffer+1), last.AppliedSequence)
}

func TestWalletBroadcaster_Close(t *testing.T) {
	b := NewWalletBroadcaster(1)
	sub := b.Subscribe()
	b.Close()

	_, ok := <-sub
	require.False(t, ok)

	late := b.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
	b.Close()
}
