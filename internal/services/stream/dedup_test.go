package stream

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/vadiminshakov/boomkit/internal/domain"
)

func social(boomID, total string) domain.StreamEvent {
	v := decimal.RequireFromString(total)
	return domain.StreamEvent{Type: domain.EventSocialUpdate, BoomID: boomID, NewTotalValue: &v}
}

func TestDeduplicator_Fingerprint(t *testing.T) {
	d := NewDeduplicator()

	assert.False(t, d.Duplicate(social("b1", "100")))
	assert.True(t, d.Duplicate(social("b1", "100")))
	// other logical stream
	assert.False(t, d.Duplicate(social("b2", "100")))
	// changed value
	assert.False(t, d.Duplicate(social("b1", "101")))
	// a value seen before but not the last one is a real change back
	assert.False(t, d.Duplicate(social("b1", "100")))
}

func TestDeduplicator_Version(t *testing.T) {
	d := NewDeduplicator()

	ev := social("b1", "100")
	ev.Version = 7
	assert.False(t, d.Duplicate(ev))
	assert.True(t, d.Duplicate(ev))

	older := social("b1", "150")
	older.Version = 6
	assert.True(t, d.Duplicate(older))

	newer := social("b1", "100")
	newer.Version = 8
	assert.False(t, d.Duplicate(newer))

	d.Reset()
	assert.False(t, d.Duplicate(ev))
}

func TestFingerprint_FieldBoundaries(t *testing.T) {
	a := domain.StreamEvent{Type: domain.EventUserNotification, ID: "ab", Message: "c"}
	b := domain.StreamEvent{Type: domain.EventUserNotification, ID: "a", Message: "bc"}
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}
