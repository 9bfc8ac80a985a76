package stream

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/boomkit/internal/domain"
)

// Deduplicator drops replayed events per logical stream.
// Versioned events are dropped when not newer than the last seen version;
// unversioned ones when their fingerprint equals the last seen fingerprint.
type Deduplicator struct {
	mu           sync.Mutex
	versions     map[string]uint64
	fingerprints map[string]uint64
}

// NewDeduplicator creates an empty deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		versions:     make(map[string]uint64),
		fingerprints: make(map[string]uint64),
	}
}

// Duplicate reports whether ev was already seen, and records it otherwise.
func (d *Deduplicator) Duplicate(ev domain.StreamEvent) bool {
	key := ev.StreamKey()

	d.mu.Lock()
	defer d.mu.Unlock()

	if ev.Version > 0 {
		if last, ok := d.versions[key]; ok && ev.Version <= last {
			return true
		}
		d.versions[key] = ev.Version
		return false
	}

	fp := Fingerprint(ev)
	if last, ok := d.fingerprints[key]; ok && last == fp {
		return true
	}
	d.fingerprints[key] = fp
	return false
}

// Reset forgets everything seen so far.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.versions)
	clear(d.fingerprints)
}

// Fingerprint hashes the identity and mutable fields of ev in a fixed order.
func Fingerprint(ev domain.StreamEvent) uint64 {
	h := xxhash.New()
	parts := []string{
		string(ev.Type),
		ev.ID,
		ev.BoomID,
		decString(ev.NewSocialValue),
		decString(ev.NewTotalValue),
		decString(ev.Delta),
		ev.Action,
		ev.SocialEvent,
		decString(ev.NewCashBalance),
		ev.Message,
	}
	for _, p := range parts {
		_, _ = h.WriteString(p)
		// separator keeps ("ab","c") and ("a","bc") apart
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

func decString(v *decimal.Decimal) string {
	if v == nil {
		return ""
	}
	return v.String()
}
