// Package wallet owns the local wallet snapshot. Every balance write goes
// through Reconciler.Apply, which arbitrates concurrent writers by the
// sequence number stamped when the triggering request was issued.
package wallet

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vadiminshakov/boomkit/internal/clients"
	"github.com/vadiminshakov/boomkit/internal/domain"
	"github.com/vadiminshakov/boomkit/internal/events"
	"github.com/vadiminshakov/boomkit/internal/metrics"
)

const (
	DefaultPollInterval = 30 * time.Second
	defaultSyncTimeout  = 15 * time.Second
	// user refreshes beyond this rate are coalesced into the in-flight one
	defaultRefreshEvery = 2 * time.Second
)

type walletAPI interface {
	Wallet(ctx context.Context) (clients.WalletState, error)
}

type snapshotStore interface {
	Save(snapshot domain.WalletSnapshot) error
	Latest() (domain.WalletSnapshot, bool, error)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithStore persists every applied snapshot and restores the last one on Init.
func WithStore(store snapshotStore) Option {
	return func(r *Reconciler) {
		r.store = store
	}
}

// WithMetrics records wallet writes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// WithPollInterval overrides the background polling period.
func WithPollInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithSyncTimeout bounds each asynchronous sync.
func WithSyncTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.syncTimeout = d
		}
	}
}

// WithRefreshLimit limits user-initiated refreshes.
func WithRefreshLimit(every time.Duration, burst int) Option {
	return func(r *Reconciler) {
		r.refreshLimiter = rate.NewLimiter(rate.Every(every), burst)
	}
}

// Reconciler keeps the wallet snapshot consistent with the server.
type Reconciler struct {
	api            walletAPI
	store          snapshotStore
	metrics        *metrics.Metrics
	broadcaster    *events.WalletBroadcaster
	refreshLimiter *rate.Limiter
	l              *zap.Logger

	pollInterval time.Duration
	syncTimeout  time.Duration

	seq atomic.Uint64

	// writeMu orders applied writes through publish and persist, so
	// subscribers and the store see snapshots in sequence order.
	writeMu  sync.Mutex
	mu       sync.RWMutex
	snap     domain.WalletSnapshot
	hasSnap  bool
	reserved decimal.Decimal

	lifecycle sync.Mutex
	disposed  bool
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewReconciler creates a reconciler reading balances from api.
func NewReconciler(api walletAPI, logger *zap.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		api:            api,
		broadcaster:    events.NewWalletBroadcaster(0),
		refreshLimiter: rate.NewLimiter(rate.Every(defaultRefreshEvery), 1),
		l:              logger,
		pollInterval:   DefaultPollInterval,
		syncTimeout:    defaultSyncTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// NextSequence returns a fresh, strictly increasing sequence number.
// Callers take it right before issuing the request whose result they will Apply.
func (r *Reconciler) NextSequence() uint64 {
	return r.seq.Add(1)
}

// Init restores the last persisted snapshot (marked stale) and runs the bootstrap sync.
// Sync failures are logged; the restored or empty snapshot stays in place.
func (r *Reconciler) Init(ctx context.Context) {
	r.restore()

	if err := r.SyncNow(ctx, domain.ReasonBootstrap); err != nil {
		r.l.Warn("bootstrap wallet sync failed", zap.Error(err))
	}
}

func (r *Reconciler) restore() {
	if r.store == nil {
		return
	}

	snap, ok, err := r.store.Latest()
	if err != nil {
		r.l.Warn("failed to restore wallet snapshot", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	snap.AppliedSequence = 0
	snap.Reason = domain.ReasonRestored
	snap.Stale = true

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	if r.hasSnap {
		r.mu.Unlock()
		return
	}
	r.snap = snap
	r.hasSnap = true
	r.reserved = snap.CashBalance.Sub(snap.UsableBalance)
	r.mu.Unlock()

	r.l.Info("restored wallet snapshot",
		zap.String("cash", snap.CashBalance.String()),
		zap.Time("applied_at", snap.AppliedAt))
	r.broadcaster.Publish(snap)
}

// Apply writes the update if its sequence is not older than the applied one.
// It reports whether the snapshot changed.
func (r *Reconciler) Apply(u domain.WalletUpdate) bool {
	if r.isDisposed() {
		return false
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	if r.hasSnap && u.Sequence < r.snap.AppliedSequence {
		applied := r.snap.AppliedSequence
		r.mu.Unlock()

		r.l.Debug("discarding stale wallet write",
			zap.String("reason", u.Reason.String()),
			zap.Uint64("sequence", u.Sequence),
			zap.Uint64("applied_sequence", applied))
		r.metrics.WalletWrite(u.Reason.String(), false, 0)
		return false
	}

	cash := decimal.Max(u.Cash, decimal.Zero)

	virtual := r.snap.VirtualBalance
	if u.Virtual != nil {
		virtual = decimal.Max(*u.Virtual, decimal.Zero)
	}

	var usable decimal.Decimal
	if u.Usable != nil {
		usable = clamp(*u.Usable, cash)
		r.reserved = cash.Sub(usable)
	} else {
		usable = clamp(cash.Sub(r.reserved), cash)
	}

	r.snap = domain.WalletSnapshot{
		CashBalance:     cash,
		VirtualBalance:  virtual,
		UsableBalance:   usable,
		AppliedSequence: u.Sequence,
		AppliedAt:       time.Now().UTC(),
		Reason:          u.Reason,
	}
	r.hasSnap = true
	snap := r.snap
	r.mu.Unlock()

	r.broadcaster.Publish(snap)
	r.metrics.WalletWrite(u.Reason.String(), true, snap.CashBalance.InexactFloat64())

	if r.store != nil {
		if err := r.store.Save(snap); err != nil {
			r.l.Warn("failed to persist wallet snapshot", zap.Error(err))
		}
	}

	return true
}

func clamp(v, upper decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if v.GreaterThan(upper) {
		return upper
	}
	return v
}

// SyncNow fetches the full wallet and applies it under a sequence taken before the request.
func (r *Reconciler) SyncNow(ctx context.Context, reason domain.SyncReason) error {
	seq := r.NextSequence()

	state, err := r.api.Wallet(ctx)
	if err != nil {
		r.metrics.WalletSyncFailed(reason.String())
		return errors.Wrapf(err, "sync wallet (%s)", reason)
	}
	if state.Cash == nil {
		r.metrics.WalletSyncFailed(reason.String())
		return errors.Errorf("sync wallet (%s): response carries no cash balance", reason)
	}

	r.Apply(domain.WalletUpdate{
		Sequence: seq,
		Reason:   reason,
		Cash:     *state.Cash,
		Virtual:  state.Virtual,
		Usable:   state.Usable,
	})
	return nil
}

// RequestBackendSync starts a best-effort sync in the background.
// User refreshes are rate limited; failures are only logged.
func (r *Reconciler) RequestBackendSync(reason domain.SyncReason) {
	if reason == domain.ReasonUserRefresh && !r.refreshLimiter.Allow() {
		r.l.Debug("user refresh throttled")
		return
	}

	r.lifecycle.Lock()
	if r.disposed {
		r.lifecycle.Unlock()
		return
	}
	r.wg.Add(1)
	r.lifecycle.Unlock()

	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(r.ctx, r.syncTimeout)
		defer cancel()

		if err := r.SyncNow(ctx, reason); err != nil {
			r.l.Warn("wallet sync failed",
				zap.String("reason", reason.String()),
				zap.Error(err))
		}
	}()
}

// Run polls the backend until ctx is done or the reconciler is disposed.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.ctx.Done():
			return nil
		case <-ticker.C:
			r.RequestBackendSync(domain.ReasonPoll)
		}
	}
}

// HasSufficientFunds checks amount against the usable balance only.
func (r *Reconciler) HasSufficientFunds(amount decimal.Decimal) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.hasSnap {
		return false
	}
	return r.snap.UsableBalance.GreaterThanOrEqual(amount)
}

// BalanceKnown reports whether a live snapshot is in place. A restored snapshot
// does not count until a sync or trade confirms it.
func (r *Reconciler) BalanceKnown() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasSnap && !r.snap.Stale
}

// Snapshot returns the current snapshot, if any.
func (r *Reconciler) Snapshot() (domain.WalletSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap, r.hasSnap
}

// Subscribe returns a channel of applied snapshots.
func (r *Reconciler) Subscribe() <-chan domain.WalletSnapshot {
	return r.broadcaster.Subscribe()
}

// Unsubscribe releases a channel returned by Subscribe.
func (r *Reconciler) Unsubscribe(ch <-chan domain.WalletSnapshot) {
	r.broadcaster.Unsubscribe(ch)
}

// Dispose stops background work. Results of in-flight syncs are dropped.
func (r *Reconciler) Dispose() {
	r.lifecycle.Lock()
	if r.disposed {
		r.lifecycle.Unlock()
		return
	}
	r.disposed = true
	r.lifecycle.Unlock()

	r.cancel()
	r.wg.Wait()
	r.broadcaster.Close()
}

func (r *Reconciler) isDisposed() bool {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	return r.disposed
}
