// Package stream consumes the marketplace push channel over a websocket,
// drops replayed events and dispatches the rest to typed handlers.
package stream

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/boomkit/internal/clients"
	"github.com/vadiminshakov/boomkit/internal/domain"
	"github.com/vadiminshakov/boomkit/internal/metrics"
	"github.com/vadiminshakov/boomkit/pkg/retrier"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultPingInterval = 20 * time.Second
	writeTimeout        = 10 * time.Second
)

// ErrUnauthorized is returned when the stream rejects the credentials; it is not retried.
var ErrUnauthorized = errors.New("push stream rejected credentials")

// Handler receives a deduplicated event.
type Handler func(ev domain.StreamEvent)

// Option configures a Client.
type Option func(*Client)

// WithMetrics records event outcomes and reconnects.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithReadTimeout drops a connection that stays silent (pongs included) longer than d.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// WithBackoff overrides the reconnect policy.
func WithBackoff(r *retrier.Retrier) Option {
	return func(c *Client) {
		c.backoff = r
	}
}

// Client is a single long-lived push subscription.
type Client struct {
	url     string
	tokens  clients.TokenSource
	dialer  *websocket.Dialer
	backoff *retrier.Retrier
	dedup   *Deduplicator
	metrics *metrics.Metrics
	l       *zap.Logger

	readTimeout  time.Duration
	pingInterval time.Duration

	handlersMu sync.RWMutex
	handlers   map[domain.EventType][]Handler

	mounted atomic.Bool

	connMu sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a client for the websocket at url. tokens may be nil.
func NewClient(url string, tokens clients.TokenSource, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		url:          url,
		tokens:       tokens,
		dialer:       &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		dedup:        NewDeduplicator(),
		l:            logger,
		readTimeout:  defaultReadTimeout,
		pingInterval: defaultPingInterval,
		handlers:     make(map[domain.EventType][]Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pingInterval >= c.readTimeout {
		c.pingInterval = c.readTimeout / 2
	}
	if c.backoff == nil {
		c.backoff = retrier.New(
			retrier.WithMaxRetries(retrier.Unlimited),
			retrier.WithInitialInterval(time.Second),
			retrier.WithMaxInterval(time.Minute),
			retrier.WithRetryIf(func(err error) bool {
				return !errors.Is(err, ErrUnauthorized)
			}),
			retrier.WithOnRetry(func(attempt int, err error, wait time.Duration) {
				c.metrics.StreamReconnect()
				c.l.Warn("push stream dial failed, retrying",
					zap.Int("attempt", attempt),
					zap.Duration("wait", wait),
					zap.Error(err))
			}),
		)
	}

	return c
}

// Subscribe registers h for events of type t.
func (c *Client) Subscribe(t domain.EventType, h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[t] = append(c.handlers[t], h)
}

// Start mounts the client and keeps a connection open until Close or ctx is done.
func (c *Client) Start(ctx context.Context) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mounted.Store(true)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Close unmounts the client. Events read after Close are not dispatched.
// The client may be started again; replay detection starts over.
func (c *Client) Close() {
	c.mounted.Store(false)

	c.connMu.Lock()
	cancel := c.cancel
	c.connMu.Unlock()
	if cancel != nil {
		cancel()
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()

	c.connMu.Lock()
	c.cancel = nil
	c.connMu.Unlock()
	c.dedup.Reset()
}

// Ingest decodes, deduplicates and dispatches one raw message.
// It reports whether handlers were invoked.
func (c *Client) Ingest(raw []byte) bool {
	if !c.mounted.Load() {
		return false
	}

	ev, err := clients.DecodeStreamEvent(raw)
	if err != nil {
		c.metrics.StreamEvent(string(ev.Type), "invalid")
		c.l.Debug("dropping undecodable push event", zap.Error(err))
		return false
	}

	if c.dedup.Duplicate(ev) {
		c.metrics.StreamEvent(string(ev.Type), "duplicate")
		c.l.Debug("dropping duplicate push event",
			zap.String("type", string(ev.Type)),
			zap.String("boom_id", ev.BoomID),
			zap.Uint64("version", ev.Version))
		return false
	}

	c.handlersMu.RLock()
	handlers := append([]Handler(nil), c.handlers[ev.Type]...)
	c.handlersMu.RUnlock()

	// re-check: Close may have run while decoding
	if !c.mounted.Load() {
		return false
	}
	for _, h := range handlers {
		h(ev)
	}
	c.metrics.StreamEvent(string(ev.Type), "dispatched")
	return len(handlers) > 0
}

func (c *Client) run(ctx context.Context) {
	for {
		conn, err := retrier.DoWithData(c.backoff, ctx, c.dial)
		if err != nil {
			if ctx.Err() == nil {
				c.l.Error("push stream gave up reconnecting", zap.Error(err))
			}
			return
		}

		c.connMu.Lock()
		if ctx.Err() != nil {
			c.connMu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.connMu.Unlock()

		c.l.Info("push stream connected", zap.String("url", c.url))
		err = c.readLoop(ctx, conn)

		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil || !c.mounted.Load() {
			return
		}
		c.metrics.StreamReconnect()
		c.l.Warn("push stream disconnected, reconnecting", zap.Error(err))
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.tokens != nil {
		if token := c.tokens(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, errors.Wrapf(ErrUnauthorized, "dial %s: status %d", c.url, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "dial %s", c.url)
	}
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go c.pingLoop(ctx, conn, done)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read push message")
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		c.Ingest(data)
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.l.Debug("push stream ping failed", zap.Error(err))
				return
			}
		}
	}
}
