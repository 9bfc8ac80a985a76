// Package simulate is an in-memory marketplace serving the same REST and push
// endpoints as the real backend. It prices trades with the valuation engine so
// quotes always honour the spread around total value.
package simulate

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/boomkit/internal/domain"
	"github.com/vadiminshakov/boomkit/internal/services/valuation"
	"github.com/vadiminshakov/boomkit/internal/storage/simstate"
)

type rejection struct {
	status  int
	code    string
	message string
}

// Option configures a Backend.
type Option func(*Backend)

// WithToken requires every request to carry this bearer token.
func WithToken(token string) Option {
	return func(b *Backend) {
		b.token = token
	}
}

// WithStore persists the marketplace after every trade and restores it on start.
func WithStore(store *simstate.Store) Option {
	return func(b *Backend) {
		b.store = store
	}
}

// WithVirtualBalance sets the non-spendable promotional balance.
func WithVirtualBalance(v decimal.Decimal) Option {
	return func(b *Backend) {
		b.virtual = v
	}
}

// Backend simulated marketplace.
type Backend struct {
	mu       sync.Mutex
	engine   *valuation.Engine
	logger   *zap.Logger
	store    *simstate.Store
	token    string
	cash     decimal.Decimal
	virtual  decimal.Decimal
	reserved decimal.Decimal
	assets   map[string]domain.AssetValuation
	names    map[string]string
	holdings map[string]domain.Holding
	version  uint64
	rejects  map[string]rejection

	subsMu sync.Mutex
	subs   map[chan []byte]struct{}

	mux *http.ServeMux
}

// NewBackend creates a marketplace with the given starting cash.
func NewBackend(cash decimal.Decimal, engine *valuation.Engine, logger *zap.Logger, opts ...Option) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = valuation.NewEngine(domain.DefaultCapitalizationConstants())
	}

	b := &Backend{
		engine:   engine,
		logger:   logger,
		cash:     cash,
		assets:   make(map[string]domain.AssetValuation),
		names:    make(map[string]string),
		holdings: make(map[string]domain.Holding),
		rejects:  make(map[string]rejection),
		subs:     make(map[chan []byte]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := b.restore(); err != nil {
		logger.Warn("failed to restore simulate state", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /purchase/bom", b.handlePurchase)
	mux.HandleFunc("POST /market/sell", b.handleSell)
	mux.HandleFunc("GET /market/price/{id}/buy", b.handleBuyQuote)
	mux.HandleFunc("GET /sell/quote/{id}", b.handleSellQuote)
	mux.HandleFunc("GET /purchase/inventory", b.handleInventory)
	mux.HandleFunc("GET /wallet/balance", b.handleWallet)
	mux.HandleFunc("GET /wallet/cash-balance", b.handleCashBalance)
	mux.HandleFunc("GET /stream", b.handleStream)
	b.mux = mux

	logger.Info("simulate init",
		zap.String("cash", b.cash.String()),
		zap.Int("assets", len(b.assets)),
		zap.Int("holdings", len(b.holdings)))
	return b
}

// ServeHTTP implements http.Handler.
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.token != "" && r.Header.Get("Authorization") != "Bearer "+b.token {
		writeError(w, rejection{status: http.StatusUnauthorized, code: "UNAUTHORIZED", message: "authentication required"})
		return
	}
	b.mux.ServeHTTP(w, r)
}

// AddAsset lists an asset. Existing assets are kept as they are, so restored state wins.
func (b *Backend) AddAsset(id, name string, base, social decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.assets[id]; ok {
		return
	}
	v := domain.NewAssetValuation(id, &base, &social, nil)
	v.PalierThreshold = b.engine.Constants().PalierThreshold
	b.assets[id] = v
	b.names[id] = name
}

// Reserve locks part of the cash so it is not usable.
func (b *Backend) Reserve(amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reserved = amount
}

// RejectNext makes the next trade touching key (asset or holding ID) fail with the given response.
func (b *Backend) RejectNext(key string, status int, code, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejects[key] = rejection{status: status, code: code, message: message}
}

// Push sends a raw event to every stream subscriber.
func (b *Backend) Push(event map[string]any) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Warn("failed to encode push event", zap.Error(err))
		return
	}

	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- payload:
		default:
		}
	}
}

func (b *Backend) takeRejection(key string) (rejection, bool) {
	r, ok := b.rejects[key]
	if ok {
		delete(b.rejects, key)
	}
	return r, ok
}

func (b *Backend) usable() decimal.Decimal {
	u := b.cash.Sub(b.reserved)
	if u.IsNegative() {
		return decimal.Zero
	}
	return u
}

type purchaseRequest struct {
	BoomID   string `json:"boom_id"`
	Quantity int64  `json:"quantity"`
}

func (b *Backend) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BoomID == "" || req.Quantity < 1 {
		writeError(w, rejection{status: http.StatusBadRequest, code: "BAD_REQUEST", message: "boom_id and a positive quantity are required"})
		return
	}

	b.mu.Lock()
	if rej, ok := b.takeRejection(req.BoomID); ok {
		b.mu.Unlock()
		writeError(w, rej)
		return
	}
	v, ok := b.assets[req.BoomID]
	if !ok {
		b.mu.Unlock()
		writeError(w, rejection{status: http.StatusNotFound, code: "STALE_ASSET", message: "Ce Bom n'est plus disponible"})
		return
	}

	q := b.engine.EstimateQuote(v, domain.SideBuy, req.Quantity)
	if b.usable().LessThan(q.TotalAmount) {
		b.mu.Unlock()
		writeError(w, rejection{status: http.StatusBadRequest, code: "INSUFFICIENT_FUNDS", message: "Solde insuffisant"})
		return
	}

	b.cash = b.cash.Sub(q.TotalAmount)
	now := time.Now().UTC()
	for i := int64(0); i < req.Quantity; i++ {
		id := uuid.NewString()
		b.holdings[id] = domain.Holding{ID: id, AssetID: v.ID, AssetName: b.names[v.ID], AcquiredAt: now}
	}
	gross := v.TotalValue.Mul(decimal.NewFromInt(req.Quantity))
	event := b.bumpSocial(v.ID, gross, "purchase")
	reference := uuid.NewString()
	cash := b.cash
	b.persist()
	b.mu.Unlock()

	b.Push(event)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"transaction": map[string]any{
			"id":               reference,
			"quantity":         req.Quantity,
			"amount":           gross,
			"fees":             q.FeeAmount,
			"net_amount":       q.TotalAmount,
			"new_cash_balance": cash,
			"executed_at":      now,
		},
	})
}

type sellRequest struct {
	HoldingID string `json:"user_bom_id"`
}

func (b *Backend) handleSell(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.HoldingID == "" {
		writeError(w, rejection{status: http.StatusBadRequest, code: "BAD_REQUEST", message: "user_bom_id is required"})
		return
	}

	b.mu.Lock()
	if rej, ok := b.takeRejection(req.HoldingID); ok {
		b.mu.Unlock()
		writeError(w, rej)
		return
	}
	h, ok := b.holdings[req.HoldingID]
	if !ok {
		b.mu.Unlock()
		writeError(w, rejection{status: http.StatusConflict, code: "ALREADY_SOLD", message: "Ce Bom a déjà été vendu"})
		return
	}
	v := b.assets[h.AssetID]

	q := b.engine.EstimateQuote(v, domain.SideSell, 1)
	b.cash = b.cash.Add(q.TotalAmount)
	delete(b.holdings, h.ID)
	event := b.bumpSocial(v.ID, v.TotalValue.Neg(), "sale")
	reference := uuid.NewString()
	cash := b.cash
	b.persist()
	b.mu.Unlock()

	b.Push(event)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"transaction": map[string]any{
			"id":               reference,
			"user_bom_id":      h.ID,
			"amount":           v.TotalValue,
			"fees":             q.FeeAmount,
			"net_amount":       q.TotalAmount,
			"new_cash_balance": cash,
			"executed_at":      time.Now().UTC(),
		},
	})
}

// bumpSocial moves the social value by the micro impact of a traded amount and
// returns the matching push event. Caller holds b.mu.
func (b *Backend) bumpSocial(assetID string, traded decimal.Decimal, action string) map[string]any {
	v := b.assets[assetID]
	delta := traded.Mul(b.engine.Constants().MicroImpactRate).Round(4)
	social := v.SocialValue.Add(delta)
	if social.IsNegative() {
		social = decimal.Zero
	}
	v = v.WithSocialUpdate(&social, nil)
	v.EffectiveCapitalization = v.EffectiveCapitalization.Add(traded.Abs())
	b.assets[assetID] = v
	b.version++

	return map[string]any{
		"type":             string(domain.EventSocialUpdate),
		"boom_id":          assetID,
		"new_social_value": v.SocialValue,
		"new_total_value":  v.TotalValue,
		"delta":            delta,
		"action":           action,
		"version":          b.version,
	}
}

func (b *Backend) quoteResponse(w http.ResponseWriter, assetID string, side domain.Side, qty int64) {
	b.mu.Lock()
	v, ok := b.assets[assetID]
	b.mu.Unlock()
	if !ok {
		writeError(w, rejection{status: http.StatusNotFound, code: "STALE_ASSET", message: "Ce Bom n'est plus disponible"})
		return
	}

	q := b.engine.EstimateQuote(v, side, qty)
	writeJSON(w, http.StatusOK, map[string]any{
		"unit_price":   q.UnitPrice,
		"fee_rate":     q.FeeRate,
		"fee_amount":   q.FeeAmount,
		"total_amount": q.TotalAmount,
		"quantity":     q.Quantity,
		"boom":         v,
	})
}

func (b *Backend) handleBuyQuote(w http.ResponseWriter, r *http.Request) {
	qty := int64(1)
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			writeError(w, rejection{status: http.StatusBadRequest, code: "BAD_REQUEST", message: "quantity must be a positive integer"})
			return
		}
		qty = n
	}
	b.quoteResponse(w, r.PathValue("id"), domain.SideBuy, qty)
}

func (b *Backend) handleSellQuote(w http.ResponseWriter, r *http.Request) {
	b.quoteResponse(w, r.PathValue("id"), domain.SideSell, 1)
}

func (b *Backend) handleInventory(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	items := make([]map[string]any, 0, len(b.holdings))
	for _, h := range b.holdings {
		items = append(items, map[string]any{
			"id":          h.ID,
			"boom_id":     h.AssetID,
			"title":       h.AssetName,
			"acquired_at": h.AcquiredAt,
		})
	}
	b.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		return items[i]["id"].(string) < items[j]["id"].(string)
	})
	writeJSON(w, http.StatusOK, map[string]any{"data": items})
}

func (b *Backend) handleWallet(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"cash_balance":    b.cash,
		"virtual_balance": b.virtual,
		"usable_balance":  b.usable(),
	})
}

func (b *Backend) handleCashBalance(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"cash_balance": b.cash})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (b *Backend) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Debug("stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := make(chan []byte, 64)
	b.subsMu.Lock()
	b.subs[ch] = struct{}{}
	b.subsMu.Unlock()
	defer func() {
		b.subsMu.Lock()
		delete(b.subs, ch)
		b.subsMu.Unlock()
	}()

	// reader answers pings and notices the client leaving
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case msg := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (b *Backend) restore() error {
	if b.store == nil {
		return nil
	}
	state, err := b.store.Load()
	if err != nil || state == nil {
		return err
	}

	b.cash = state.Cash
	b.virtual = state.Virtual
	b.reserved = state.Reserved
	b.version = state.Version
	for _, v := range state.Assets {
		b.assets[v.ID] = v
	}
	for id, name := range state.Names {
		b.names[id] = name
	}
	for _, h := range state.Holdings {
		b.holdings[h.ID] = h
	}
	return nil
}

// persist saves the state. Caller holds b.mu.
func (b *Backend) persist() {
	if b.store == nil {
		return
	}

	state := simstate.State{
		Cash:     b.cash,
		Virtual:  b.virtual,
		Reserved: b.reserved,
		Names:    b.names,
		Version:  b.version,
	}
	for _, v := range b.assets {
		state.Assets = append(state.Assets, v)
	}
	for _, h := range b.holdings {
		state.Holdings = append(state.Holdings, h)
	}
	if err := b.store.Save(state); err != nil {
		b.logger.Warn("failed to persist simulate state", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, rej rejection) {
	writeJSON(w, rej.status, map[string]any{
		"success": false,
		"code":    strings.ToUpper(rej.code),
		"message": rej.message,
	})
}
