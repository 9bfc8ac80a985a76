package clients

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/boomkit/internal/domain"
)

const (
	defaultRequestTimeout = 15 * time.Second
	defaultReadRetries    = 2
	defaultRetryWait      = 500 * time.Millisecond
	defaultRetryMaxWait   = 5 * time.Second

	pathPurchase     = "/purchase/bom"
	pathSell         = "/market/sell"
	pathBuyQuote     = "/market/price/{id}/buy"
	pathSellQuote    = "/sell/quote/{id}"
	pathInventory    = "/purchase/inventory"
	pathCashBalance  = "/wallet/cash-balance"
	pathWalletDetail = "/wallet/balance"
)

// TokenSource returns the current bearer token. Session management lives outside this module.
type TokenSource func() string

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func() string { return token }
}

// BoomClient talks to the marketplace REST API and normalizes its payloads.
type BoomClient struct {
	http   *resty.Client
	tokens TokenSource
	logger *zap.Logger
}

// Option configures a BoomClient.
type Option func(*BoomClient)

// WithTimeout sets the per-request timeout. Timeouts surface as NetworkError.
func WithTimeout(d time.Duration) Option {
	return func(c *BoomClient) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *BoomClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithReadRetries sets how many times a failed GET is retried.
func WithReadRetries(n int) Option {
	return func(c *BoomClient) {
		if n >= 0 {
			c.http.SetRetryCount(n)
		}
	}
}

// NewBoomClient creates a client for the API rooted at baseURL.
// Only reads are retried: a trade POST is never replayed by the transport.
func NewBoomClient(baseURL string, tokens TokenSource, opts ...Option) *BoomClient {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if tokens == nil {
		tokens = StaticToken("")
	}

	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultRequestTimeout).
		SetRetryCount(defaultReadRetries).
		SetRetryWaitTime(defaultRetryWait).
		SetRetryMaxWaitTime(defaultRetryMaxWait).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
				return false
			}
			if err != nil {
				return true
			}
			return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError
		})

	c := &BoomClient{
		http:   rc,
		tokens: tokens,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *BoomClient) newRequest(ctx context.Context) *resty.Request {
	r := c.http.R().SetContext(ctx)
	if token := c.tokens(); token != "" {
		r.SetAuthToken(token)
	}
	return r
}

// Purchase buys quantity units of an asset. The receipt is authoritative.
func (c *BoomClient) Purchase(ctx context.Context, assetID string, quantity int64) (domain.TradeReceipt, error) {
	resp, err := c.newRequest(ctx).
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetBody(map[string]any{"boom_id": assetID, "quantity": quantity}).
		Post(pathPurchase)
	body, err := c.check("purchase", resp, err)
	if err != nil {
		return domain.TradeReceipt{}, err
	}

	receipt, err := normalizeReceipt(body, domain.SideBuy)
	if err != nil {
		return domain.TradeReceipt{}, errors.Wrap(err, "normalize purchase receipt")
	}
	receipt.AssetID = assetID
	if receipt.Quantity == 0 {
		receipt.Quantity = quantity
	}

	return receipt, nil
}

// Sell sells one holding. Holdings are non-fungible: one call per unit.
func (c *BoomClient) Sell(ctx context.Context, holdingID string) (domain.TradeReceipt, error) {
	resp, err := c.newRequest(ctx).
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetBody(map[string]any{"user_bom_id": holdingID}).
		Post(pathSell)
	body, err := c.check("sell", resp, err)
	if err != nil {
		return domain.TradeReceipt{}, err
	}

	receipt, err := normalizeReceipt(body, domain.SideSell)
	if err != nil {
		return domain.TradeReceipt{}, errors.Wrap(err, "normalize sell receipt")
	}
	receipt.HoldingID = holdingID
	receipt.Quantity = 1

	return receipt, nil
}

// BuyQuote fetches a live buy quote and, when present, the asset valuation attached to it.
func (c *BoomClient) BuyQuote(ctx context.Context, assetID string, quantity int64) (domain.Quote, *domain.AssetValuation, error) {
	resp, err := c.newRequest(ctx).
		SetPathParam("id", assetID).
		SetQueryParam("quantity", strconv.FormatInt(quantity, 10)).
		Get(pathBuyQuote)
	body, err := c.check("buy quote", resp, err)
	if err != nil {
		return domain.Quote{}, nil, err
	}

	q, v, err := normalizeQuote(body, assetID, domain.SideBuy, quantity)
	if err != nil {
		return domain.Quote{}, nil, errors.Wrap(err, "normalize buy quote")
	}
	c.checkValuation(v)
	return q, v, nil
}

// SellQuote fetches a live quote for selling one unit.
func (c *BoomClient) SellQuote(ctx context.Context, assetID string) (domain.Quote, *domain.AssetValuation, error) {
	resp, err := c.newRequest(ctx).
		SetPathParam("id", assetID).
		Get(pathSellQuote)
	body, err := c.check("sell quote", resp, err)
	if err != nil {
		return domain.Quote{}, nil, err
	}

	q, v, err := normalizeQuote(body, assetID, domain.SideSell, 1)
	if err != nil {
		return domain.Quote{}, nil, errors.Wrap(err, "normalize sell quote")
	}
	c.checkValuation(v)
	return q, v, nil
}

// Inventory lists the caller's holdings.
func (c *BoomClient) Inventory(ctx context.Context) ([]domain.Holding, error) {
	resp, err := c.newRequest(ctx).Get(pathInventory)
	body, err := c.check("inventory", resp, err)
	if err != nil {
		return nil, err
	}

	holdings, err := normalizeHoldings(body)
	if err != nil {
		return nil, errors.Wrap(err, "normalize inventory")
	}
	return holdings, nil
}

// Wallet performs a full wallet read. The detailed endpoint is tried first and
// the cash endpoint completes it when it does not report cash.
func (c *BoomClient) Wallet(ctx context.Context) (WalletState, error) {
	resp, err := c.newRequest(ctx).Get(pathWalletDetail)
	body, err := c.check("wallet balance", resp, err)
	if err != nil {
		return WalletState{}, err
	}

	state, err := normalizeWallet(body)
	if err != nil {
		return WalletState{}, errors.Wrap(err, "normalize wallet balance")
	}
	if state.Cash != nil {
		return state, nil
	}

	resp, err = c.newRequest(ctx).Get(pathCashBalance)
	body, err = c.check("cash balance", resp, err)
	if err != nil {
		return WalletState{}, err
	}
	cash, err := normalizeWallet(body)
	if err != nil {
		return WalletState{}, errors.Wrap(err, "normalize cash balance")
	}
	if cash.Cash == nil {
		return WalletState{}, errors.New("wallet payload reports no cash balance")
	}

	state.Cash = cash.Cash
	if state.Usable == nil {
		state.Usable = cash.Usable
	}
	return state, nil
}

// checkValuation flags payloads whose total disagrees with base + social.
// The values are kept as reported.
func (c *BoomClient) checkValuation(v *domain.AssetValuation) {
	if v == nil || v.Consistent() {
		return
	}
	c.logger.Warn("inconsistent asset valuation",
		zap.String("asset", v.ID),
		zap.String("base", v.BaseValue.String()),
		zap.String("social", v.SocialValue.String()),
		zap.String("total", v.TotalValue.String()))
}

// check converts a transport result into the error taxonomy and returns the body on success.
func (c *BoomClient) check(op string, resp *resty.Response, err error) ([]byte, error) {
	if err != nil {
		c.logger.Debug("request failed", zap.String("op", op), zap.Error(err))
		return nil, &domain.NetworkError{Op: op, Err: err}
	}
	if resp.IsSuccess() {
		return resp.Body(), nil
	}

	return nil, classifyHTTPError(op, resp.StatusCode(), resp.Body())
}

// classifyHTTPError maps a non-2xx response to the trade error taxonomy.
// Server codes take precedence over status codes, which take precedence over message heuristics.
func classifyHTTPError(op string, status int, body []byte) error {
	var code, message string
	if f, err := decodeFields(body); err == nil {
		code = strings.ToUpper(f.str(errorCodeKeys...))
		message = f.str(errorMessageKeys...)
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if message == "" {
		message = http.StatusText(status)
	}
	lower := strings.ToLower(message)

	switch code {
	case "INSUFFICIENT_FUNDS", "INSUFFICIENT_BALANCE":
		return errors.Wrap(domain.ErrInsufficientFunds, message)
	case "INSUFFICIENT_HOLDINGS", "NOT_ENOUGH_UNITS":
		return errors.Wrap(domain.ErrInsufficientHoldings, message)
	case "ALREADY_SOLD", "NOT_OWNER", "STALE_ASSET", "HOLDING_NOT_FOUND":
		return errors.Wrap(domain.ErrStaleAsset, message)
	}

	switch {
	case status == http.StatusPaymentRequired:
		return errors.Wrap(domain.ErrInsufficientFunds, message)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return &domain.NetworkError{Op: op, Err: errors.Errorf("status %d: %s", status, message)}
	case strings.Contains(lower, "insufficient") && (strings.Contains(lower, "balance") || strings.Contains(lower, "fund")),
		strings.Contains(lower, "solde insuffisant"):
		return errors.Wrap(domain.ErrInsufficientFunds, message)
	case strings.Contains(lower, "already sold"), strings.Contains(lower, "déjà vendu"), strings.Contains(lower, "not the owner"):
		return errors.Wrap(domain.ErrStaleAsset, message)
	case (status == http.StatusNotFound || status == http.StatusGone || status == http.StatusConflict) && op == "sell":
		return errors.Wrap(domain.ErrStaleAsset, message)
	}

	return &domain.ServerRejectedError{Status: status, Code: code, Message: message}
}
