package clients

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/boomkit/internal/domain"
)

// Field precedence lists. The first key present with a usable value wins.
// Payloads nesting their content under "data" are read from there first.
var (
	cashBalanceKeys    = []string{"cash_balance", "cashBalance", "cash", "balance"}
	virtualBalanceKeys = []string{"virtual_balance", "virtualBalance", "bonus_balance"}
	usableBalanceKeys  = []string{"usable_balance", "usableBalance", "spendable_balance", "available_cash"}

	receiptAmountKeys     = []string{"amount", "gross_amount", "total_amount"}
	receiptFeesKeys       = []string{"fees", "fee", "fee_amount", "total_fees"}
	receiptNetKeys        = []string{"net_amount", "netAmount", "net"}
	receiptNewBalanceKeys = []string{"new_cash_balance", "newCashBalance", "cash_balance", "new_balance"}
	receiptReferenceKeys  = []string{"reference", "transaction_id", "transactionId", "id"}
	receiptQuantityKeys   = []string{"quantity", "qty"}

	buyUnitPriceKeys   = []string{"unit_price", "unitPrice", "price", "buy_price", "sell_price"}
	sellUnitPriceKeys  = []string{"unit_price", "unitPrice", "price", "sell_price", "buy_price"}
	quoteFeeRateKeys   = []string{"fee_rate", "feeRate"}
	quoteFeeAmountKeys = []string{"fee_amount", "feeAmount", "fees", "fee"}
	quoteTotalKeys     = []string{"total_amount", "totalAmount", "total", "total_price"}
	quoteQuantityKeys  = []string{"quantity", "qty"}

	valuationObjectKeys = []string{"boom", "bom", "asset", "valuation"}
	valuationIDKeys     = []string{"id", "boom_id", "bom_id", "asset_id"}
	baseValueKeys       = []string{"base_value", "baseValue", "base_price", "value"}
	socialValueKeys     = []string{"social_value", "socialValue"}
	totalValueKeys      = []string{"total_value", "totalValue", "current_value"}
	marketCapKeys       = []string{"market_capitalization", "marketCapitalization", "market_cap"}
	effectiveCapKeys    = []string{"effective_capitalization", "effectiveCapitalization", "effective_cap", "capitalization"}
	capUnitsKeys        = []string{"capitalization_units", "capitalizationUnits", "cap_units"}
	poolKeys            = []string{"redistribution_pool", "redistributionPool", "pool"}
	palierKeys          = []string{"palier_threshold", "palierThreshold"}

	listKeys         = []string{"data", "items", "inventory", "results"}
	holdingIDKeys    = []string{"id", "user_bom_id", "holding_id"}
	holdingAssetKeys = []string{"boom_id", "bom_id", "asset_id"}
	holdingNameKeys  = []string{"title", "name"}
	holdingTimeKeys  = []string{"acquired_at", "purchased_at", "created_at"}
	holdingSoldKeys  = []string{"sold", "is_sold"}

	eventTypeKeys       = []string{"type", "event", "event_type"}
	eventIDKeys         = []string{"id", "event_id"}
	eventBoomKeys       = []string{"boom_id", "bom_id", "asset_id"}
	eventSocialKeys     = []string{"new_social_value", "social_value"}
	eventTotalKeys      = []string{"new_total_value", "total_value"}
	eventDeltaKeys      = []string{"delta"}
	eventActionKeys     = []string{"action"}
	eventSocialTagKeys  = []string{"social_event"}
	eventCashKeys       = []string{"new_cash_balance", "cash_balance"}
	eventVersionKeys    = []string{"version", "sequence", "seq"}
	eventMessageKeys    = []string{"message", "body", "title"}
	errorMessageKeys    = []string{"message", "error", "detail", "msg"}
	errorCodeKeys       = []string{"code", "error_code", "errorCode"}
)

// fields raw JSON object accessed through precedence lists.
type fields map[string]json.RawMessage

// decodeFields parses a JSON object. A nested "data" object shadows top-level keys.
func decodeFields(body []byte) (fields, error) {
	var top fields
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, errors.Wrap(err, "decode payload")
	}
	if top == nil {
		return fields{}, nil
	}

	if raw, ok := top["data"]; ok {
		var inner fields
		if err := json.Unmarshal(raw, &inner); err == nil && inner != nil {
			for k, v := range top {
				if _, exists := inner[k]; !exists && k != "data" {
					inner[k] = v
				}
			}
			return inner, nil
		}
	}

	return top, nil
}

// decodeList parses either a top-level array or an object wrapping one under a list key.
func decodeList(body []byte) ([]fields, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []fields
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, errors.Wrap(err, "decode list payload")
		}
		return items, nil
	}

	var top fields
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return nil, errors.Wrap(err, "decode list payload")
	}
	for _, key := range listKeys {
		raw, ok := top[key]
		if !ok {
			continue
		}
		var items []fields
		if err := json.Unmarshal(raw, &items); err == nil {
			return items, nil
		}
		if nested, err := decodeList(raw); err == nil {
			return nested, nil
		}
	}

	return nil, nil
}

// decimal returns the first key holding a number or a numeric string.
func (f fields) decimal(keys ...string) *decimal.Decimal {
	for _, key := range keys {
		raw, ok := f[key]
		if !ok {
			continue
		}
		if d, ok := parseDecimal(raw); ok {
			return &d
		}
	}
	return nil
}

func (f fields) str(keys ...string) string {
	for _, key := range keys {
		raw, ok := f[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n != "" {
			return n.String()
		}
	}
	return ""
}

func (f fields) integer(keys ...string) (int64, bool) {
	d := f.decimal(keys...)
	if d == nil {
		return 0, false
	}
	return d.IntPart(), true
}

func (f fields) boolean(keys ...string) bool {
	for _, key := range keys {
		raw, ok := f[key]
		if !ok {
			continue
		}
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return b
		}
		if s := f.str(key); s != "" {
			if parsed, err := strconv.ParseBool(s); err == nil {
				return parsed
			}
		}
	}
	return false
}

func (f fields) time(keys ...string) time.Time {
	s := f.str(keys...)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (f fields) object(keys ...string) fields {
	for _, key := range keys {
		raw, ok := f[key]
		if !ok {
			continue
		}
		var inner fields
		if err := json.Unmarshal(raw, &inner); err == nil && inner != nil {
			return inner
		}
	}
	return nil
}

func parseDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return decimal.Decimal{}, false
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Decimal{}, false
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if s == "" {
			return decimal.Decimal{}, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	}
	d, err := decimal.NewFromString(trimmed)
	return d, err == nil
}

// WalletState normalized wallet payload. Cash is nil when the server did not report it.
type WalletState struct {
	Cash    *decimal.Decimal
	Virtual *decimal.Decimal
	Usable  *decimal.Decimal
}

func normalizeWallet(body []byte) (WalletState, error) {
	f, err := decodeFields(body)
	if err != nil {
		return WalletState{}, err
	}
	return WalletState{
		Cash:    f.decimal(cashBalanceKeys...),
		Virtual: f.decimal(virtualBalanceKeys...),
		Usable:  f.decimal(usableBalanceKeys...),
	}, nil
}

func normalizeReceipt(body []byte, side domain.Side) (domain.TradeReceipt, error) {
	f, err := decodeFields(body)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	if tx := f.object("transaction", "receipt"); tx != nil {
		for k, v := range f {
			if _, exists := tx[k]; !exists {
				tx[k] = v
			}
		}
		f = tx
	}

	r := domain.TradeReceipt{
		Side:       side,
		Reference:  f.str(receiptReferenceKeys...),
		ExecutedAt: f.time("executed_at", "created_at"),
	}
	if q, ok := f.integer(receiptQuantityKeys...); ok {
		r.Quantity = q
	}
	if d := f.decimal(receiptAmountKeys...); d != nil {
		r.Amount = *d
	}
	if d := f.decimal(receiptFeesKeys...); d != nil {
		r.Fees = *d
	}
	if d := f.decimal(receiptNetKeys...); d != nil {
		r.NetAmount = *d
	} else if side == domain.SideSell {
		r.NetAmount = r.Amount.Sub(r.Fees)
	} else {
		r.NetAmount = r.Amount.Add(r.Fees)
	}
	if d := f.decimal(receiptNewBalanceKeys...); d != nil {
		r.NewCashBalance = *d
		r.BalanceReported = true
	}
	if r.ExecutedAt.IsZero() {
		r.ExecutedAt = time.Now()
	}

	return r, nil
}

func normalizeQuote(body []byte, assetID string, side domain.Side, quantity int64) (domain.Quote, *domain.AssetValuation, error) {
	f, err := decodeFields(body)
	if err != nil {
		return domain.Quote{}, nil, err
	}

	priceKeys := buyUnitPriceKeys
	if side == domain.SideSell {
		priceKeys = sellUnitPriceKeys
	}
	unit := f.decimal(priceKeys...)
	if unit == nil {
		return domain.Quote{}, nil, errors.New("quote payload has no unit price")
	}

	q := domain.Quote{
		AssetID:   assetID,
		Side:      side,
		UnitPrice: *unit,
		Quantity:  quantity,
	}
	if n, ok := f.integer(quoteQuantityKeys...); ok && n > 0 {
		q.Quantity = n
	}
	if q.Quantity < 1 {
		q.Quantity = 1
	}
	gross := q.UnitPrice.Mul(decimal.NewFromInt(q.Quantity))

	if d := f.decimal(quoteFeeAmountKeys...); d != nil {
		q.FeeAmount = *d
	}
	if d := f.decimal(quoteFeeRateKeys...); d != nil {
		q.FeeRate = *d
	} else if gross.GreaterThan(decimal.Zero) {
		q.FeeRate = q.FeeAmount.Div(gross).Round(6)
	}
	if d := f.decimal(quoteTotalKeys...); d != nil {
		q.TotalAmount = *d
	} else {
		q.TotalAmount = gross
	}

	return q, normalizeValuation(f, assetID), nil
}

// normalizeValuation reads valuation fields from a nested asset object or from
// the payload itself. It returns nil when no value field is present.
func normalizeValuation(f fields, fallbackID string) *domain.AssetValuation {
	src := f.object(valuationObjectKeys...)
	if src == nil {
		src = f
	}

	base := src.decimal(baseValueKeys...)
	social := src.decimal(socialValueKeys...)
	total := src.decimal(totalValueKeys...)
	if base == nil && total == nil {
		return nil
	}

	id := src.str(valuationIDKeys...)
	if id == "" {
		id = fallbackID
	}

	v := domain.NewAssetValuation(id, base, social, total)
	if d := src.decimal(marketCapKeys...); d != nil {
		v.MarketCapitalization = *d
	}
	if d := src.decimal(effectiveCapKeys...); d != nil {
		v.EffectiveCapitalization = *d
	}
	if n, ok := src.integer(capUnitsKeys...); ok {
		v.CapitalizationUnits = n
	}
	if d := src.decimal(poolKeys...); d != nil {
		v.RedistributionPool = *d
	}
	if d := src.decimal(palierKeys...); d != nil {
		v.PalierThreshold = *d
	}

	return &v
}

func normalizeHoldings(body []byte) ([]domain.Holding, error) {
	items, err := decodeList(body)
	if err != nil {
		return nil, err
	}

	holdings := make([]domain.Holding, 0, len(items))
	for _, item := range items {
		id := item.str(holdingIDKeys...)
		if id == "" {
			continue
		}
		assetID := item.str(holdingAssetKeys...)
		if assetID == "" {
			if asset := item.object(valuationObjectKeys...); asset != nil {
				assetID = asset.str(valuationIDKeys...)
			}
		}
		holdings = append(holdings, domain.Holding{
			ID:         id,
			AssetID:    assetID,
			AssetName:  item.str(holdingNameKeys...),
			AcquiredAt: item.time(holdingTimeKeys...),
			Sold:       item.boolean(holdingSoldKeys...),
		})
	}

	return holdings, nil
}

// DecodeStreamEvent normalizes one push stream message.
func DecodeStreamEvent(raw []byte) (domain.StreamEvent, error) {
	f, err := decodeFields(raw)
	if err != nil {
		return domain.StreamEvent{}, err
	}

	ev := domain.StreamEvent{
		Type:           domain.EventType(f.str(eventTypeKeys...)),
		ID:             f.str(eventIDKeys...),
		BoomID:         f.str(eventBoomKeys...),
		NewSocialValue: f.decimal(eventSocialKeys...),
		NewTotalValue:  f.decimal(eventTotalKeys...),
		Delta:          f.decimal(eventDeltaKeys...),
		Action:         f.str(eventActionKeys...),
		SocialEvent:    f.str(eventSocialTagKeys...),
		NewCashBalance: f.decimal(eventCashKeys...),
		Message:        f.str(eventMessageKeys...),
		ReceivedAt:     time.Now(),
	}
	if v, ok := f.integer(eventVersionKeys...); ok && v > 0 {
		ev.Version = uint64(v)
	}
	if !ev.Type.IsValid() {
		return ev, errors.Errorf("unknown stream event type %q", ev.Type)
	}

	return ev, nil
}
