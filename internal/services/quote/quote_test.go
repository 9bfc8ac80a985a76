package quote

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/boomkit/internal/domain"
	"github.com/vadiminshakov/boomkit/internal/services/market/book"
	"github.com/vadiminshakov/boomkit/internal/services/valuation"
)

type mockQuoteAPI struct {
	mock.Mock
}

func (m *mockQuoteAPI) BuyQuote(ctx context.Context, assetID string, quantity int64) (domain.Quote, *domain.AssetValuation, error) {
	args := m.Called(ctx, assetID, quantity)
	v, _ := args.Get(1).(*domain.AssetValuation)
	return args.Get(0).(domain.Quote), v, args.Error(2)
}

func (m *mockQuoteAPI) SellQuote(ctx context.Context, assetID string) (domain.Quote, *domain.AssetValuation, error) {
	args := m.Called(ctx, assetID)
	v, _ := args.Get(1).(*domain.AssetValuation)
	return args.Get(0).(domain.Quote), v, args.Error(2)
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newService(api *mockQuoteAPI) (*Service, *book.Book) {
	b := book.New()
	return NewService(api, b, valuation.NewEngine(domain.DefaultCapitalizationConstants()), nil), b
}

func TestService_BuyQuoteLive(t *testing.T) {
	api := &mockQuoteAPI{}
	svc, b := newService(api)

	v := domain.NewAssetValuation("b1", nil, dec("10"), dec("100"))
	api.On("BuyQuote", mock.Anything, "b1", int64(2)).
		Return(domain.Quote{AssetID: "b1", Side: domain.SideBuy, UnitPrice: decimal.NewFromInt(105), Quantity: 2}, &v, nil)

	q, err := svc.BuyQuote(context.Background(), "b1", 2)
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.False(t, q.Estimated)

	stored, ok := b.Get("b1")
	require.True(t, ok, "valuation attached to a quote is recorded")
	assert.True(t, stored.TotalValue.Equal(decimal.NewFromInt(100)))
	api.AssertExpectations(t)
}

func TestService_CrossedQuoteDiscarded(t *testing.T) {
	api := &mockQuoteAPI{}
	svc, b := newService(api)
	b.Put(domain.NewAssetValuation("b1", nil, dec("10"), dec("100")))

	api.On("SellQuote", mock.Anything, "b1").
		Return(domain.Quote{AssetID: "b1", Side: domain.SideSell, UnitPrice: decimal.NewFromInt(120)}, nil, nil)

	q, err := svc.SellQuote(context.Background(), "b1")
	assert.Nil(t, q)
	assert.True(t, errors.Is(err, ErrCrossedQuote))

	est, err := svc.QuoteOrEstimate(context.Background(), domain.SideSell, "b1", 1)
	require.NoError(t, err)
	assert.True(t, est.Estimated)
	assert.True(t, est.Respects(decimal.NewFromInt(100)))
}

func TestService_QuoteOrEstimateFallsBack(t *testing.T) {
	api := &mockQuoteAPI{}
	svc, b := newService(api)

	api.On("BuyQuote", mock.Anything, "b1", int64(1)).
		Return(domain.Quote{}, nil, &domain.NetworkError{Op: "buy quote", Err: errors.New("timeout")})

	_, err := svc.QuoteOrEstimate(context.Background(), domain.SideBuy, "b1", 1)
	assert.True(t, errors.Is(err, ErrNoValuation))

	b.Put(domain.NewAssetValuation("b1", nil, dec("0"), dec("200")))
	q, err := svc.QuoteOrEstimate(context.Background(), domain.SideBuy, "b1", 1)
	require.NoError(t, err)
	assert.True(t, q.Estimated)
	assert.True(t, q.UnitPrice.Equal(decimal.NewFromInt(210)))
}

func TestService_FeesFallbackMarksEstimate(t *testing.T) {
	api := &mockQuoteAPI{}
	svc, b := newService(api)
	b.Put(domain.NewAssetValuation("b1", nil, dec("0"), dec("100")))

	api.On("BuyQuote", mock.Anything, "b1", int64(1)).
		Return(domain.Quote{AssetID: "b1", Side: domain.SideBuy, UnitPrice: decimal.NewFromInt(104)}, nil, nil)
	api.On("SellQuote", mock.Anything, "b1").
		Return(domain.Quote{}, nil, errors.New("boom"))

	fees, err := svc.Fees(context.Background(), "b1")
	require.NoError(t, err)
	assert.True(t, fees.Estimated)
	assert.True(t, fees.BuyPercent.Equal(decimal.NewFromInt(4)))
	assert.True(t, fees.SellPercent.Equal(decimal.NewFromInt(5)))
}
