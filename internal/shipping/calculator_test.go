package shipping

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/noah-isme/order-totals/internal/cache"
	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/noah-isme/order-totals/internal/discount"
	"github.com/noah-isme/order-totals/internal/tax"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func shippingCart() cart.Cart {
	return cart.Cart{
		Lines: []cart.Line{
			{ProductRef: "a", UnitPrice: dec("10"), Quantity: 3, IsShipEnabled: true, AdditionalShippingCharge: dec("5.5")},
			{ProductRef: "b", UnitPrice: dec("10"), Quantity: 4, IsShipEnabled: true, AdditionalShippingCharge: dec("6.5")},
			{ProductRef: "c", UnitPrice: dec("10"), Quantity: 5, IsShipEnabled: false, AdditionalShippingCharge: dec("7.5")},
		},
		ShippingAddress: &cart.Address{Country: "US"},
	}
}

func newCalculator(rates RateProvider, discounts ...discount.Discount) Calculator {
	return Calculator{
		Tax: tax.Service{
			Settings: tax.Settings{ShippingIsTaxable: true, DefaultAddress: &cart.Address{Country: "US"}},
			Provider: tax.FixedRateProvider{Default: dec("10")},
		},
		Rates:     rates,
		Discounts: discount.NewMemoryStore(discounts...),
	}
}

type countingProvider struct {
	calls int
	rate  decimal.Decimal
	ok    bool
	err   error
}

func (p *countingProvider) BaseRate(context.Context, RateRequest) (decimal.Decimal, bool, error) {
	p.calls++
	return p.rate, p.ok, p.err
}

func TestAdditionalChargeSkipsNonShippable(t *testing.T) {
	got := AdditionalCharge(shippingCart())
	require.True(t, got.Equal(dec("42.5")), got.String())
}

func TestIsFreeShipping(t *testing.T) {
	cases := []struct {
		name  string
		lines []cart.Line
		roles []cart.Role
		want  bool
	}{
		{"all shippable free", []cart.Line{{IsShipEnabled: true, IsFreeShipping: true}, {IsShipEnabled: true, IsFreeShipping: true}}, nil, true},
		{"one shippable not free", []cart.Line{{IsShipEnabled: true, IsFreeShipping: true}, {IsShipEnabled: true}}, nil, false},
		{"non-shippable ignored", []cart.Line{{IsShipEnabled: true, IsFreeShipping: true}, {IsShipEnabled: false}}, nil, true},
		{"no shippable lines", []cart.Line{{IsShipEnabled: false}}, nil, true},
		{"active free shipping role", []cart.Line{{IsShipEnabled: true}}, []cart.Role{{Active: true, FreeShipping: true}}, true},
		{"inactive free shipping role", []cart.Line{{IsShipEnabled: true}}, []cart.Role{{Active: false, FreeShipping: true}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := cart.Cart{Lines: tc.lines, Customer: cart.Customer{Roles: tc.roles}}
			require.Equal(t, tc.want, IsFreeShipping(c))
		})
	}
}

func TestComputeFixedRate(t *testing.T) {
	calc := newCalculator(FixedRateProvider{Rate: decimal.NewNullDecimal(dec("10"))})
	ctx := context.Background()

	excl, err := calc.Compute(ctx, shippingCart(), false)
	require.NoError(t, err)
	require.True(t, excl.Amount.Valid)
	require.True(t, excl.Amount.Decimal.Equal(dec("52.5")), excl.Amount.Decimal.String())
	require.True(t, excl.TaxRate.Equal(dec("10")))

	incl, err := calc.Compute(ctx, shippingCart(), true)
	require.NoError(t, err)
	require.True(t, incl.Amount.Decimal.Equal(dec("57.75")), incl.Amount.Decimal.String())
	require.True(t, incl.Tax().Equal(dec("5.25")))
}

func TestComputeWithShippingDiscount(t *testing.T) {
	calc := newCalculator(FixedRateProvider{Rate: decimal.NewNullDecimal(dec("10"))},
		discount.Discount{ID: 1, Type: discount.TypeShipping, Amount: dec("3")})
	ctx := context.Background()

	excl, err := calc.Compute(ctx, shippingCart(), false)
	require.NoError(t, err)
	require.True(t, excl.Amount.Decimal.Equal(dec("49.5")), excl.Amount.Decimal.String())
	require.True(t, excl.DiscountAmount.Equal(dec("3")))
	require.NotNil(t, excl.AppliedDiscount)

	incl, err := calc.Compute(ctx, shippingCart(), true)
	require.NoError(t, err)
	require.True(t, incl.Amount.Decimal.Equal(dec("54.45")), incl.Amount.Decimal.String())
}

func TestComputeNotTaxable(t *testing.T) {
	calc := newCalculator(FixedRateProvider{Rate: decimal.NewNullDecimal(dec("10"))})
	calc.Tax.Settings.ShippingIsTaxable = false

	incl, err := calc.Compute(context.Background(), shippingCart(), true)
	require.NoError(t, err)
	require.True(t, incl.Amount.Decimal.Equal(dec("52.5")))
	require.True(t, incl.TaxRate.IsZero())
}

func TestComputeFreeAndNoRate(t *testing.T) {
	ctx := context.Background()
	provider := &countingProvider{}
	calc := newCalculator(provider)

	free := shippingCart()
	free.Customer.Roles = []cart.Role{{Active: true, FreeShipping: true}}
	q, err := calc.Compute(ctx, free, true)
	require.NoError(t, err)
	require.True(t, q.Free)
	require.True(t, q.Amount.Valid && q.Amount.Decimal.IsZero())
	require.Zero(t, provider.calls)

	q, err = calc.Compute(ctx, shippingCart(), false)
	require.NoError(t, err)
	require.False(t, q.Amount.Valid)
	require.Equal(t, 1, provider.calls)

	digital := cart.Cart{Lines: []cart.Line{{ProductRef: "x", Quantity: 1}}}
	q, err = calc.Compute(ctx, digital, false)
	require.NoError(t, err)
	require.True(t, q.Amount.Valid && q.Amount.Decimal.IsZero())
	require.True(t, IsFreeShipping(digital))
	require.True(t, q.Free)
	require.Equal(t, 1, provider.calls)
}

func TestComputePropagatesProviderError(t *testing.T) {
	boom := errors.New("carrier down")
	calc := newCalculator(&countingProvider{err: boom})
	_, err := calc.Compute(context.Background(), shippingCart(), false)
	require.ErrorIs(t, err, boom)
}

func TestCachedRateProvider(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	next := &countingProvider{rate: dec("10"), ok: true}
	provider := CachedRateProvider{Next: next, Cache: cache.NewJSON(client, time.Minute)}
	req := RateRequest{Store: cart.Store{ID: 1}, Lines: shippingCart().ShippableLines()}

	for i := 0; i < 3; i++ {
		rate, ok, err := provider.BaseRate(context.Background(), req)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, rate.Equal(dec("10")))
	}
	require.Equal(t, 1, next.calls)

	req.Store.ID = 2
	_, _, err = provider.BaseRate(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 2, next.calls)
}

func TestRateRequestTotalWeight(t *testing.T) {
	req := RateRequest{Lines: []cart.Line{
		{Quantity: 2, Weight: dec("1.25")},
		{Quantity: 1, Weight: dec("0.5")},
	}}
	require.True(t, req.TotalWeight().Equal(dec("3")))
}
