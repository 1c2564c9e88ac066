package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/noah-isme/order-totals/internal/config"
	"github.com/noah-isme/order-totals/internal/db"
	"github.com/noah-isme/order-totals/internal/discount"
	"github.com/noah-isme/order-totals/internal/ratelimit"
	"github.com/noah-isme/order-totals/internal/tax"
)

func writeDiscounts(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "discounts.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": 1, "name": "Ten percent", "type": "subtotal", "usePercentage": true, "percentage": "10"}
	]`), 0o600))
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DiscountsFile:    writeDiscounts(t),
		CurrencyDecimals: 2,
		Tax: config.TaxConfig{
			BasedOn:        "billing",
			DefaultCountry: "ID",
			DefaultRate:    decimal.NewFromInt(10),
		},
	}
}

func sampleCart() cart.Cart {
	return cart.Cart{
		ID:             "c-1",
		BillingAddress: &cart.Address{Country: "ID"},
		Lines: []cart.Line{
			{ID: "l-1", ProductRef: "sku-1", UnitPrice: decimal.NewFromInt(50), Quantity: 2},
		},
	}
}

func TestNewWithoutRedisUsesMemoryStores(t *testing.T) {
	deps, err := New(context.Background(), testConfig(t), Backends{}, zerolog.Nop())
	require.NoError(t, err)
	require.IsType(t, &discount.MemoryStore{}, deps.Discounts)
	require.IsType(t, ratelimit.StoreLimiter{}, deps.Limiter)
	require.IsType(t, tax.FixedRateProvider{}, deps.TaxRates)
	require.Nil(t, deps.RateService)

	res, err := deps.Calculator.SubTotal(context.Background(), sampleCart(), false)
	require.NoError(t, err)
	require.True(t, res.WithoutDiscount.Equal(decimal.NewFromInt(100)))
	require.True(t, res.DiscountAmount.Equal(decimal.NewFromInt(10)))
}

func TestNewWithRedisSeedsDiscounts(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	deps, err := New(context.Background(), testConfig(t), Backends{Redis: rdb}, zerolog.Nop())
	require.NoError(t, err)
	require.IsType(t, &discount.RedisStore{}, deps.Discounts)
	require.IsType(t, ratelimit.SlidingLimiter{}, deps.Limiter)

	got, err := deps.Discounts.DiscountsByType(context.Background(), discount.TypeSubTotal)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestNewWithPostgresMigratesAndSeeds(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres tests")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	cfg := testConfig(t)
	cfg.DBAutoMigrate = true
	deps, err := New(ctx, cfg, Backends{DB: pool}, zerolog.Nop())
	require.NoError(t, err)
	require.IsType(t, &discount.PostgresStore{}, deps.Discounts)

	got, err := deps.Discounts.DiscountsByType(ctx, discount.TypeSubTotal)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Percentage.Equal(decimal.NewFromInt(10)))
}

func TestNewFixedWindowLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig(t)
	cfg.RateLimitStrategy = "fixed"
	deps, err := New(context.Background(), cfg, Backends{Redis: rdb}, zerolog.Nop())
	require.NoError(t, err)
	require.IsType(t, ratelimit.StoreLimiter{}, deps.Limiter)
}

func TestNewUsesRateServiceWhenConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tax.RateServiceURL = "http://rates.invalid"
	deps, err := New(context.Background(), cfg, Backends{}, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, deps.RateService)
	require.Same(t, deps.RateService, deps.TaxRates)
	require.NotNil(t, deps.RateService.Breaker)
}

func TestNewRejectsBadFeeTable(t *testing.T) {
	cfg := testConfig(t)
	cfg.PaymentFees = "cod"
	_, err := New(context.Background(), cfg, Backends{}, zerolog.Nop())
	require.ErrorContains(t, err, "PAYMENT_FEES")
}

func TestTaxSettings(t *testing.T) {
	settings := TaxSettings(config.TaxConfig{BasedOn: "shipping", DefaultCountry: "SG", ShippingIsTaxable: true})
	require.Equal(t, tax.BasedOnShipping, settings.BasedOn)
	require.True(t, settings.ShippingIsTaxable)
	require.NotNil(t, settings.DefaultAddress)
	require.Equal(t, "SG", settings.DefaultAddress.Country)

	require.Nil(t, TaxSettings(config.TaxConfig{}).DefaultAddress)
}
