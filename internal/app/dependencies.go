package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/order-totals/internal/cache"
	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/noah-isme/order-totals/internal/checkout"
	"github.com/noah-isme/order-totals/internal/config"
	"github.com/noah-isme/order-totals/internal/db"
	"github.com/noah-isme/order-totals/internal/discount"
	"github.com/noah-isme/order-totals/internal/pricing"
	"github.com/noah-isme/order-totals/internal/ratelimit"
	"github.com/noah-isme/order-totals/internal/resilience"
	"github.com/noah-isme/order-totals/internal/rewards"
	"github.com/noah-isme/order-totals/internal/shipping"
	"github.com/noah-isme/order-totals/internal/tax"
	"github.com/noah-isme/order-totals/internal/totals"
)

const rateLimitPrefix = "totals:ratelimit:"

// discountStore is satisfied by the Postgres, Redis and in-memory stores.
type discountStore interface {
	discount.Lookup
	discount.UsageCounter
	discount.UsageRecorder
}

// Backends carries the optional infrastructure connections. Either may be nil.
type Backends struct {
	Redis *redis.Client
	DB    *pgxpool.Pool
}

// Dependencies enumerates the services shared by the API process.
type Dependencies struct {
	Redis           *redis.Client
	DB              *pgxpool.Pool
	Discounts       discountStore
	TaxRates        tax.RateProvider
	RateService     *tax.HTTPRateProvider
	Calculator      *totals.Calculator
	Limiter         ratelimit.Allower
	MetricsRegistry prometheus.Registerer
}

// New builds the calculator and its collaborators from cfg. Discounts are
// served from Postgres when configured, then Redis, then memory. Without Redis
// rate limiting is in-process.
func New(ctx context.Context, cfg *config.Config, backends Backends, logger zerolog.Logger) (*Dependencies, error) {
	rdb := backends.Redis
	deps := &Dependencies{
		Redis:           rdb,
		DB:              backends.DB,
		MetricsRegistry: prometheus.DefaultRegisterer,
	}

	store, err := newDiscountStore(ctx, cfg, backends, logger)
	if err != nil {
		return nil, err
	}
	deps.Discounts = store

	if cfg.Tax.RateServiceURL != "" {
		resilience.MustRegisterMetrics(deps.MetricsRegistry)
		deps.RateService = tax.NewHTTPRateProvider(cfg.Tax.RateServiceURL, cfg.Tax.RateServiceTimeout)
		deps.RateService.Breaker = resilience.NewBreaker(resilience.BreakerConfig{
			Target:       "tax_rates",
			MinRequests:  5,
			FailureRatio: 0.5,
			OpenFor:      30 * time.Second,
		}, logger)
		deps.TaxRates = deps.RateService
	} else {
		deps.TaxRates = tax.FixedRateProvider{
			Default:    cfg.Tax.DefaultRate,
			Categories: cfg.Tax.CategoryRates,
			Countries:  cfg.Tax.CountryRates,
		}
	}

	var shippingRates shipping.RateProvider = shipping.FixedRateProvider{Rate: cfg.Shipping.BaseRate}
	if rdb != nil {
		shippingRates = shipping.CachedRateProvider{
			Next:  shippingRates,
			Cache: cache.NewJSON(rdb, cfg.Shipping.RateCacheTTL),
		}
	}

	fees, err := checkout.ParseFeeTable(cfg.PaymentFees)
	if err != nil {
		return nil, fmt.Errorf("parse PAYMENT_FEES: %w", err)
	}

	calc, err := totals.NewCalculator(totals.Deps{
		Discounts:     store,
		Validator:     discount.RuleValidator{Usage: store, Now: time.Now},
		Tax:           tax.Service{Settings: TaxSettings(cfg.Tax), Provider: deps.TaxRates},
		ShippingRates: shippingRates,
		Attributes:    pricing.JSONAttributeParser{},
		Fees:          fees,
		Rewards:       rewards.Converter{Enabled: cfg.Rewards.Enabled, ExchangeRate: cfg.Rewards.ExchangeRate},
		Settings: totals.Settings{
			FreeShippingOverXEnabled:      cfg.Shipping.FreeOverXEnabled,
			FreeShippingOverXValue:        cfg.Shipping.FreeOverXValue,
			FreeShippingOverXIncludingTax: cfg.Shipping.FreeOverXIncludingTax,
			CurrencyDecimals:              cfg.CurrencyDecimals,
		},
		Logger: logger,
		Tracer: Tracer("github.com/noah-isme/order-totals/internal/totals"),
		Meter:  Meter("github.com/noah-isme/order-totals/internal/totals"),
	})
	if err != nil {
		return nil, fmt.Errorf("build calculator: %w", err)
	}
	deps.Calculator = calc

	switch {
	case rdb == nil:
		deps.Limiter = ratelimit.NewMemoryLimiter(rateLimitPrefix)
	case cfg.RateLimitStrategy == "fixed":
		limiter, err := ratelimit.NewRedisStoreLimiter(rdb, rateLimitPrefix)
		if err != nil {
			return nil, fmt.Errorf("build rate limiter: %w", err)
		}
		deps.Limiter = limiter
	default:
		deps.Limiter = ratelimit.SlidingLimiter{Client: rdb, Prefix: rateLimitPrefix}
	}
	return deps, nil
}

// TaxSettings converts configuration into tax service settings.
func TaxSettings(cfg config.TaxConfig) tax.Settings {
	settings := tax.Settings{
		PricesIncludeTax:      cfg.PricesIncludeTax,
		ShippingIsTaxable:     cfg.ShippingIsTaxable,
		PaymentFeeIsTaxable:   cfg.PaymentFeeIsTaxable,
		BasedOn:               tax.ParseBasedOn(cfg.BasedOn),
		ShippingTaxCategory:   cfg.ShippingTaxCategory,
		PaymentFeeTaxCategory: cfg.PaymentFeeTaxCategory,
	}
	if cfg.DefaultCountry != "" {
		settings.DefaultAddress = &cart.Address{Country: cfg.DefaultCountry}
	}
	return settings
}

func newDiscountStore(ctx context.Context, cfg *config.Config, backends Backends, logger zerolog.Logger) (discountStore, error) {
	var seed []discount.Discount
	if cfg.DiscountsFile != "" {
		discounts, err := discount.LoadFile(cfg.DiscountsFile)
		if err != nil {
			return nil, fmt.Errorf("load discounts: %w", err)
		}
		seed = discounts
	}

	switch {
	case backends.DB != nil:
		if cfg.DBAutoMigrate {
			if err := db.Migrate(ctx, backends.DB); err != nil {
				return nil, err
			}
		}
		store := discount.NewPostgresStore(backends.DB)
		if seed != nil {
			if err := store.Replace(ctx, seed); err != nil {
				return nil, err
			}
		}
		logger.Info().Str("backend", "postgres").Int("seeded", len(seed)).Msg("discount store ready")
		return store, nil
	case backends.Redis != nil:
		store := discount.NewRedisStore(backends.Redis)
		if seed != nil {
			if err := store.ReplaceExclusive(ctx, seed); err != nil {
				return nil, err
			}
		}
		logger.Info().Str("backend", "redis").Int("seeded", len(seed)).Msg("discount store ready")
		return store, nil
	default:
		logger.Info().Str("backend", "memory").Int("seeded", len(seed)).Msg("discount store ready")
		return discount.NewMemoryStore(seed...), nil
	}
}

// Tracer returns the default OpenTelemetry tracer for instrumentation hooks.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Meter returns the default OpenTelemetry meter for instrumentation hooks.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}
