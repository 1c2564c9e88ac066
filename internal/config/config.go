package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	DatabaseURL        string
	DBAutoMigrate      bool
	CORSAllowedOrigins []string

	Tax      TaxConfig
	Shipping ShippingConfig
	Rewards  RewardsConfig

	PaymentFees      string
	CurrencyDecimals int32
	DiscountsFile    string

	RateLimitWindow   time.Duration
	RateLimitMax      int
	RateLimitStrategy string
}

// TaxConfig holds the store-wide tax settings.
type TaxConfig struct {
	PricesIncludeTax      bool
	ShippingIsTaxable     bool
	PaymentFeeIsTaxable   bool
	BasedOn               string
	DefaultCountry        string
	DefaultRate           decimal.Decimal
	CategoryRates         map[string]decimal.Decimal
	CountryRates          map[string]decimal.Decimal
	ShippingTaxCategory   string
	PaymentFeeTaxCategory string
	RateServiceURL        string
	RateServiceTimeout    time.Duration
}

// ShippingConfig holds shipping rate settings.
type ShippingConfig struct {
	BaseRate              decimal.NullDecimal
	FreeOverXEnabled      bool
	FreeOverXValue        decimal.Decimal
	FreeOverXIncludingTax bool
	RateCacheTTL          time.Duration
}

// RewardsConfig holds reward point settings.
type RewardsConfig struct {
	Enabled      bool
	ExchangeRate decimal.Decimal
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		DBAutoMigrate:      parseBool(valueOrDefault(k.String("DB_AUTO_MIGRATE"), "true")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		PaymentFees:        k.String("PAYMENT_FEES"),
		DiscountsFile:      strings.TrimSpace(k.String("DISCOUNTS_FILE")),
		RateLimitWindow:    parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:       parseInt(k.String("RATE_LIMIT_MAX"), 120),
		RateLimitStrategy:  strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_STRATEGY"), "sliding")),
		Tax: TaxConfig{
			PricesIncludeTax:      parseBool(k.String("TAX_PRICES_INCLUDE_TAX")),
			ShippingIsTaxable:     parseBool(k.String("TAX_SHIPPING_IS_TAXABLE")),
			PaymentFeeIsTaxable:   parseBool(k.String("TAX_PAYMENT_FEE_IS_TAXABLE")),
			BasedOn:               valueOrDefault(k.String("TAX_BASED_ON"), "billing"),
			DefaultCountry:        strings.ToUpper(strings.TrimSpace(k.String("TAX_DEFAULT_COUNTRY"))),
			ShippingTaxCategory:   strings.TrimSpace(k.String("TAX_SHIPPING_CATEGORY")),
			PaymentFeeTaxCategory: strings.TrimSpace(k.String("TAX_PAYMENT_FEE_CATEGORY")),
			RateServiceURL:        strings.TrimRight(strings.TrimSpace(k.String("TAX_RATE_SERVICE_URL")), "/"),
			RateServiceTimeout:    parseDuration(k.String("TAX_RATE_SERVICE_TIMEOUT"), "2s"),
		},
		Shipping: ShippingConfig{
			FreeOverXEnabled:      parseBool(k.String("SHIPPING_FREE_OVER_X_ENABLED")),
			FreeOverXIncludingTax: parseBool(k.String("SHIPPING_FREE_OVER_X_INCLUDING_TAX")),
			RateCacheTTL:          parseDuration(k.String("SHIPPING_RATE_CACHE_TTL"), "5m"),
		},
		Rewards: RewardsConfig{
			Enabled: parseBool(k.String("REWARD_POINTS_ENABLED")),
		},
	}

	var err error
	if cfg.Tax.DefaultRate, err = parseDecimal("TAX_DEFAULT_RATE", k.String("TAX_DEFAULT_RATE"), "0"); err != nil {
		return nil, err
	}
	if cfg.Tax.CategoryRates, err = parseDecimalMap("TAX_CATEGORY_RATES", k.String("TAX_CATEGORY_RATES"), strings.ToLower); err != nil {
		return nil, err
	}
	if cfg.Tax.CountryRates, err = parseDecimalMap("TAX_COUNTRY_RATES", k.String("TAX_COUNTRY_RATES"), strings.ToUpper); err != nil {
		return nil, err
	}
	if raw := strings.TrimSpace(k.String("SHIPPING_BASE_RATE")); raw != "" {
		rate, err := parseDecimal("SHIPPING_BASE_RATE", raw, "0")
		if err != nil {
			return nil, err
		}
		cfg.Shipping.BaseRate = decimal.NewNullDecimal(rate)
	}
	if cfg.Shipping.FreeOverXValue, err = parseDecimal("SHIPPING_FREE_OVER_X_VALUE", k.String("SHIPPING_FREE_OVER_X_VALUE"), "0"); err != nil {
		return nil, err
	}
	if cfg.Rewards.ExchangeRate, err = parseDecimal("REWARD_POINTS_EXCHANGE_RATE", k.String("REWARD_POINTS_EXCHANGE_RATE"), "1"); err != nil {
		return nil, err
	}
	cfg.CurrencyDecimals = int32(parseInt(k.String("CURRENCY_DECIMALS"), 2))

	if cfg.Tax.DefaultRate.IsNegative() {
		return nil, errors.New("TAX_DEFAULT_RATE must not be negative")
	}
	if cfg.Rewards.Enabled && !cfg.Rewards.ExchangeRate.IsPositive() {
		return nil, errors.New("REWARD_POINTS_EXCHANGE_RATE must be positive when reward points are enabled")
	}
	if cfg.CurrencyDecimals < 0 || cfg.CurrencyDecimals > 8 {
		return nil, errors.New("CURRENCY_DECIMALS must be between 0 and 8")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return n
}

func parseDecimal(key, value, fallback string) (decimal.Decimal, error) {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := decimal.NewFromString(base)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// parseDecimalMap reads "name:value" pairs, e.g. "books:0,food:5".
func parseDecimalMap(key, value string, normalise func(string) string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, pair := range splitAndTrim(value) {
		name, raw, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("%s: expected name:value, got %q", key, pair)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %q: %w", key, pair, err)
		}
		out[normalise(strings.TrimSpace(name))] = d
	}
	return out, nil
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
