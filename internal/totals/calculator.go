package totals

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/noah-isme/order-totals/internal/checkout"
	"github.com/noah-isme/order-totals/internal/discount"
	"github.com/noah-isme/order-totals/internal/obs"
	"github.com/noah-isme/order-totals/internal/pricing"
	"github.com/noah-isme/order-totals/internal/rewards"
	"github.com/noah-isme/order-totals/internal/shipping"
	"github.com/noah-isme/order-totals/internal/tax"
)

const instrumentationName = "github.com/noah-isme/order-totals/internal/totals"

var (
	// ErrInvalidInput is returned when the cart violates the input contract.
	ErrInvalidInput = cart.ErrInvalidInput
	// ErrMissingTaxAddress is returned when tax rates need an address and none is configured.
	ErrMissingTaxAddress = tax.ErrMissingTaxAddress
)

// PaymentFeeProvider returns the additional fee of a payment method.
type PaymentFeeProvider interface {
	AdditionalFee(ctx context.Context, c cart.Cart, method string, subtotal decimal.Decimal) (decimal.Decimal, error)
}

// CheckoutState exposes the checkout choices made for a cart.
type CheckoutState interface {
	SelectedPaymentMethod(ctx context.Context, c cart.Cart) (string, error)
	AppliedGiftCards(ctx context.Context, c cart.Cart) ([]checkout.GiftCard, error)
	RewardPoints(ctx context.Context, c cart.Cart) (int, error)
}

// Settings holds order-level options.
type Settings struct {
	FreeShippingOverXEnabled      bool
	FreeShippingOverXValue        decimal.Decimal
	FreeShippingOverXIncludingTax bool
	CurrencyDecimals              int32
}

// Deps wires the collaborators of the calculator.
type Deps struct {
	Discounts     discount.Lookup
	Validator     discount.Validator
	Tax           tax.Service
	ShippingRates shipping.RateProvider
	Attributes    pricing.AttributeParser
	Fees          PaymentFeeProvider
	Checkout      CheckoutState
	Rewards       rewards.Converter
	Settings      Settings
	Logger        zerolog.Logger
	Tracer        trace.Tracer
	Meter         metric.Meter
}

// Calculator produces order totals. It holds no per-request state and is safe
// for concurrent use.
type Calculator struct {
	deps        Deps
	resolver    discount.Resolver
	pricing     pricing.Calculator
	shipping    shipping.Calculator
	tracer      trace.Tracer
	grandTotals metric.Int64Counter
}

// NewCalculator builds a calculator from deps.
func NewCalculator(deps Deps) (*Calculator, error) {
	if deps.Settings.CurrencyDecimals <= 0 {
		deps.Settings.CurrencyDecimals = 2
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	counter, err := meter.Int64Counter("totals.grand_total.calculations",
		metric.WithDescription("Number of grand total calculations."))
	if err != nil {
		return nil, fmt.Errorf("grand total counter: %w", err)
	}

	if deps.Validator == nil {
		usage, _ := deps.Discounts.(discount.UsageCounter)
		deps.Validator = discount.RuleValidator{Usage: usage, Now: time.Now}
	}
	resolver := discount.Resolver{Validator: deps.Validator}
	return &Calculator{
		deps:     deps,
		resolver: resolver,
		pricing: pricing.Calculator{
			Tax:        deps.Tax,
			Resolver:   resolver,
			Discounts:  deps.Discounts,
			Attributes: deps.Attributes,
		},
		shipping: shipping.Calculator{
			Tax:       deps.Tax,
			Rates:     deps.ShippingRates,
			Resolver:  resolver,
			Discounts: deps.Discounts,
		},
		tracer:      tracer,
		grandTotals: counter,
	}, nil
}

// WithCheckout returns a copy of the calculator bound to a request's checkout state.
func (c *Calculator) WithCheckout(state CheckoutState) *Calculator {
	clone := *c
	clone.deps.Checkout = state
	return &clone
}

// Settings returns the order-level settings in use.
func (c *Calculator) Settings() Settings { return c.deps.Settings }

// Rewards returns the reward points converter in use.
func (c *Calculator) Rewards() rewards.Converter { return c.deps.Rewards }

func (c *Calculator) start(ctx context.Context, operation string, ct cart.Cart) (context.Context, func(*error)) {
	began := time.Now()
	ctx, span := c.tracer.Start(ctx, "totals."+operation, trace.WithAttributes(
		attribute.String("cart.id", ct.ID),
		attribute.Int("cart.lines", len(ct.Lines)),
	))
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.deps.Logger.Warn().Err(err).Str("cart_id", ct.ID).Str("operation", operation).Msg("totals_calculation_failed")
		}
		span.End()
		obs.ObserveCalculation(operation, err, obs.DurationMillis(time.Since(began)))
	}
}

func (c *Calculator) logDiscount(ct cart.Cart, applied *discount.Discount, amount decimal.Decimal) {
	if applied == nil {
		return
	}
	obs.ObserveDiscountApplied(string(applied.Type))
	c.deps.Logger.Debug().
		Str("cart_id", ct.ID).
		Int("discount_id", applied.ID).
		Str("discount_type", string(applied.Type)).
		Str("amount", amount.String()).
		Msg("discount_applied")
}
