package totals

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/noah-isme/order-totals/internal/discount"
	"github.com/noah-isme/order-totals/internal/obs"
	"github.com/noah-isme/order-totals/internal/shipping"
)

// ShippingResult is the shipping charge of a cart. Amount is invalid when
// shipping is required but no rate is available.
type ShippingResult struct {
	Amount          decimal.NullDecimal
	Excl            decimal.Decimal
	Incl            decimal.Decimal
	TaxRate         decimal.Decimal
	DiscountAmount  decimal.Decimal
	AppliedDiscount *discount.Discount
	Free            bool
}

// Available reports whether a shipping amount could be determined.
func (r ShippingResult) Available() bool { return r.Amount.Valid }

// Tax returns the tax carried by the shipping charge.
func (r ShippingResult) Tax() decimal.Decimal { return r.Incl.Sub(r.Excl) }

// AdditionalShippingCharge sums the additional shipping charges of shippable lines.
func (c *Calculator) AdditionalShippingCharge(ct cart.Cart) decimal.Decimal {
	return shipping.AdditionalCharge(ct)
}

// IsFreeShipping reports whether the cart ships free by line flags or customer role.
func (c *Calculator) IsFreeShipping(ct cart.Cart) bool {
	return shipping.IsFreeShipping(ct)
}

// ShippingTotal computes the shipping charge, honouring the free-shipping-over-X threshold.
func (c *Calculator) ShippingTotal(ctx context.Context, ct cart.Cart, includingTax bool) (res ShippingResult, err error) {
	ctx, done := c.start(ctx, "shipping", ct)
	defer done(&err)
	if err = cart.Validate(ct); err != nil {
		return ShippingResult{}, err
	}
	return c.shippingTotal(ctx, ct, includingTax)
}

func (c *Calculator) shippingTotal(ctx context.Context, ct cart.Cart, includingTax bool) (ShippingResult, error) {
	free, err := c.freeOverThreshold(ctx, ct)
	if err != nil {
		return ShippingResult{}, err
	}
	if free {
		return ShippingResult{Amount: decimal.NewNullDecimal(decimal.Zero), DiscountAmount: decimal.Zero, Free: true}, nil
	}

	quote, err := c.shipping.Compute(ctx, ct, includingTax)
	if err != nil {
		return ShippingResult{}, err
	}
	if !quote.Amount.Valid {
		obs.ObserveShippingUnavailable()
		c.deps.Logger.Debug().Str("cart_id", ct.ID).Msg("shipping_unavailable")
	}
	c.logDiscount(ct, quote.AppliedDiscount, quote.DiscountAmount)
	return ShippingResult{
		Amount:          quote.Amount,
		Excl:            quote.Excl,
		Incl:            quote.Incl,
		TaxRate:         quote.TaxRate,
		DiscountAmount:  quote.DiscountAmount,
		AppliedDiscount: quote.AppliedDiscount,
		Free:            quote.Free,
	}, nil
}

func (c *Calculator) freeOverThreshold(ctx context.Context, ct cart.Cart) (bool, error) {
	settings := c.deps.Settings
	if !settings.FreeShippingOverXEnabled || !ct.RequiresShipping() || shipping.IsFreeShipping(ct) {
		return false, nil
	}
	sub, err := c.subTotal(ctx, ct, settings.FreeShippingOverXIncludingTax)
	if err != nil {
		return false, err
	}
	return sub.WithDiscount.GreaterThanOrEqual(settings.FreeShippingOverXValue), nil
}
