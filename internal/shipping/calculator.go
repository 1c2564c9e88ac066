package shipping

import (
	"context"

	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/noah-isme/order-totals/internal/discount"
	"github.com/noah-isme/order-totals/internal/tax"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Quote is the outcome of a shipping computation. Amount is invalid when
// shipping is required but no rate is available.
type Quote struct {
	Amount          decimal.NullDecimal
	Excl            decimal.Decimal
	Incl            decimal.Decimal
	TaxRate         decimal.Decimal
	DiscountAmount  decimal.Decimal
	AppliedDiscount *discount.Discount
	Free            bool
}

// Tax returns the tax carried by the quote.
func (q Quote) Tax() decimal.Decimal {
	return q.Incl.Sub(q.Excl)
}

// Calculator computes shipping charges from a base rate provider.
type Calculator struct {
	Tax       tax.Service
	Rates     RateProvider
	Resolver  discount.Resolver
	Discounts discount.Lookup
}

// Compute returns the shipping charge for the cart. Base rates and additional
// charges are net amounts; the shipping discount is taken before tax.
func (c Calculator) Compute(ctx context.Context, ct cart.Cart, includingTax bool) (Quote, error) {
	if !ct.RequiresShipping() || IsFreeShipping(ct) {
		return Quote{Amount: decimal.NewNullDecimal(decimal.Zero), DiscountAmount: decimal.Zero, Free: true}, nil
	}

	if c.Rates == nil {
		return Quote{DiscountAmount: decimal.Zero}, nil
	}
	req := RateRequest{Store: ct.Store, Customer: ct.Customer, Address: ct.ShippingAddress, Lines: ct.ShippableLines()}
	base, ok, err := c.Rates.BaseRate(ctx, req)
	if err != nil {
		return Quote{}, err
	}
	if !ok {
		return Quote{DiscountAmount: decimal.Zero}, nil
	}

	raw := base.Add(AdditionalCharge(ct))
	quote := Quote{DiscountAmount: decimal.Zero}
	if c.Discounts != nil {
		candidates, err := c.Discounts.DiscountsByType(ctx, discount.TypeShipping)
		if err != nil {
			return Quote{}, err
		}
		applied, found, err := c.Resolver.ResolveBest(ctx, candidates, discount.TypeShipping, ct.Customer, ct.Store, raw)
		if err != nil {
			return Quote{}, err
		}
		if found && applied.Amount.IsPositive() {
			d := applied.Discount
			quote.AppliedDiscount = &d
			quote.DiscountAmount = applied.Amount
		}
	}
	net := raw.Sub(quote.DiscountAmount)
	if net.IsNegative() {
		net = decimal.Zero
	}

	rate, err := c.Tax.ShippingRate(ctx, ct)
	if err != nil {
		return Quote{}, err
	}
	quote.TaxRate = rate
	quote.Excl = net
	quote.Incl = net.Mul(hundred.Add(rate)).Div(hundred)
	if includingTax {
		quote.Amount = decimal.NewNullDecimal(quote.Incl)
	} else {
		quote.Amount = decimal.NewNullDecimal(quote.Excl)
	}
	return quote, nil
}
