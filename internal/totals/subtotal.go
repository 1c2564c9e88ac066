package totals

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/noah-isme/order-totals/internal/discount"
	"github.com/noah-isme/order-totals/internal/pricing"
	"github.com/noah-isme/order-totals/internal/tax"
)

// SubTotalResult is the priced subtotal of a cart.
type SubTotalResult struct {
	WithoutDiscount decimal.Decimal
	WithDiscount    decimal.Decimal
	DiscountAmount  decimal.Decimal
	AppliedDiscount *discount.Discount
	Lines           []pricing.LinePrice
	Taxes           tax.Ledger
}

// SubTotal prices every line and applies the best subtotal discount. The
// discount is computed on the tax-exclusive sum and reduces each tax rate's
// share proportionally.
func (c *Calculator) SubTotal(ctx context.Context, ct cart.Cart, includingTax bool) (res SubTotalResult, err error) {
	ctx, done := c.start(ctx, "subtotal", ct)
	defer done(&err)
	if err = cart.Validate(ct); err != nil {
		return SubTotalResult{}, err
	}
	return c.subTotal(ctx, ct, includingTax)
}

func (c *Calculator) subTotal(ctx context.Context, ct cart.Cart, includingTax bool) (SubTotalResult, error) {
	lines, err := c.pricing.Lines(ctx, ct, true)
	if err != nil {
		return SubTotalResult{}, err
	}

	var ledger tax.Ledger
	exclSum, inclSum := decimal.Zero, decimal.Zero
	for _, line := range lines {
		exclSum = exclSum.Add(line.Excl)
		inclSum = inclSum.Add(line.Incl)
		ledger.AddTax(line.TaxRate, line.Tax)
	}

	res := SubTotalResult{Lines: lines, DiscountAmount: decimal.Zero}
	discountExcl := decimal.Zero
	if c.deps.Discounts != nil {
		candidates, err := c.deps.Discounts.DiscountsByType(ctx, discount.TypeSubTotal)
		if err != nil {
			return SubTotalResult{}, err
		}
		applied, ok, err := c.resolver.ResolveBest(ctx, candidates, discount.TypeSubTotal, ct.Customer, ct.Store, exclSum)
		if err != nil {
			return SubTotalResult{}, err
		}
		if ok && applied.Amount.IsPositive() {
			d := applied.Discount
			res.AppliedDiscount = &d
			discountExcl = applied.Amount
		}
	}
	if discountExcl.GreaterThan(exclSum) {
		discountExcl = exclSum
	}

	discountIncl := discountExcl
	if discountExcl.IsPositive() && exclSum.IsPositive() {
		fraction := discountExcl.Div(exclSum)
		discountIncl = discountIncl.Add(ledger.Total().Mul(fraction))
		ledger.Reduce(fraction)
		c.logDiscount(ct, res.AppliedDiscount, discountExcl)
	}

	exclWithDiscount := exclSum.Sub(discountExcl)
	if exclWithDiscount.IsNegative() {
		exclWithDiscount = decimal.Zero
	}
	inclWithDiscount := exclWithDiscount.Add(ledger.Total())

	res.Taxes = ledger
	if includingTax {
		res.WithoutDiscount = inclSum
		res.WithDiscount = inclWithDiscount
		res.DiscountAmount = discountIncl
	} else {
		res.WithoutDiscount = exclSum
		res.WithDiscount = exclWithDiscount
		res.DiscountAmount = discountExcl
	}
	return res, nil
}
