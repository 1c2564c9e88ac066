package totals

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/noah-isme/order-totals/internal/tax"
)

// TaxResult is the total tax of an order together with its per-rate breakdown.
type TaxResult struct {
	Total decimal.Decimal
	Taxes tax.Ledger
}

// TaxTotal sums subtotal, shipping and payment fee tax, merged by rate.
func (c *Calculator) TaxTotal(ctx context.Context, ct cart.Cart) (res TaxResult, err error) {
	ctx, done := c.start(ctx, "tax", ct)
	defer done(&err)
	if err = cart.Validate(ct); err != nil {
		return TaxResult{}, err
	}

	sub, err := c.subTotal(ctx, ct, false)
	if err != nil {
		return TaxResult{}, err
	}
	ship, err := c.shippingTotal(ctx, ct, false)
	if err != nil {
		return TaxResult{}, err
	}
	fee, err := c.paymentFee(ctx, ct, sub.WithDiscount)
	if err != nil {
		return TaxResult{}, err
	}
	return c.taxTotal(ctx, ct, sub, ship, fee)
}

func (c *Calculator) taxTotal(ctx context.Context, ct cart.Cart, sub SubTotalResult, ship ShippingResult, fee decimal.Decimal) (TaxResult, error) {
	ledger := sub.Taxes.Clone()

	// Zero-rated charges still get an entry so the ledger lists every rate applied.
	if c.deps.Tax.Settings.ShippingIsTaxable && ship.Available() && !ship.Free {
		ledger.AddTax(ship.TaxRate, decimal.Max(ship.Tax(), decimal.Zero))
	}

	if c.deps.Tax.Settings.PaymentFeeIsTaxable && fee.IsPositive() {
		rate, err := c.deps.Tax.PaymentFeeRate(ctx, ct)
		if err != nil {
			return TaxResult{}, err
		}
		ledger.Add(rate, fee, false)
	}

	total := ledger.Total()
	if total.IsNegative() {
		total = decimal.Zero
	}
	return TaxResult{Total: total, Taxes: ledger}, nil
}

func (c *Calculator) paymentFee(ctx context.Context, ct cart.Cart, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if c.deps.Fees == nil || c.deps.Checkout == nil {
		return decimal.Zero, nil
	}
	method, err := c.deps.Checkout.SelectedPaymentMethod(ctx, ct)
	if err != nil {
		return decimal.Zero, err
	}
	if method == "" {
		return decimal.Zero, nil
	}
	fee, err := c.deps.Fees.AdditionalFee(ctx, ct, method, subtotal)
	if err != nil {
		return decimal.Zero, err
	}
	if fee.IsNegative() {
		return decimal.Zero, nil
	}
	return fee, nil
}
