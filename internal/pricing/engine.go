package pricing

import (
	"context"
	"fmt"

	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/noah-isme/order-totals/internal/discount"
	"github.com/noah-isme/order-totals/internal/tax"
	"github.com/shopspring/decimal"
)

// LinePrice is the priced form of a cart line.
type LinePrice struct {
	Line            cart.Line
	UnitPrice       decimal.Decimal
	Subtotal        decimal.Decimal
	Excl            decimal.Decimal
	Incl            decimal.Decimal
	Tax             decimal.Decimal
	TaxRate         decimal.Decimal
	DiscountAmount  decimal.Decimal
	AppliedDiscount *discount.Discount
}

// Calculator prices individual cart lines.
type Calculator struct {
	Tax        tax.Service
	Resolver   discount.Resolver
	Discounts  discount.Lookup
	Attributes AttributeParser
}

// LineDiscounts loads the candidates for line-level discounts.
func (c Calculator) LineDiscounts(ctx context.Context) ([]discount.Discount, error) {
	if c.Discounts == nil {
		return nil, nil
	}
	var out []discount.Discount
	for _, typ := range []discount.Type{discount.TypeCategories, discount.TypeSKUs} {
		list, err := c.Discounts.DiscountsByType(ctx, typ)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

// LineSubtotal prices one line, optionally applying its best line-level discount.
func (c Calculator) LineSubtotal(ctx context.Context, ct cart.Cart, line cart.Line, includeDiscounts bool) (LinePrice, error) {
	var candidates []discount.Discount
	if includeDiscounts {
		var err error
		if candidates, err = c.LineDiscounts(ctx); err != nil {
			return LinePrice{}, err
		}
	}
	return c.price(ctx, ct, line, candidates)
}

// Lines prices every line of the cart in order, loading discount candidates once.
func (c Calculator) Lines(ctx context.Context, ct cart.Cart, includeDiscounts bool) ([]LinePrice, error) {
	var candidates []discount.Discount
	if includeDiscounts {
		var err error
		if candidates, err = c.LineDiscounts(ctx); err != nil {
			return nil, err
		}
	}
	out := make([]LinePrice, 0, len(ct.Lines))
	for _, line := range ct.Lines {
		priced, err := c.price(ctx, ct, line, candidates)
		if err != nil {
			return nil, err
		}
		out = append(out, priced)
	}
	return out, nil
}

func (c Calculator) price(ctx context.Context, ct cart.Cart, line cart.Line, candidates []discount.Discount) (LinePrice, error) {
	if line.Quantity <= 0 {
		return LinePrice{}, fmt.Errorf("%w: line %s quantity must be positive", cart.ErrInvalidInput, line.ProductRef)
	}
	if line.UnitPrice.IsNegative() {
		return LinePrice{}, fmt.Errorf("%w: line %s unit price must not be negative", cart.ErrInvalidInput, line.ProductRef)
	}

	unit, err := c.unitPrice(line)
	if err != nil {
		return LinePrice{}, err
	}

	result := LinePrice{Line: line, DiscountAmount: decimal.Zero}
	if len(candidates) > 0 {
		applied, ok, err := c.Resolver.ResolveForLine(ctx, candidates, line, ct.Customer, ct.Store, unit)
		if err != nil {
			return LinePrice{}, err
		}
		if ok && applied.Amount.IsPositive() {
			unit = unit.Sub(applied.Amount)
			d := applied.Discount
			result.AppliedDiscount = &d
			result.DiscountAmount = applied.Amount.Mul(decimal.NewFromInt(int64(line.Quantity)))
		}
	}
	if unit.IsNegative() {
		unit = decimal.Zero
	}

	rate, err := c.Tax.ProductRate(ctx, ct, line)
	if err != nil {
		return LinePrice{}, err
	}

	result.UnitPrice = unit
	result.Subtotal = unit.Mul(decimal.NewFromInt(int64(line.Quantity)))
	result.TaxRate = rate
	result.Excl, result.Incl, result.Tax = c.Tax.Split(rate, result.Subtotal)
	return result, nil
}

func (c Calculator) unitPrice(line cart.Line) (decimal.Decimal, error) {
	unit := line.UnitPrice
	parser := c.Attributes
	if parser == nil {
		parser = JSONAttributeParser{}
	}
	surcharges, err := parser.Surcharges(line.Attributes)
	if err != nil {
		return decimal.Zero, fmt.Errorf("line %s: %w", line.ProductRef, err)
	}
	for _, s := range surcharges {
		unit = unit.Add(s)
	}
	return unit, nil
}
