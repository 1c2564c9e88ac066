package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/noah-isme/order-totals/internal/discount"
	"github.com/noah-isme/order-totals/internal/tax"
	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newCalculator(inclusive bool, discounts ...discount.Discount) Calculator {
	return Calculator{
		Tax: tax.Service{
			Settings: tax.Settings{PricesIncludeTax: inclusive, DefaultAddress: &cart.Address{Country: "US"}},
			Provider: tax.FixedRateProvider{Default: dec("10")},
		},
		Discounts: discount.NewMemoryStore(discounts...),
	}
}

func TestLineSubtotalExclusive(t *testing.T) {
	calc := newCalculator(false)
	line := cart.Line{ProductRef: "p1", UnitPrice: dec("12.34"), Quantity: 2}

	got, err := calc.LineSubtotal(context.Background(), cart.Cart{}, line, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Excl.Equal(dec("24.68")) || !got.Incl.Equal(dec("27.148")) {
		t.Fatalf("unexpected excl/incl %s/%s", got.Excl, got.Incl)
	}
	if !got.TaxRate.Equal(dec("10")) || !got.Tax.Equal(dec("2.468")) {
		t.Fatalf("unexpected tax %s at %s", got.Tax, got.TaxRate)
	}
	if got.AppliedDiscount != nil || !got.DiscountAmount.IsZero() {
		t.Fatalf("expected no discount, got %v", got.AppliedDiscount)
	}
}

func TestLineSubtotalInclusive(t *testing.T) {
	calc := newCalculator(true)
	line := cart.Line{ProductRef: "p1", UnitPrice: dec("11"), Quantity: 1}

	got, err := calc.LineSubtotal(context.Background(), cart.Cart{}, line, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Incl.Equal(dec("11")) || !got.Excl.Equal(dec("10")) {
		t.Fatalf("unexpected excl/incl %s/%s", got.Excl, got.Incl)
	}
}

func TestLineSubtotalAttributesAndCategoryDiscount(t *testing.T) {
	calc := newCalculator(false,
		discount.Discount{ID: 1, Type: discount.TypeCategories, CategoryIDs: []int{4}, Amount: dec("1")},
		discount.Discount{ID: 2, Type: discount.TypeCategories, CategoryIDs: []int{4}, UsePercentage: true, Percentage: dec("50"), MaxAmount: decimal.NewNullDecimal(dec("2"))},
	)
	line := cart.Line{
		ProductRef:  "p1",
		UnitPrice:   dec("10"),
		Quantity:    3,
		CategoryIDs: []int{4},
		Attributes:  json.RawMessage(`[{"name":"size","value":"XL","priceAdjustment":"1.5"},{"name":"color","value":"red","priceAdjustment":"0"}]`),
	}

	got, err := calc.LineSubtotal(context.Background(), cart.Cart{}, line, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AppliedDiscount == nil || got.AppliedDiscount.ID != 2 {
		t.Fatalf("expected discount 2 applied, got %+v", got.AppliedDiscount)
	}
	if !got.UnitPrice.Equal(dec("9.5")) {
		t.Fatalf("expected unit 9.5, got %s", got.UnitPrice)
	}
	if !got.Excl.Equal(dec("28.5")) || !got.DiscountAmount.Equal(dec("6")) {
		t.Fatalf("unexpected subtotal %s discount %s", got.Excl, got.DiscountAmount)
	}

	plain, err := calc.LineSubtotal(context.Background(), cart.Cart{}, line, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plain.Excl.Equal(dec("34.5")) {
		t.Fatalf("expected undiscounted 34.5, got %s", plain.Excl)
	}
}

func TestLineSubtotalRejectsInvalidInput(t *testing.T) {
	calc := newCalculator(false)
	ctx := context.Background()

	_, err := calc.LineSubtotal(ctx, cart.Cart{}, cart.Line{ProductRef: "p", UnitPrice: dec("1"), Quantity: 0}, false)
	if !errors.Is(err, cart.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	_, err = calc.LineSubtotal(ctx, cart.Cart{}, cart.Line{ProductRef: "p", UnitPrice: dec("1"), Quantity: 1, Attributes: json.RawMessage(`{broken`)}, false)
	if !errors.Is(err, ErrInvalidAttributes) || !errors.Is(err, cart.ErrInvalidInput) {
		t.Fatalf("expected invalid attributes, got %v", err)
	}
}

func TestLinesPricesInOrder(t *testing.T) {
	calc := newCalculator(false)
	c := cart.Cart{Lines: []cart.Line{
		{ProductRef: "a", UnitPrice: dec("12.34"), Quantity: 2},
		{ProductRef: "b", UnitPrice: dec("21.57"), Quantity: 3},
	}}
	lines, err := calc.Lines(context.Background(), c, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 2 || lines[1].Line.ProductRef != "b" || !lines[1].Excl.Equal(dec("64.71")) {
		t.Fatalf("unexpected lines %+v", lines)
	}
}
