package discount

import (
	"context"

	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/shopspring/decimal"
)

// Applied is a discount chosen by the resolver together with its value.
type Applied struct {
	Discount Discount
	Amount   decimal.Decimal
}

// Resolver picks the single best discount among candidates.
type Resolver struct {
	Validator Validator
}

// ResolveBest returns the valid discount of type typ with the largest amount
// against base. Ties go to the lowest ID. ok is false when none applies.
func (r Resolver) ResolveBest(ctx context.Context, candidates []Discount, typ Type, customer cart.Customer, store cart.Store, base decimal.Decimal) (Applied, bool, error) {
	return r.best(ctx, candidates, func(d Discount) bool { return d.Type == typ }, customer, store, base)
}

// ResolveForLine returns the best category or product discount targeting line,
// evaluated against the line's unit price.
func (r Resolver) ResolveForLine(ctx context.Context, candidates []Discount, line cart.Line, customer cart.Customer, store cart.Store, base decimal.Decimal) (Applied, bool, error) {
	match := func(d Discount) bool {
		switch d.Type {
		case TypeCategories:
			return d.MatchesCategories(line.CategoryIDs)
		case TypeSKUs:
			return d.MatchesProduct(line.ProductRef)
		default:
			return false
		}
	}
	return r.best(ctx, candidates, match, customer, store, base)
}

func (r Resolver) best(ctx context.Context, candidates []Discount, match func(Discount) bool, customer cart.Customer, store cart.Store, base decimal.Decimal) (Applied, bool, error) {
	var (
		best  Applied
		found bool
	)
	for _, d := range candidates {
		if !match(d) {
			continue
		}
		if r.Validator != nil {
			valid, err := r.Validator.IsValid(ctx, d, customer, store)
			if err != nil {
				return Applied{}, false, err
			}
			if !valid {
				continue
			}
		}
		amount := Amount(d, base)
		if !found || amount.GreaterThan(best.Amount) || (amount.Equal(best.Amount) && d.ID < best.Discount.ID) {
			best = Applied{Discount: d, Amount: amount}
			found = true
		}
	}
	return best, found, nil
}
