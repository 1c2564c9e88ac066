package discount

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Type identifies where a discount applies.
type Type string

const (
	TypeSubTotal   Type = "subtotal"
	TypeShipping   Type = "shipping"
	TypeTotal      Type = "total"
	TypeCategories Type = "categories"
	TypeSKUs       Type = "skus"
)

// Types lists every supported discount type.
var Types = []Type{TypeSubTotal, TypeShipping, TypeTotal, TypeCategories, TypeSKUs}

// Limitation controls how often a discount may be used.
type Limitation string

const (
	LimitationUnlimited         Limitation = "unlimited"
	LimitationNTimes            Limitation = "n_times"
	LimitationNTimesPerCustomer Limitation = "n_times_per_customer"
)

var hundred = decimal.NewFromInt(100)

// Discount is a read-only discount definition.
type Discount struct {
	ID                 int                 `json:"id"`
	Name               string              `json:"name"`
	Type               Type                `json:"type"`
	UsePercentage      bool                `json:"usePercentage"`
	Percentage         decimal.Decimal     `json:"percentage"`
	Amount             decimal.Decimal     `json:"amount"`
	MaxAmount          decimal.NullDecimal `json:"maxAmount"`
	Limitation         Limitation          `json:"limitation,omitempty"`
	LimitationTimes    int                 `json:"limitationTimes,omitempty"`
	RequiresCouponCode bool                `json:"requiresCouponCode"`
	CouponCode         string              `json:"couponCode,omitempty"`
	StartsAt           *time.Time          `json:"startsAt,omitempty"`
	EndsAt             *time.Time          `json:"endsAt,omitempty"`
	CustomerRoleIDs    []int               `json:"customerRoleIds,omitempty"`
	StoreIDs           []int               `json:"storeIds,omitempty"`
	CategoryIDs        []int               `json:"categoryIds,omitempty"`
	ProductRefs        []string            `json:"productRefs,omitempty"`
}

// Lookup loads discount definitions by type.
type Lookup interface {
	DiscountsByType(ctx context.Context, typ Type) ([]Discount, error)
}

// Amount returns the monetary value of d against base. Percentage discounts
// scale with base, flat ones do not. The result lies in [0, base].
func Amount(d Discount, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	amount := d.Amount
	if d.UsePercentage {
		amount = base.Mul(d.Percentage).Div(hundred)
	}
	if d.MaxAmount.Valid && amount.GreaterThan(d.MaxAmount.Decimal) {
		amount = d.MaxAmount.Decimal
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(base) {
		return base
	}
	return amount
}

// MatchesCategories reports whether the discount targets any of the given categories.
func (d Discount) MatchesCategories(categoryIDs []int) bool {
	for _, want := range d.CategoryIDs {
		for _, have := range categoryIDs {
			if want == have {
				return true
			}
		}
	}
	return false
}

// MatchesProduct reports whether the discount targets the given product reference.
func (d Discount) MatchesProduct(ref string) bool {
	for _, candidate := range d.ProductRefs {
		if candidate == ref {
			return true
		}
	}
	return false
}
