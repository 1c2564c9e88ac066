package discount

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	invalid map[int]bool
	err     error
}

func (s stubValidator) IsValid(_ context.Context, d Discount, _ cart.Customer, _ cart.Store) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return !s.invalid[d.ID], nil
}

func TestResolveBestPicksMaximumValidOfType(t *testing.T) {
	candidates := []Discount{
		{ID: 1, Type: TypeSubTotal, Amount: dec("3")},
		{ID: 2, Type: TypeSubTotal, UsePercentage: true, Percentage: dec("10")},
		{ID: 3, Type: TypeSubTotal, Amount: dec("50")},
		{ID: 4, Type: TypeShipping, Amount: dec("90")},
	}
	r := Resolver{Validator: stubValidator{invalid: map[int]bool{3: true}}}

	applied, ok, err := r.ResolveBest(context.Background(), candidates, TypeSubTotal, cart.Customer{}, cart.Store{}, dec("89.39"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, applied.Discount.ID)
	require.True(t, applied.Amount.Equal(dec("8.939")), applied.Amount.String())
}

func TestResolveBestTieGoesToLowestID(t *testing.T) {
	candidates := []Discount{
		{ID: 9, Type: TypeTotal, Amount: dec("5")},
		{ID: 4, Type: TypeTotal, Amount: dec("5")},
	}
	applied, ok, err := Resolver{}.ResolveBest(context.Background(), candidates, TypeTotal, cart.Customer{}, cart.Store{}, dec("100"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 4, applied.Discount.ID)
}

func TestResolveBestNoneApplicable(t *testing.T) {
	candidates := []Discount{{ID: 1, Type: TypeSubTotal, Amount: dec("3")}}
	r := Resolver{Validator: stubValidator{invalid: map[int]bool{1: true}}}

	_, ok, err := r.ResolveBest(context.Background(), candidates, TypeSubTotal, cart.Customer{}, cart.Store{}, dec("10"))
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = r.ResolveBest(context.Background(), nil, TypeSubTotal, cart.Customer{}, cart.Store{}, dec("10"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResolveBestPropagatesValidatorError(t *testing.T) {
	boom := errors.New("usage store down")
	candidates := []Discount{{ID: 1, Type: TypeSubTotal, Amount: dec("3")}}
	_, _, err := Resolver{Validator: stubValidator{err: boom}}.ResolveBest(context.Background(), candidates, TypeSubTotal, cart.Customer{}, cart.Store{}, dec("10"))
	require.ErrorIs(t, err, boom)
}

func TestResolveForLineMatchesCategoriesAndProducts(t *testing.T) {
	candidates := []Discount{
		{ID: 1, Type: TypeCategories, CategoryIDs: []int{7}, Amount: dec("1")},
		{ID: 2, Type: TypeSKUs, ProductRefs: []string{"sku-1"}, Amount: dec("2")},
		{ID: 3, Type: TypeCategories, CategoryIDs: []int{8}, Amount: dec("5")},
	}
	line := cart.Line{ProductRef: "sku-1", CategoryIDs: []int{7}}

	applied, ok, err := Resolver{}.ResolveForLine(context.Background(), candidates, line, cart.Customer{}, cart.Store{}, dec("10"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, applied.Discount.ID)
	require.True(t, applied.Amount.Equal(dec("2")))
}

func TestRuleValidatorWindowAndCoupon(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)
	v := RuleValidator{Now: func() time.Time { return now }}
	ctx := context.Background()

	require.ErrorIs(t, v.Check(ctx, Discount{StartsAt: &after}, cart.Customer{}, cart.Store{}), ErrNotStarted)
	require.ErrorIs(t, v.Check(ctx, Discount{EndsAt: &before}, cart.Customer{}, cart.Store{}), ErrExpired)
	require.NoError(t, v.Check(ctx, Discount{StartsAt: &before, EndsAt: &after}, cart.Customer{}, cart.Store{}))

	coupon := Discount{RequiresCouponCode: true, CouponCode: "SPRING"}
	require.ErrorIs(t, v.Check(ctx, coupon, cart.Customer{}, cart.Store{}), ErrCouponRequired)
	require.NoError(t, v.Check(ctx, coupon, cart.Customer{CouponCodes: []string{" spring "}}, cart.Store{}))

	ok, err := v.IsValid(ctx, coupon, cart.Customer{}, cart.Store{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRuleValidatorRolesAndStores(t *testing.T) {
	v := RuleValidator{}
	ctx := context.Background()
	d := Discount{CustomerRoleIDs: []int{5}, StoreIDs: []int{2}}

	customer := cart.Customer{Roles: []cart.Role{{ID: 5, Active: false}}}
	require.ErrorIs(t, v.Check(ctx, d, customer, cart.Store{ID: 2}), ErrRoleRestricted)

	customer.Roles[0].Active = true
	require.ErrorIs(t, v.Check(ctx, d, customer, cart.Store{ID: 1}), ErrStoreRestricted)
	require.NoError(t, v.Check(ctx, d, customer, cart.Store{ID: 2}))
}

func TestRuleValidatorLimitations(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.RecordUsage(ctx, 1, 10))
	require.NoError(t, store.RecordUsage(ctx, 1, 11))
	v := RuleValidator{Usage: store}

	nTimes := Discount{ID: 1, Limitation: LimitationNTimes, LimitationTimes: 2}
	require.ErrorIs(t, v.Check(ctx, nTimes, cart.Customer{}, cart.Store{}), ErrUsageLimitReached)
	nTimes.LimitationTimes = 3
	require.NoError(t, v.Check(ctx, nTimes, cart.Customer{}, cart.Store{}))

	perCustomer := Discount{ID: 1, Limitation: LimitationNTimesPerCustomer, LimitationTimes: 1}
	require.ErrorIs(t, v.Check(ctx, perCustomer, cart.Customer{ID: 10, Registered: true}, cart.Store{}), ErrPerCustomerLimitReached)
	require.NoError(t, v.Check(ctx, perCustomer, cart.Customer{ID: 12, Registered: true}, cart.Store{}))
	require.NoError(t, v.Check(ctx, perCustomer, cart.Customer{ID: 10}, cart.Store{}))
}

func TestResolverNeverReturnsInvalid(t *testing.T) {
	now := time.Now()
	expired := now.Add(-time.Minute)
	candidates := []Discount{
		{ID: 1, Type: TypeShipping, Amount: decimal.NewFromInt(100), EndsAt: &expired},
		{ID: 2, Type: TypeShipping, Amount: decimal.NewFromInt(1)},
	}
	r := Resolver{Validator: RuleValidator{Now: func() time.Time { return now }}}
	applied, ok, err := r.ResolveBest(context.Background(), candidates, TypeShipping, cart.Customer{}, cart.Store{}, decimal.NewFromInt(50))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, applied.Discount.ID)
}
