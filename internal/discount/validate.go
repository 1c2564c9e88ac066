package discount

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/noah-isme/order-totals/internal/cart"
)

var (
	// ErrNotStarted is returned when the discount window has not opened yet.
	ErrNotStarted = errors.New("discount not started")
	// ErrExpired is returned when the discount window has closed.
	ErrExpired = errors.New("discount expired")
	// ErrCouponRequired indicates the customer has not entered the matching coupon code.
	ErrCouponRequired = errors.New("discount coupon code required")
	// ErrUsageLimitReached indicates the discount has exhausted its global quota.
	ErrUsageLimitReached = errors.New("discount usage limit reached")
	// ErrPerCustomerLimitReached indicates the customer has exhausted their allowance.
	ErrPerCustomerLimitReached = errors.New("discount per-customer usage limit reached")
	// ErrRoleRestricted is returned when the customer holds none of the required roles.
	ErrRoleRestricted = errors.New("discount restricted to customer roles")
	// ErrStoreRestricted is returned when the discount is not offered in the store.
	ErrStoreRestricted = errors.New("discount restricted to stores")
)

// Validator decides whether a discount may be applied for a customer in a store.
type Validator interface {
	IsValid(ctx context.Context, d Discount, customer cart.Customer, store cart.Store) (bool, error)
}

// UsageCounter reports how many times a discount has been redeemed.
type UsageCounter interface {
	TotalUses(ctx context.Context, discountID int) (int, error)
	CustomerUses(ctx context.Context, discountID, customerID int) (int, error)
}

// UsageRecorder stores a redemption once an order has consumed a discount.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, discountID, customerID int) error
}

// RuleValidator checks the discount's own constraints: window, coupon, usage
// limitation, role and store restrictions.
type RuleValidator struct {
	Usage UsageCounter
	Now   func() time.Time
}

// IsValid implements Validator. Rule violations yield false; lookup failures are returned.
func (v RuleValidator) IsValid(ctx context.Context, d Discount, customer cart.Customer, store cart.Store) (bool, error) {
	err := v.Check(ctx, d, customer, store)
	switch {
	case err == nil:
		return true, nil
	case isRuleViolation(err):
		return false, nil
	default:
		return false, err
	}
}

// Check returns the first rule the discount violates, or nil.
func (v RuleValidator) Check(ctx context.Context, d Discount, customer cart.Customer, store cart.Store) error {
	now := time.Now().UTC()
	if v.Now != nil {
		now = v.Now()
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return ErrNotStarted
	}
	if d.EndsAt != nil && now.After(*d.EndsAt) {
		return ErrExpired
	}
	if d.RequiresCouponCode && !hasCoupon(customer.CouponCodes, d.CouponCode) {
		return ErrCouponRequired
	}
	if len(d.CustomerRoleIDs) > 0 && !intersects(d.CustomerRoleIDs, customer.ActiveRoleIDs()) {
		return ErrRoleRestricted
	}
	if len(d.StoreIDs) > 0 && !slices.Contains(d.StoreIDs, store.ID) {
		return ErrStoreRestricted
	}
	return v.checkLimitation(ctx, d, customer)
}

func (v RuleValidator) checkLimitation(ctx context.Context, d Discount, customer cart.Customer) error {
	if v.Usage == nil {
		return nil
	}
	switch d.Limitation {
	case LimitationNTimes:
		used, err := v.Usage.TotalUses(ctx, d.ID)
		if err != nil {
			return err
		}
		if used >= d.LimitationTimes {
			return ErrUsageLimitReached
		}
	case LimitationNTimesPerCustomer:
		if !customer.Registered {
			return nil
		}
		used, err := v.Usage.CustomerUses(ctx, d.ID, customer.ID)
		if err != nil {
			return err
		}
		if used >= d.LimitationTimes {
			return ErrPerCustomerLimitReached
		}
	}
	return nil
}

func isRuleViolation(err error) bool {
	for _, target := range []error{
		ErrNotStarted, ErrExpired, ErrCouponRequired, ErrUsageLimitReached,
		ErrPerCustomerLimitReached, ErrRoleRestricted, ErrStoreRestricted,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func hasCoupon(entered []string, code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	for _, candidate := range entered {
		if strings.EqualFold(strings.TrimSpace(candidate), code) {
			return true
		}
	}
	return false
}

func intersects(a, b []int) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}
