package shipping

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/order-totals/internal/cache"
	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/shopspring/decimal"
)

// RateRequest describes the shipment a base rate is requested for.
type RateRequest struct {
	Store    cart.Store
	Customer cart.Customer
	Address  *cart.Address
	Lines    []cart.Line
}

// TotalWeight sums weight times quantity over the request lines.
func (r RateRequest) TotalWeight() decimal.Decimal {
	total := decimal.Zero
	for _, line := range r.Lines {
		total = total.Add(line.Weight.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// RateProvider returns the base shipping rate. ok is false when no rate can be offered.
type RateProvider interface {
	BaseRate(ctx context.Context, req RateRequest) (rate decimal.Decimal, ok bool, err error)
}

// FixedRateProvider always offers the same rate. An invalid rate means no rate is available.
type FixedRateProvider struct {
	Rate decimal.NullDecimal
}

// BaseRate implements RateProvider.
func (p FixedRateProvider) BaseRate(context.Context, RateRequest) (decimal.Decimal, bool, error) {
	if !p.Rate.Valid {
		return decimal.Zero, false, nil
	}
	return p.Rate.Decimal, true, nil
}

type cachedRate struct {
	Rate      decimal.Decimal `json:"rate"`
	Available bool            `json:"available"`
}

// CachedRateProvider memoises another provider's answers in Redis.
type CachedRateProvider struct {
	Next  RateProvider
	Cache *cache.JSON
}

// BaseRate implements RateProvider. Cache failures fall through to Next.
func (p CachedRateProvider) BaseRate(ctx context.Context, req RateRequest) (decimal.Decimal, bool, error) {
	key := cache.KeyShippingRate(req.Store.ID, Fingerprint(req))
	var hit cachedRate
	if found, err := p.Cache.Get(ctx, key, &hit); err == nil && found {
		return hit.Rate, hit.Available, nil
	}
	rate, ok, err := p.Next.BaseRate(ctx, req)
	if err != nil {
		return decimal.Zero, false, err
	}
	_ = p.Cache.Set(ctx, key, cachedRate{Rate: rate, Available: ok})
	return rate, ok, nil
}

// Fingerprint identifies the shipment contents and destination of a request.
func Fingerprint(req RateRequest) string {
	parts := make([]string, 0, len(req.Lines)+1)
	for _, line := range req.Lines {
		parts = append(parts, fmt.Sprintf("%s|%d|%s|%s|%s|%s",
			line.ProductRef, line.Quantity, line.Weight, line.Length, line.Width, line.Height))
	}
	sort.Strings(parts)
	if req.Address != nil {
		parts = append(parts, strings.ToUpper(req.Address.Country)+"|"+req.Address.Region+"|"+req.Address.PostalCode)
	}
	return strings.Join(parts, ";")
}
