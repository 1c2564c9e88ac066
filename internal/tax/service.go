package tax

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/shopspring/decimal"
)

// ErrMissingTaxAddress is returned when no address is available to look up tax rates.
var ErrMissingTaxAddress = errors.New("tax address unavailable")

// BasedOn selects which address drives tax rates.
type BasedOn string

const (
	BasedOnBilling  BasedOn = "billing"
	BasedOnShipping BasedOn = "shipping"
	BasedOnDefault  BasedOn = "default"
)

// ParseBasedOn maps a configuration value to BasedOn, defaulting to billing.
func ParseBasedOn(value string) BasedOn {
	switch BasedOn(strings.ToLower(strings.TrimSpace(value))) {
	case BasedOnShipping:
		return BasedOnShipping
	case BasedOnDefault:
		return BasedOnDefault
	default:
		return BasedOnBilling
	}
}

// Settings captures the store-wide tax configuration.
type Settings struct {
	PricesIncludeTax      bool
	ShippingIsTaxable     bool
	PaymentFeeIsTaxable   bool
	BasedOn               BasedOn
	DefaultAddress        *cart.Address
	ShippingTaxCategory   string
	PaymentFeeTaxCategory string
}

// RateRequest describes what a rate is needed for.
type RateRequest struct {
	Category string
	Address  *cart.Address
	Customer cart.Customer
	Store    cart.Store
}

// RateProvider returns a tax rate in percent.
type RateProvider interface {
	Rate(ctx context.Context, req RateRequest) (decimal.Decimal, error)
}

// Service resolves tax rates for products, shipping and payment fees.
type Service struct {
	Settings Settings
	Provider RateProvider
}

// Address returns the address tax is based on. A nil address with no error
// means prices already include tax and the store's home rate applies.
func (s Service) Address(c cart.Cart) (*cart.Address, error) {
	var addr *cart.Address
	switch s.Settings.BasedOn {
	case BasedOnShipping:
		addr = c.ShippingAddress
	case BasedOnDefault:
		addr = nil
	default:
		addr = c.BillingAddress
	}
	if addr == nil {
		addr = s.Settings.DefaultAddress
	}
	if addr == nil && !s.Settings.PricesIncludeTax {
		return nil, ErrMissingTaxAddress
	}
	return addr, nil
}

// ProductRate returns the tax rate of a cart line.
func (s Service) ProductRate(ctx context.Context, c cart.Cart, line cart.Line) (decimal.Decimal, error) {
	return s.rate(ctx, c, line.TaxCategory)
}

// ShippingRate returns the tax rate applied to shipping, zero when shipping is not taxable.
func (s Service) ShippingRate(ctx context.Context, c cart.Cart) (decimal.Decimal, error) {
	if !s.Settings.ShippingIsTaxable {
		return decimal.Zero, nil
	}
	return s.rate(ctx, c, s.Settings.ShippingTaxCategory)
}

// PaymentFeeRate returns the tax rate applied to the payment method fee, zero when it is not taxable.
func (s Service) PaymentFeeRate(ctx context.Context, c cart.Cart) (decimal.Decimal, error) {
	if !s.Settings.PaymentFeeIsTaxable {
		return decimal.Zero, nil
	}
	return s.rate(ctx, c, s.Settings.PaymentFeeTaxCategory)
}

// Split normalises amount, stated per the PricesIncludeTax setting, into its
// tax-exclusive and tax-inclusive forms and the tax between them.
func (s Service) Split(rate, amount decimal.Decimal) (excl, incl, tax decimal.Decimal) {
	tax = Portion(rate, amount, s.Settings.PricesIncludeTax)
	if s.Settings.PricesIncludeTax {
		return amount.Sub(tax), amount, tax
	}
	return amount, amount.Add(tax), tax
}

func (s Service) rate(ctx context.Context, c cart.Cart, category string) (decimal.Decimal, error) {
	if c.Customer.ExemptFromTax() {
		return decimal.Zero, nil
	}
	addr, err := s.Address(c)
	if err != nil {
		return decimal.Zero, err
	}
	if s.Provider == nil {
		return decimal.Zero, nil
	}
	rate, err := s.Provider.Rate(ctx, RateRequest{Category: category, Address: addr, Customer: c.Customer, Store: c.Store})
	if err != nil {
		return decimal.Zero, fmt.Errorf("tax rate %q: %w", category, err)
	}
	if rate.IsNegative() {
		return decimal.Zero, nil
	}
	return rate, nil
}

// FixedRateProvider serves configured rates by tax category, with per-country overrides.
type FixedRateProvider struct {
	Default    decimal.Decimal
	Categories map[string]decimal.Decimal
	Countries  map[string]decimal.Decimal
}

// Rate implements RateProvider.
func (p FixedRateProvider) Rate(_ context.Context, req RateRequest) (decimal.Decimal, error) {
	if req.Category != "" {
		if rate, ok := p.Categories[strings.ToLower(req.Category)]; ok {
			return rate, nil
		}
	}
	if req.Address != nil {
		if rate, ok := p.Countries[strings.ToUpper(req.Address.Country)]; ok {
			return rate, nil
		}
	}
	return p.Default, nil
}
