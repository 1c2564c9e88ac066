package cart

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Line is a single cart line as seen by the totals engine.
type Line struct {
	ID                       string          `json:"id"`
	ProductRef               string          `json:"productRef" validate:"required"`
	UnitPrice                decimal.Decimal `json:"unitPrice" validate:"gte=0"`
	Quantity                 int             `json:"quantity" validate:"gt=0"`
	Attributes               json.RawMessage `json:"attributes,omitempty"`
	IsShipEnabled            bool            `json:"isShipEnabled"`
	IsFreeShipping           bool            `json:"isFreeShipping"`
	Weight                   decimal.Decimal `json:"weight" validate:"gte=0"`
	Length                   decimal.Decimal `json:"length" validate:"gte=0"`
	Width                    decimal.Decimal `json:"width" validate:"gte=0"`
	Height                   decimal.Decimal `json:"height" validate:"gte=0"`
	AdditionalShippingCharge decimal.Decimal `json:"additionalShippingCharge" validate:"gte=0"`
	CustomerEntersPrice      bool            `json:"customerEntersPrice"`
	TaxCategory              string          `json:"taxCategory,omitempty"`
	CategoryIDs              []int           `json:"categoryIds,omitempty"`
}

// Role is a customer role. Only active roles grant benefits.
type Role struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Active       bool   `json:"active"`
	FreeShipping bool   `json:"freeShipping"`
	TaxExempt    bool   `json:"taxExempt"`
}

// Customer identifies the buyer for discount, tax and shipping decisions.
type Customer struct {
	ID          int      `json:"id"`
	Registered  bool     `json:"registered"`
	TaxExempt   bool     `json:"taxExempt"`
	CouponCodes []string `json:"couponCodes,omitempty"`
	Roles       []Role   `json:"roles,omitempty"`
}

// HasFreeShippingRole reports whether any active role grants free shipping.
func (c Customer) HasFreeShippingRole() bool {
	for _, role := range c.Roles {
		if role.Active && role.FreeShipping {
			return true
		}
	}
	return false
}

// ExemptFromTax reports whether the customer or one of its active roles is tax exempt.
func (c Customer) ExemptFromTax() bool {
	if c.TaxExempt {
		return true
	}
	for _, role := range c.Roles {
		if role.Active && role.TaxExempt {
			return true
		}
	}
	return false
}

// ActiveRoleIDs lists the identifiers of the customer's active roles.
func (c Customer) ActiveRoleIDs() []int {
	ids := make([]int, 0, len(c.Roles))
	for _, role := range c.Roles {
		if role.Active {
			ids = append(ids, role.ID)
		}
	}
	return ids
}

// Store is the storefront the cart belongs to.
type Store struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// Address is the minimal address shape needed for tax resolution.
type Address struct {
	Country    string `json:"country" validate:"required"`
	Region     string `json:"region,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

// Cart is the input of every totals computation. It is never mutated by the engine.
type Cart struct {
	ID              string   `json:"id"`
	Lines           []Line   `json:"lines" validate:"dive"`
	Customer        Customer `json:"customer"`
	Store           Store    `json:"store"`
	BillingAddress  *Address `json:"billingAddress,omitempty" validate:"omitempty"`
	ShippingAddress *Address `json:"shippingAddress,omitempty" validate:"omitempty"`
	IsRecurring     bool     `json:"isRecurring"`
	UseRewardPoints bool     `json:"useRewardPoints"`
}

// RequiresShipping reports whether at least one line must be shipped.
func (c Cart) RequiresShipping() bool {
	for _, line := range c.Lines {
		if line.IsShipEnabled {
			return true
		}
	}
	return false
}

// ShippableLines returns the lines that need shipping.
func (c Cart) ShippableLines() []Line {
	lines := make([]Line, 0, len(c.Lines))
	for _, line := range c.Lines {
		if line.IsShipEnabled {
			lines = append(lines, line)
		}
	}
	return lines
}
