package shipping

import (
	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/shopspring/decimal"
)

// IsFreeShipping reports whether shipping is free for the cart: either the
// customer holds an active free-shipping role, or every shippable line ships
// free. A cart with no shippable line ships free.
func IsFreeShipping(c cart.Cart) bool {
	if c.Customer.HasFreeShippingRole() {
		return true
	}
	for _, line := range c.Lines {
		if line.IsShipEnabled && !line.IsFreeShipping {
			return false
		}
	}
	return true
}

// AdditionalCharge sums the per-unit additional shipping charges of shippable lines.
func AdditionalCharge(c cart.Cart) decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines {
		if !line.IsShipEnabled {
			continue
		}
		total = total.Add(line.AdditionalShippingCharge.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}
