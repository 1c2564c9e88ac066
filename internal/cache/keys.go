package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
)

const prefix = "totals:"

// KeyDiscounts returns the catalog key holding every discount of a type.
func KeyDiscounts(discountType string) string {
	return prefix + "discounts:" + discountType
}

// KeyDiscountUsage returns the counter key for the overall usage of a discount.
func KeyDiscountUsage(discountID int) string {
	return prefix + "discount_usage:" + strconv.Itoa(discountID)
}

// KeyDiscountCustomerUsage returns the counter key for a customer's usage of a discount.
func KeyDiscountCustomerUsage(discountID, customerID int) string {
	return KeyDiscountUsage(discountID) + ":customer:" + strconv.Itoa(customerID)
}

// KeyShippingRate returns a per-store key for a cached base shipping rate.
// The fingerprint should identify the shippable contents of the cart.
func KeyShippingRate(storeID int, fingerprint string) string {
	sum := sha1.Sum([]byte(fingerprint))
	return prefix + strconv.Itoa(storeID) + ":shipping_rate:" + hex.EncodeToString(sum[:])
}

// KeyDiscountsLock guards replacement of the discount catalog.
func KeyDiscountsLock() string {
	return prefix + "lock:discounts"
}
