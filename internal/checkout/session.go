package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// GiftCard is a gift card applied to the checkout with its remaining balance.
type GiftCard struct {
	Code      string          `json:"code" validate:"required"`
	Remaining decimal.Decimal `json:"remaining" validate:"gte=0"`
}

// Session carries the checkout choices of a single quote request.
type Session struct {
	PaymentMethod       string     `json:"paymentMethod,omitempty"`
	GiftCards           []GiftCard `json:"giftCards,omitempty" validate:"dive"`
	RewardPointsBalance int        `json:"rewardPointsBalance" validate:"gte=0"`
}

// SelectedPaymentMethod returns the payment method chosen for the cart.
func (s Session) SelectedPaymentMethod(context.Context, cart.Cart) (string, error) {
	return s.PaymentMethod, nil
}

// AppliedGiftCards returns the gift cards entered for the cart, in entry order.
func (s Session) AppliedGiftCards(context.Context, cart.Cart) ([]GiftCard, error) {
	return append([]GiftCard(nil), s.GiftCards...), nil
}

// RewardPoints returns the customer's available reward point balance.
func (s Session) RewardPoints(context.Context, cart.Cart) (int, error) {
	return s.RewardPointsBalance, nil
}

// Fee is the additional charge of a payment method, flat or a percentage of the order subtotal.
type Fee struct {
	Amount     decimal.Decimal
	Percentage bool
}

// FeeTable serves payment method fees from configuration.
type FeeTable map[string]Fee

// AdditionalFee returns the fee for method against subtotal. Unknown methods carry no fee.
func (t FeeTable) AdditionalFee(_ context.Context, _ cart.Cart, method string, subtotal decimal.Decimal) (decimal.Decimal, error) {
	fee, ok := t[strings.ToLower(strings.TrimSpace(method))]
	if !ok {
		return decimal.Zero, nil
	}
	amount := fee.Amount
	if fee.Percentage {
		amount = subtotal.Mul(fee.Amount).Div(hundred)
	}
	if amount.IsNegative() {
		return decimal.Zero, nil
	}
	return amount, nil
}

// ParseFeeTable parses "method:amount" pairs separated by commas. A trailing
// percent sign marks a percentage fee, e.g. "cod:2.5,card:1.5%".
func ParseFeeTable(value string) (FeeTable, error) {
	table := FeeTable{}
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		method, raw, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("payment fee %q: expected method:amount", pair)
		}
		raw = strings.TrimSpace(raw)
		fee := Fee{}
		if strings.HasSuffix(raw, "%") {
			fee.Percentage = true
			raw = strings.TrimSuffix(raw, "%")
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("payment fee %q: %w", pair, err)
		}
		fee.Amount = amount
		table[strings.ToLower(strings.TrimSpace(method))] = fee
	}
	return table, nil
}
