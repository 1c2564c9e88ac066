package totals

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/noah-isme/order-totals/internal/discount"
	"github.com/noah-isme/order-totals/internal/tax"
)

// AppliedGiftCard is the portion of a gift card consumed by the order.
type AppliedGiftCard struct {
	Code   string
	Amount decimal.Decimal
}

// GrandTotalResult is the full breakdown of an order total. Amount is invalid
// when shipping is required but no rate is available.
type GrandTotalResult struct {
	Amount          decimal.NullDecimal
	SubTotal        SubTotalResult
	Shipping        ShippingResult
	PaymentFee      decimal.Decimal
	Tax             decimal.Decimal
	Taxes           tax.Ledger
	DiscountAmount  decimal.Decimal
	AppliedDiscount *discount.Discount
	GiftCards       []AppliedGiftCard
	RedeemedPoints  int
	RedeemedAmount  decimal.Decimal
}

// GrandTotal computes the amount due: subtotal, shipping, payment fee and tax,
// less the best order total discount, then gift cards and reward points.
func (c *Calculator) GrandTotal(ctx context.Context, ct cart.Cart) (res GrandTotalResult, err error) {
	ctx, done := c.start(ctx, "grand_total", ct)
	defer done(&err)
	if err = cart.Validate(ct); err != nil {
		return GrandTotalResult{}, err
	}

	sub, err := c.subTotal(ctx, ct, false)
	if err != nil {
		return GrandTotalResult{}, err
	}
	ship, err := c.shippingTotal(ctx, ct, false)
	if err != nil {
		return GrandTotalResult{}, err
	}
	fee, err := c.paymentFee(ctx, ct, sub.WithDiscount)
	if err != nil {
		return GrandTotalResult{}, err
	}
	taxes, err := c.taxTotal(ctx, ct, sub, ship, fee)
	if err != nil {
		return GrandTotalResult{}, err
	}

	res = GrandTotalResult{
		SubTotal:       sub,
		Shipping:       ship,
		PaymentFee:     fee,
		Tax:            taxes.Total,
		Taxes:          taxes.Taxes,
		DiscountAmount: decimal.Zero,
		RedeemedAmount: decimal.Zero,
	}

	total := sub.WithDiscount.Add(fee).Add(taxes.Total)
	if ship.Available() {
		total = total.Add(ship.Excl)
	}

	if total, err = c.applyTotalDiscount(ctx, ct, total, &res); err != nil {
		return GrandTotalResult{}, err
	}
	if total, err = c.applyGiftCards(ctx, ct, total, &res); err != nil {
		return GrandTotalResult{}, err
	}
	if total, err = c.redeemRewardPoints(ctx, ct, total, &res); err != nil {
		return GrandTotalResult{}, err
	}

	if total.IsNegative() {
		total = decimal.Zero
	}
	rounded := total.Round(c.deps.Settings.CurrencyDecimals)
	if ct.RequiresShipping() && !ship.Available() {
		res.Amount = decimal.NullDecimal{}
	} else {
		res.Amount = decimal.NewNullDecimal(rounded)
	}

	c.grandTotals.Add(ctx, 1, metric.WithAttributes(attribute.Bool("shipping_available", ship.Available())))
	c.deps.Logger.Debug().
		Str("cart_id", ct.ID).
		Str("amount", rounded.String()).
		Bool("shipping_available", ship.Available()).
		Msg("grand_total_calculated")
	return res, nil
}

func (c *Calculator) applyTotalDiscount(ctx context.Context, ct cart.Cart, total decimal.Decimal, res *GrandTotalResult) (decimal.Decimal, error) {
	if c.deps.Discounts == nil {
		return total, nil
	}
	candidates, err := c.deps.Discounts.DiscountsByType(ctx, discount.TypeTotal)
	if err != nil {
		return total, err
	}
	applied, ok, err := c.resolver.ResolveBest(ctx, candidates, discount.TypeTotal, ct.Customer, ct.Store, total)
	if err != nil {
		return total, err
	}
	if !ok || !applied.Amount.IsPositive() {
		return total, nil
	}
	d := applied.Discount
	res.AppliedDiscount = &d
	res.DiscountAmount = applied.Amount
	c.logDiscount(ct, &d, applied.Amount)
	return total.Sub(applied.Amount), nil
}

func (c *Calculator) applyGiftCards(ctx context.Context, ct cart.Cart, total decimal.Decimal, res *GrandTotalResult) (decimal.Decimal, error) {
	if c.deps.Checkout == nil || ct.IsRecurring {
		return total, nil
	}
	cards, err := c.deps.Checkout.AppliedGiftCards(ctx, ct)
	if err != nil {
		return total, err
	}
	for _, card := range cards {
		if !total.IsPositive() {
			break
		}
		used := decimal.Min(card.Remaining, total)
		if !used.IsPositive() {
			continue
		}
		res.GiftCards = append(res.GiftCards, AppliedGiftCard{Code: card.Code, Amount: used})
		total = total.Sub(used)
	}
	return total, nil
}

func (c *Calculator) redeemRewardPoints(ctx context.Context, ct cart.Cart, total decimal.Decimal, res *GrandTotalResult) (decimal.Decimal, error) {
	conv := c.deps.Rewards
	if !conv.Enabled || !ct.UseRewardPoints || !ct.Customer.Registered || c.deps.Checkout == nil || !total.IsPositive() {
		return total, nil
	}
	balance, err := c.deps.Checkout.RewardPoints(ctx, ct)
	if err != nil {
		return total, err
	}
	available := conv.PointsToAmount(balance)
	if !available.IsPositive() {
		return total, nil
	}
	if available.GreaterThanOrEqual(total) {
		points := conv.AmountToPoints(total)
		if points > balance {
			points = balance
		}
		res.RedeemedPoints = points
		res.RedeemedAmount = total
		return decimal.Zero, nil
	}
	res.RedeemedPoints = balance
	res.RedeemedAmount = available
	return total.Sub(available), nil
}
