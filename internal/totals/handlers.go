package totals

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/noah-isme/order-totals/internal/checkout"
	"github.com/noah-isme/order-totals/internal/common"
	"github.com/noah-isme/order-totals/internal/discount"
	"github.com/noah-isme/order-totals/internal/tax"
)

// QuoteRequest is the payload accepted by the quote endpoints.
type QuoteRequest struct {
	Cart         cart.Cart        `json:"cart"`
	Checkout     checkout.Session `json:"checkout"`
	IncludingTax bool             `json:"includingTax"`
}

// UsageRequest records that an order redeemed a discount.
type UsageRequest struct {
	CustomerID int `json:"customerId" validate:"gte=0"`
}

// Handler exposes the calculator over HTTP. Usage is optional; without it the
// redemption endpoint is not mounted.
type Handler struct {
	Calc  *Calculator
	Usage discount.UsageRecorder
}

// Routes registers the quote and reward endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/quotes", h.Quote)
	r.Post("/quotes/subtotal", h.SubTotal)
	r.Post("/quotes/shipping", h.Shipping)
	r.Post("/quotes/tax", h.Tax)
	r.Get("/rewards/amount", h.PointsToAmount)
	r.Get("/rewards/points", h.AmountToPoints)
	if h.Usage != nil {
		r.Post("/discounts/{id}/usage", h.RecordUsage)
	}
}

// Quote returns the full order total breakdown.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	req, calc, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := calc.GrandTotal(r.Context(), req.Cart)
	if err != nil {
		h.writeError(w, err)
		return
	}
	decimals := calc.Settings().CurrencyDecimals
	giftCards := make([]map[string]any, 0, len(res.GiftCards))
	for _, gc := range res.GiftCards {
		giftCards = append(giftCards, map[string]any{"code": gc.Code, "amount": money(gc.Amount, decimals)})
	}
	common.Data(w, map[string]any{
		"quoteId":         uuid.NewString(),
		"cartId":          req.Cart.ID,
		"total":           nullMoney(res.Amount, decimals),
		"subtotal":        subTotalBody(res.SubTotal, decimals),
		"shipping":        shippingBody(res.Shipping, decimals),
		"paymentFee":      money(res.PaymentFee, decimals),
		"tax":             money(res.Tax, decimals),
		"taxRates":        ledgerBody(res.Taxes, decimals),
		"discount":        money(res.DiscountAmount, decimals),
		"appliedDiscount": discountBody(res.AppliedDiscount),
		"giftCards":       giftCards,
		"rewardPoints": map[string]any{
			"points": res.RedeemedPoints,
			"amount": money(res.RedeemedAmount, decimals),
		},
	})
}

// SubTotal returns the cart subtotal.
func (h *Handler) SubTotal(w http.ResponseWriter, r *http.Request) {
	req, calc, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := calc.SubTotal(r.Context(), req.Cart, req.IncludingTax)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, subTotalBody(res, calc.Settings().CurrencyDecimals))
}

// Shipping returns the shipping charge of the cart.
func (h *Handler) Shipping(w http.ResponseWriter, r *http.Request) {
	req, calc, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := calc.ShippingTotal(r.Context(), req.Cart, req.IncludingTax)
	if err != nil {
		h.writeError(w, err)
		return
	}
	body := shippingBody(res, calc.Settings().CurrencyDecimals)
	body["additionalCharge"] = money(calc.AdditionalShippingCharge(req.Cart), calc.Settings().CurrencyDecimals)
	common.Data(w, body)
}

// Tax returns the order tax and its per-rate breakdown.
func (h *Handler) Tax(w http.ResponseWriter, r *http.Request) {
	req, calc, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := calc.TaxTotal(r.Context(), req.Cart)
	if err != nil {
		h.writeError(w, err)
		return
	}
	decimals := calc.Settings().CurrencyDecimals
	common.Data(w, map[string]any{
		"total":    money(res.Total, decimals),
		"taxRates": ledgerBody(res.Taxes, decimals),
	})
}

// PointsToAmount converts the points query parameter to a currency amount.
func (h *Handler) PointsToAmount(w http.ResponseWriter, r *http.Request) {
	if h.Calc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "calculator not configured", nil)
		return
	}
	points, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("points")))
	if err != nil || points < 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "points must be a non-negative integer", nil)
		return
	}
	amount := h.Calc.Rewards().PointsToAmount(points)
	common.Data(w, map[string]any{"points": points, "amount": amount.String()})
}

// AmountToPoints converts the amount query parameter to reward points.
func (h *Handler) AmountToPoints(w http.ResponseWriter, r *http.Request) {
	if h.Calc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "calculator not configured", nil)
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(r.URL.Query().Get("amount")))
	if err != nil || amount.IsNegative() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "amount must be a non-negative decimal", nil)
		return
	}
	common.Data(w, map[string]any{"amount": amount.String(), "points": h.Calc.Rewards().AmountToPoints(amount)})
}

// RecordUsage counts a redemption against the discount's usage limits.
func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "discount id must be a positive integer", nil)
		return
	}
	var req UsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := cart.Validator().Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid usage", err.Error())
		return
	}
	if err := h.Usage.RecordUsage(r.Context(), id, req.CustomerID); err != nil {
		common.WriteAppError(w, common.Internal("unable to record discount usage", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (QuoteRequest, *Calculator, bool) {
	if h.Calc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "calculator not configured", nil)
		return QuoteRequest{}, nil, false
	}
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
			return QuoteRequest{}, nil, false
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return QuoteRequest{}, nil, false
	}
	if err := cart.Validator().Struct(req.Checkout); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid checkout state", err.Error())
		return QuoteRequest{}, nil, false
	}
	return req, h.Calc.WithCheckout(req.Checkout), true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	common.WriteAppError(w, toAppError(err))
}

func toAppError(err error) *common.AppError {
	if appErr, ok := common.AsAppError(err); ok {
		return appErr
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return common.BadRequest(err)
	case errors.Is(err, ErrMissingTaxAddress):
		return common.Misconfigured("tax address is not configured", err)
	default:
		return common.Internal("unable to calculate totals", err)
	}
}

func money(d decimal.Decimal, decimals int32) string {
	return d.StringFixed(decimals)
}

func nullMoney(d decimal.NullDecimal, decimals int32) any {
	if !d.Valid {
		return nil
	}
	return money(d.Decimal, decimals)
}

func subTotalBody(res SubTotalResult, decimals int32) map[string]any {
	return map[string]any{
		"withoutDiscount": money(res.WithoutDiscount, decimals),
		"withDiscount":    money(res.WithDiscount, decimals),
		"discount":        money(res.DiscountAmount, decimals),
		"appliedDiscount": discountBody(res.AppliedDiscount),
		"taxRates":        ledgerBody(res.Taxes, decimals),
	}
}

func shippingBody(res ShippingResult, decimals int32) map[string]any {
	return map[string]any{
		"amount":          nullMoney(res.Amount, decimals),
		"available":       res.Available(),
		"free":            res.Free,
		"taxRate":         res.TaxRate.String(),
		"discount":        money(res.DiscountAmount, decimals),
		"appliedDiscount": discountBody(res.AppliedDiscount),
	}
}

func ledgerBody(l tax.Ledger, decimals int32) []map[string]string {
	entries := l.Entries()
	out := make([]map[string]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]string{"rate": e.Rate.String(), "amount": money(e.Amount, decimals)})
	}
	return out
}

func discountBody(d *discount.Discount) any {
	if d == nil {
		return nil
	}
	return map[string]any{"id": d.ID, "name": d.Name, "type": d.Type}
}
