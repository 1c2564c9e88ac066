package pricing

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/shopspring/decimal"
)

// ErrInvalidAttributes is returned when a line's attribute payload cannot be parsed.
var ErrInvalidAttributes = fmt.Errorf("%w: malformed attributes payload", cart.ErrInvalidInput)

// AttributeParser extracts price surcharges from a line's attribute payload.
type AttributeParser interface {
	Surcharges(payload json.RawMessage) ([]decimal.Decimal, error)
}

// Attribute is one selected product attribute value.
type Attribute struct {
	Name            string          `json:"name"`
	Value           string          `json:"value"`
	PriceAdjustment decimal.Decimal `json:"priceAdjustment"`
}

// JSONAttributeParser reads payloads shaped as a JSON array of Attribute.
type JSONAttributeParser struct{}

// Surcharges implements AttributeParser. Empty and null payloads carry no surcharge.
func (JSONAttributeParser) Surcharges(payload json.RawMessage) ([]decimal.Decimal, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var attrs []Attribute
	if err := json.Unmarshal(trimmed, &attrs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAttributes, err)
	}
	out := make([]decimal.Decimal, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, attr.PriceAdjustment)
	}
	return out, nil
}
