package discount

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
)

// Decode reads a JSON array of discount definitions and rejects unknown types
// and duplicate IDs.
func Decode(r io.Reader) ([]Discount, error) {
	var discounts []Discount
	if err := json.NewDecoder(r).Decode(&discounts); err != nil {
		return nil, fmt.Errorf("decode discounts: %w", err)
	}
	seen := make(map[int]struct{}, len(discounts))
	for _, d := range discounts {
		if !slices.Contains(Types, d.Type) {
			return nil, fmt.Errorf("discount %d: unknown type %q", d.ID, d.Type)
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("discount %d: duplicate id", d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return discounts, nil
}

// LoadFile reads discount definitions from a JSON file.
func LoadFile(path string) ([]Discount, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}
