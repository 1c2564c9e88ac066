package tax

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Entry is the tax accumulated at one rate.
type Entry struct {
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

// Ledger accumulates tax per rate. Rates compare by value, so 10 and 10.00
// share an entry. Entries stay sorted by ascending rate.
type Ledger struct {
	entries []Entry
}

// Portion returns the tax contained in (inclusive) or owed on (exclusive) amount at rate percent.
func Portion(rate, amount decimal.Decimal, pricesIncludeTax bool) decimal.Decimal {
	if rate.IsZero() || amount.IsZero() {
		return decimal.Zero
	}
	if pricesIncludeTax {
		return amount.Mul(rate).Div(hundred.Add(rate))
	}
	return amount.Mul(rate).Div(hundred)
}

// Add records the tax portion of a taxable amount and returns it.
// The rate entry is created even when the portion is zero.
func (l *Ledger) Add(rate, taxable decimal.Decimal, pricesIncludeTax bool) decimal.Decimal {
	portion := Portion(rate, taxable, pricesIncludeTax)
	l.AddTax(rate, portion)
	return portion
}

// AddTax adds an already computed tax amount at rate.
func (l *Ledger) AddTax(rate, amount decimal.Decimal) {
	i := l.search(rate)
	if i < len(l.entries) && l.entries[i].Rate.Equal(rate) {
		l.entries[i].Amount = l.entries[i].Amount.Add(amount)
		return
	}
	l.entries = append(l.entries, Entry{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = Entry{Rate: rate, Amount: amount}
}

// Merge adds every entry of other into l.
func (l *Ledger) Merge(other Ledger) {
	for _, e := range other.entries {
		l.AddTax(e.Rate, e.Amount)
	}
}

// Reduce lowers every entry by the same fraction of itself.
func (l *Ledger) Reduce(fraction decimal.Decimal) {
	if fraction.IsZero() {
		return
	}
	for i := range l.entries {
		l.entries[i].Amount = l.entries[i].Amount.Sub(l.entries[i].Amount.Mul(fraction))
	}
}

// Get returns the tax recorded at rate.
func (l Ledger) Get(rate decimal.Decimal) (decimal.Decimal, bool) {
	i := l.search(rate)
	if i < len(l.entries) && l.entries[i].Rate.Equal(rate) {
		return l.entries[i].Amount, true
	}
	return decimal.Zero, false
}

// Total sums all entries.
func (l Ledger) Total() decimal.Decimal {
	total := decimal.Zero
	for _, e := range l.entries {
		total = total.Add(e.Amount)
	}
	return total
}

// Entries returns a copy of the entries in ascending rate order.
func (l Ledger) Entries() []Entry {
	return append([]Entry(nil), l.entries...)
}

// Len reports the number of distinct rates.
func (l Ledger) Len() int { return len(l.entries) }

// Clone returns an independent copy of l.
func (l Ledger) Clone() Ledger {
	return Ledger{entries: l.Entries()}
}

// MarshalJSON renders the ledger as an ordered list of entries.
func (l Ledger) MarshalJSON() ([]byte, error) {
	entries := l.entries
	if entries == nil {
		entries = []Entry{}
	}
	return json.Marshal(entries)
}

// UnmarshalJSON accepts the list form produced by MarshalJSON.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	l.entries = nil
	for _, e := range entries {
		l.AddTax(e.Rate, e.Amount)
	}
	return nil
}

func (l Ledger) search(rate decimal.Decimal) int {
	return sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].Rate.GreaterThanOrEqual(rate)
	})
}
