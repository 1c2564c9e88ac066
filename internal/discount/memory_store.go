package discount

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Lookup and UsageCounter, used when no Redis is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	discounts map[Type][]Discount
	total     map[int]int
	customer  map[[2]int]int
}

// NewMemoryStore builds a store preloaded with discounts.
func NewMemoryStore(discounts ...Discount) *MemoryStore {
	s := &MemoryStore{
		discounts: make(map[Type][]Discount),
		total:     make(map[int]int),
		customer:  make(map[[2]int]int),
	}
	for _, d := range discounts {
		s.discounts[d.Type] = append(s.discounts[d.Type], d)
	}
	return s
}

// DiscountsByType implements Lookup.
func (s *MemoryStore) DiscountsByType(_ context.Context, typ Type) ([]Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Discount(nil), s.discounts[typ]...), nil
}

// TotalUses implements UsageCounter.
func (s *MemoryStore) TotalUses(_ context.Context, discountID int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total[discountID], nil
}

// CustomerUses implements UsageCounter.
func (s *MemoryStore) CustomerUses(_ context.Context, discountID, customerID int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.customer[[2]int{discountID, customerID}], nil
}

// RecordUsage increments the usage counters.
func (s *MemoryStore) RecordUsage(_ context.Context, discountID, customerID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total[discountID]++
	if customerID > 0 {
		s.customer[[2]int{discountID, customerID}]++
	}
	return nil
}
