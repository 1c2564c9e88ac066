package discount

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/noah-isme/order-totals/internal/cache"
	"github.com/noah-isme/order-totals/internal/lock"
	"github.com/redis/go-redis/v9"
)

// RedisStore serves discount definitions and usage counters from Redis.
// Definitions are stored as one JSON array per type.
type RedisStore struct {
	client *redis.Client
	json   *cache.JSON
}

// NewRedisStore constructs a store backed by client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, json: cache.NewJSON(client, 0)}
}

// DiscountsByType implements Lookup. A missing key yields no discounts.
func (s *RedisStore) DiscountsByType(ctx context.Context, typ Type) ([]Discount, error) {
	var discounts []Discount
	if _, err := s.json.Get(ctx, cache.KeyDiscounts(string(typ)), &discounts); err != nil {
		return nil, fmt.Errorf("load %s discounts: %w", typ, err)
	}
	return discounts, nil
}

// Replace overwrites the catalog with discounts, grouped by type.
func (s *RedisStore) Replace(ctx context.Context, discounts []Discount) error {
	grouped := make(map[Type][]Discount, len(Types))
	for _, d := range discounts {
		grouped[d.Type] = append(grouped[d.Type], d)
	}
	for _, typ := range Types {
		list := grouped[typ]
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		if list == nil {
			list = []Discount{}
		}
		if err := s.json.Set(ctx, cache.KeyDiscounts(string(typ)), list); err != nil {
			return fmt.Errorf("store %s discounts: %w", typ, err)
		}
	}
	return nil
}

// ReplaceExclusive runs Replace under a cross-process lock so concurrent
// seeders do not interleave their writes.
func (s *RedisStore) ReplaceExclusive(ctx context.Context, discounts []Discount) error {
	locker := lock.Locker{Client: s.client}
	return locker.WithLock(ctx, cache.KeyDiscountsLock(), 30*time.Second, func(ctx context.Context) error {
		return s.Replace(ctx, discounts)
	})
}

// TotalUses implements UsageCounter.
func (s *RedisStore) TotalUses(ctx context.Context, discountID int) (int, error) {
	return s.counter(ctx, cache.KeyDiscountUsage(discountID))
}

// CustomerUses implements UsageCounter.
func (s *RedisStore) CustomerUses(ctx context.Context, discountID, customerID int) (int, error) {
	return s.counter(ctx, cache.KeyDiscountCustomerUsage(discountID, customerID))
}

// RecordUsage increments the usage counters after an order consumed the discount.
func (s *RedisStore) RecordUsage(ctx context.Context, discountID, customerID int) error {
	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, cache.KeyDiscountUsage(discountID))
	if customerID > 0 {
		pipe.Incr(ctx, cache.KeyDiscountCustomerUsage(discountID, customerID))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) counter(ctx context.Context, key string) (int, error) {
	n, err := s.client.Get(ctx, key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}
