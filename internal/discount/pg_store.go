package discount

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore serves discount definitions and usage history from Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// DiscountsByType implements Lookup.
func (s *PostgresStore) DiscountsByType(ctx context.Context, typ Type) ([]Discount, error) {
	const q = `
SELECT id, name, discount_type, use_percentage, percentage::text, amount::text, max_amount::text,
       limitation, limitation_times, requires_coupon_code, coupon_code, starts_at, ends_at,
       customer_role_ids, store_ids, category_ids, product_refs
FROM discounts
WHERE discount_type = $1
ORDER BY id ASC
`
	rows, err := s.pool.Query(ctx, q, string(typ))
	if err != nil {
		return nil, fmt.Errorf("load %s discounts: %w", typ, err)
	}
	defer rows.Close()

	var result []Discount
	for rows.Next() {
		var (
			d                    Discount
			typeName, limitation string
			percentage, amount   string
			maxAmount            *string
			startsAt, endsAt     *time.Time
			roles, stores, cats  []int32
		)
		if err := rows.Scan(&d.ID, &d.Name, &typeName, &d.UsePercentage, &percentage, &amount, &maxAmount,
			&limitation, &d.LimitationTimes, &d.RequiresCouponCode, &d.CouponCode, &startsAt, &endsAt,
			&roles, &stores, &cats, &d.ProductRefs); err != nil {
			return nil, err
		}
		d.Type = Type(typeName)
		d.Limitation = Limitation(limitation)
		if d.Percentage, err = decimal.NewFromString(percentage); err != nil {
			return nil, fmt.Errorf("discount %d percentage: %w", d.ID, err)
		}
		if d.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("discount %d amount: %w", d.ID, err)
		}
		if maxAmount != nil {
			capped, err := decimal.NewFromString(*maxAmount)
			if err != nil {
				return nil, fmt.Errorf("discount %d max amount: %w", d.ID, err)
			}
			d.MaxAmount = decimal.NewNullDecimal(capped)
		}
		if startsAt != nil {
			t := startsAt.UTC()
			d.StartsAt = &t
		}
		if endsAt != nil {
			t := endsAt.UTC()
			d.EndsAt = &t
		}
		d.CustomerRoleIDs = toInts(roles)
		d.StoreIDs = toInts(stores)
		d.CategoryIDs = toInts(cats)
		if len(d.ProductRefs) == 0 {
			d.ProductRefs = nil
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Replace overwrites the catalog with discounts in a single transaction.
func (s *PostgresStore) Replace(ctx context.Context, discounts []Discount) error {
	const insert = `
INSERT INTO discounts (id, name, discount_type, use_percentage, percentage, amount, max_amount,
                       limitation, limitation_times, requires_coupon_code, coupon_code, starts_at, ends_at,
                       customer_role_ids, store_ids, category_ids, product_refs)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
`
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// TRUNCATE holds an exclusive lock until commit.
		if _, err := tx.Exec(ctx, `TRUNCATE discounts`); err != nil {
			return fmt.Errorf("clear discounts: %w", err)
		}
		batch := &pgx.Batch{}
		for _, d := range discounts {
			var maxAmount *string
			if d.MaxAmount.Valid {
				v := d.MaxAmount.Decimal.String()
				maxAmount = &v
			}
			refs := d.ProductRefs
			if refs == nil {
				refs = []string{}
			}
			batch.Queue(insert, d.ID, d.Name, string(d.Type), d.UsePercentage, d.Percentage.String(), d.Amount.String(), maxAmount,
				string(d.Limitation), d.LimitationTimes, d.RequiresCouponCode, d.CouponCode, d.StartsAt, d.EndsAt,
				toInt32s(d.CustomerRoleIDs), toInt32s(d.StoreIDs), toInt32s(d.CategoryIDs), refs)
		}
		results := tx.SendBatch(ctx, batch)
		for _, d := range discounts {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("insert discount %d: %w", d.ID, err)
			}
		}
		return results.Close()
	})
}

// TotalUses implements UsageCounter.
func (s *PostgresStore) TotalUses(ctx context.Context, discountID int) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM discount_usage WHERE discount_id = $1`, discountID).Scan(&n)
	return n, err
}

// CustomerUses implements UsageCounter.
func (s *PostgresStore) CustomerUses(ctx context.Context, discountID, customerID int) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM discount_usage WHERE discount_id = $1 AND customer_id = $2`, discountID, customerID).Scan(&n)
	return n, err
}

// RecordUsage appends a usage row after an order consumed the discount.
func (s *PostgresStore) RecordUsage(ctx context.Context, discountID, customerID int) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO discount_usage (discount_id, customer_id) VALUES ($1, $2)`, discountID, customerID)
	return err
}

func toInts(values []int32) []int {
	if len(values) == 0 {
		return nil
	}
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}

func toInt32s(values []int) []int32 {
	out := make([]int32, len(values))
	for i, v := range values {
		out[i] = int32(v)
	}
	return out
}
