package discount_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/order-totals/internal/db"
	"github.com/noah-isme/order-totals/internal/discount"
)

func testPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres tests")
	}
	pool, err := db.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE discounts, discount_usage`)
	require.NoError(t, err)
	return pool
}

func TestPostgresStoreReplaceAndLookup(t *testing.T) {
	ctx := context.Background()
	store := discount.NewPostgresStore(testPool(ctx, t))

	starts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Replace(ctx, []discount.Discount{
		{ID: 2, Name: "Ten off", Type: discount.TypeSubTotal, Amount: decimal.NewFromInt(10)},
		{
			ID:            1,
			Name:          "Books",
			Type:          discount.TypeCategories,
			UsePercentage: true,
			Percentage:    decimal.RequireFromString("12.5"),
			MaxAmount:     decimal.NewNullDecimal(decimal.NewFromInt(20)),
			Limitation:    discount.LimitationNTimes,
			StartsAt:      &starts,
			CategoryIDs:   []int{3, 4},
			StoreIDs:      []int{1},
		},
	}))

	subtotal, err := store.DiscountsByType(ctx, discount.TypeSubTotal)
	require.NoError(t, err)
	require.Len(t, subtotal, 1)
	require.True(t, decimal.NewFromInt(10).Equal(subtotal[0].Amount))
	require.False(t, subtotal[0].MaxAmount.Valid)

	cats, err := store.DiscountsByType(ctx, discount.TypeCategories)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	got := cats[0]
	require.Equal(t, []int{3, 4}, got.CategoryIDs)
	require.Equal(t, []int{1}, got.StoreIDs)
	require.Nil(t, got.CustomerRoleIDs)
	require.True(t, decimal.RequireFromString("12.5").Equal(got.Percentage))
	require.True(t, got.MaxAmount.Valid)
	require.NotNil(t, got.StartsAt)
	require.True(t, starts.Equal(*got.StartsAt))
	require.Nil(t, got.EndsAt)

	require.NoError(t, store.Replace(ctx, nil))
	subtotal, err = store.DiscountsByType(ctx, discount.TypeSubTotal)
	require.NoError(t, err)
	require.Empty(t, subtotal)
}

func TestPostgresStoreUsage(t *testing.T) {
	ctx := context.Background()
	store := discount.NewPostgresStore(testPool(ctx, t))

	require.NoError(t, store.RecordUsage(ctx, 7, 42))
	require.NoError(t, store.RecordUsage(ctx, 7, 42))
	require.NoError(t, store.RecordUsage(ctx, 7, 0))

	total, err := store.TotalUses(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 3, total)

	perCustomer, err := store.CustomerUses(ctx, 7, 42)
	require.NoError(t, err)
	require.Equal(t, 2, perCustomer)
}
