package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"token-launchpad/internal/domain"
	"token-launchpad/internal/storage"
)

func testSale(saleID string) *domain.SaleRecord {
	return &domain.SaleRecord{
		SaleID:         saleID,
		TokenSymbol:    "DSET",
		Creator:        "creator1",
		TargetRaise:    "50000000000",
		AlphaBps:       2000,
		TotalSupply:    "3125000000000000000000000",
		SalableSupply:  "2500000000000000000000000",
		ReservedSupply: "625000000000000000000000",
		StartTime:      1000,
		EndTime:        2000,
		Status:         domain.SaleStatusActive,
		RefundRate:     "0",
		CreatedAt:      1000000,
		UpdatedAt:      1000000,
	}
}

func TestSaleStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSaleStore(pool)
	ctx := context.Background()

	sale := testSale("sale1")
	require.NoError(t, store.Insert(ctx, sale))

	got, err := store.GetByID(ctx, "sale1")
	require.NoError(t, err)
	require.Equal(t, sale.TokenSymbol, got.TokenSymbol)
	require.Equal(t, sale.TotalSupply, got.TotalSupply)
	require.Equal(t, sale.SalableSupply, got.SalableSupply)
	require.Equal(t, domain.SaleStatusActive, got.Status)
}

func TestSaleStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSaleStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testSale("sale1")))

	err := store.Insert(ctx, testSale("sale1"))
	require.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestSaleStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSaleStore(pool)
	ctx := context.Background()

	_, err := store.GetByID(ctx, "nonexistent")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSaleStore_UpdateStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSaleStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testSale("sale1")))

	err := store.UpdateStatus(ctx, "sale1", domain.SaleStatusFailed, "12500000000000000", 2000000)
	require.NoError(t, err)

	got, err := store.GetByID(ctx, "sale1")
	require.NoError(t, err)
	require.Equal(t, domain.SaleStatusFailed, got.Status)
	require.Equal(t, "12500000000000000", got.RefundRate)
	require.Equal(t, int64(2000000), got.UpdatedAt)

	// Empty refund rate leaves the stored value alone
	err = store.UpdateStatus(ctx, "sale1", domain.SaleStatusFailed, "", 3000000)
	require.NoError(t, err)

	got, err = store.GetByID(ctx, "sale1")
	require.NoError(t, err)
	require.Equal(t, "12500000000000000", got.RefundRate)
}

func TestSaleStore_UpdateStatusNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSaleStore(pool)
	ctx := context.Background()

	err := store.UpdateStatus(ctx, "nonexistent", domain.SaleStatusLaunched, "", 2000000)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSaleStore_GetByStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSaleStore(pool)
	ctx := context.Background()

	s1 := testSale("s1")
	s1.CreatedAt = 3000000
	s2 := testSale("s2")
	s2.CreatedAt = 1000000
	s3 := testSale("s3")
	s3.Status = domain.SaleStatusLaunched

	for _, s := range []*domain.SaleRecord{s1, s2, s3} {
		require.NoError(t, store.Insert(ctx, s))
	}

	active, err := store.GetByStatus(ctx, domain.SaleStatusActive)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "s2", active[0].SaleID, "results should be ordered by created_at")
	require.Equal(t, "s1", active[1].SaleID)
}

func TestSaleStore_GetByCreator(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSaleStore(pool)
	ctx := context.Background()

	s1 := testSale("s1")
	s1.Creator = "alice"
	s2 := testSale("s2")
	s2.Creator = "bob"
	s3 := testSale("s3")
	s3.Creator = "alice"

	for _, s := range []*domain.SaleRecord{s1, s2, s3} {
		require.NoError(t, store.Insert(ctx, s))
	}

	got, err := store.GetByCreator(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
}
