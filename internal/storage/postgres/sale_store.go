package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"token-launchpad/internal/domain"
	"token-launchpad/internal/storage"
)

// SaleStore implements storage.SaleStore using PostgreSQL.
type SaleStore struct {
	pool *Pool
}

// NewSaleStore creates a new SaleStore.
func NewSaleStore(pool *Pool) *SaleStore {
	return &SaleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SaleStore = (*SaleStore)(nil)

const saleColumns = `
	sale_id, token_symbol, creator, target_raise, alpha_bps,
	total_supply, salable_supply, reserved_supply,
	start_time, end_time, status, refund_rate,
	created_at, updated_at
`

// Insert adds a new sale. Returns ErrDuplicateKey if sale_id exists.
func (s *SaleStore) Insert(ctx context.Context, r *domain.SaleRecord) error {
	query := `
		INSERT INTO sales (` + saleColumns + `) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12,
			$13, $14
		)
	`

	_, err := s.pool.Exec(ctx, query,
		r.SaleID, r.TokenSymbol, r.Creator, r.TargetRaise, r.AlphaBps,
		r.TotalSupply, r.SalableSupply, r.ReservedSupply,
		r.StartTime, r.EndTime, r.Status, r.RefundRate,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

// GetByID retrieves a sale by its ID. Returns ErrNotFound if not exists.
func (s *SaleStore) GetByID(ctx context.Context, saleID string) (*domain.SaleRecord, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE sale_id = $1`

	row := s.pool.QueryRow(ctx, query, saleID)
	r, err := scanSale(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get sale by id: %w", err)
	}
	return r, nil
}

// GetByStatus retrieves all sales in a given status, ordered by created_at ASC.
func (s *SaleStore) GetByStatus(ctx context.Context, status string) ([]*domain.SaleRecord, error) {
	query := `
		SELECT ` + saleColumns + `
		FROM sales
		WHERE status = $1
		ORDER BY created_at ASC, sale_id ASC
	`

	rows, err := s.pool.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("get sales by status: %w", err)
	}
	defer rows.Close()

	return scanSales(rows)
}

// GetByCreator retrieves all sales created by an address, ordered by created_at ASC.
func (s *SaleStore) GetByCreator(ctx context.Context, creator string) ([]*domain.SaleRecord, error) {
	query := `
		SELECT ` + saleColumns + `
		FROM sales
		WHERE creator = $1
		ORDER BY created_at ASC, sale_id ASC
	`

	rows, err := s.pool.Query(ctx, query, creator)
	if err != nil {
		return nil, fmt.Errorf("get sales by creator: %w", err)
	}
	defer rows.Close()

	return scanSales(rows)
}

// UpdateStatus records a terminal transition. Returns ErrNotFound if sale_id
// does not exist.
func (s *SaleStore) UpdateStatus(ctx context.Context, saleID, status, refundRate string, updatedAt int64) error {
	query := `
		UPDATE sales
		SET status = $2,
		    refund_rate = CASE WHEN $3 = '' THEN refund_rate ELSE $3 END,
		    updated_at = $4
		WHERE sale_id = $1
	`

	tag, err := s.pool.Exec(ctx, query, saleID, status, refundRate, updatedAt)
	if err != nil {
		return fmt.Errorf("update sale status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanSale scans a single row into a SaleRecord.
func scanSale(row pgx.Row) (*domain.SaleRecord, error) {
	var r domain.SaleRecord

	err := row.Scan(
		&r.SaleID, &r.TokenSymbol, &r.Creator, &r.TargetRaise, &r.AlphaBps,
		&r.TotalSupply, &r.SalableSupply, &r.ReservedSupply,
		&r.StartTime, &r.EndTime, &r.Status, &r.RefundRate,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// scanSales scans multiple rows into a slice of SaleRecord.
func scanSales(rows pgx.Rows) ([]*domain.SaleRecord, error) {
	var sales []*domain.SaleRecord

	for rows.Next() {
		var r domain.SaleRecord

		err := rows.Scan(
			&r.SaleID, &r.TokenSymbol, &r.Creator, &r.TargetRaise, &r.AlphaBps,
			&r.TotalSupply, &r.SalableSupply, &r.ReservedSupply,
			&r.StartTime, &r.EndTime, &r.Status, &r.RefundRate,
			&r.CreatedAt, &r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sale row: %w", err)
		}

		sales = append(sales, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale rows: %w", err)
	}

	return sales, nil
}
