package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"token-launchpad/internal/domain"
	"token-launchpad/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	trade_id, sale_id, participant, side,
	token_amount, quote_amount, fee_amount, price,
	timestamp, created_at
`

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	query := `
		INSERT INTO trades (` + tradeColumns + `) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10
		)
	`

	_, err := s.pool.Exec(ctx, query,
		t.TradeID, t.SaleID, t.Participant, t.Side,
		t.TokenAmount, t.QuoteAmount, t.FeeAmount, t.Price,
		t.Timestamp, t.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE trade_id = $1`

	row := s.pool.QueryRow(ctx, query, tradeID)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return t, nil
}

// GetBySaleID retrieves all trades for a sale, ordered by timestamp ASC.
func (s *TradeStore) GetBySaleID(ctx context.Context, saleID string) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE sale_id = $1
		ORDER BY timestamp ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, saleID)
	if err != nil {
		return nil, fmt.Errorf("get trades by sale id: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByParticipant retrieves a participant's trades in a sale, ordered by timestamp ASC.
func (s *TradeStore) GetByParticipant(ctx context.Context, saleID, participant string) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE sale_id = $1 AND participant = $2
		ORDER BY timestamp ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, saleID, participant)
	if err != nil {
		return nil, fmt.Errorf("get trades by participant: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByTimeRange retrieves trades for a sale within [start, end] (inclusive, ms).
func (s *TradeStore) GetByTimeRange(ctx context.Context, saleID string, start, end int64) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE sale_id = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, saleID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get trades by time range: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// scanTrade scans a single row into a Trade.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade

	err := row.Scan(
		&t.TradeID, &t.SaleID, &t.Participant, &t.Side,
		&t.TokenAmount, &t.QuoteAmount, &t.FeeAmount, &t.Price,
		&t.Timestamp, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		var t domain.Trade

		err := rows.Scan(
			&t.TradeID, &t.SaleID, &t.Participant, &t.Side,
			&t.TokenAmount, &t.QuoteAmount, &t.FeeAmount, &t.Price,
			&t.Timestamp, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
