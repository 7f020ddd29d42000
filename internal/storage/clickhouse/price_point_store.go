package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"token-launchpad/internal/domain"
	"token-launchpad/internal/storage"
)

// PricePointStore implements storage.PricePointStore using ClickHouse.
type PricePointStore struct {
	conn *Conn
}

// NewPricePointStore creates a new PricePointStore.
func NewPricePointStore(conn *Conn) *PricePointStore {
	return &PricePointStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PricePointStore = (*PricePointStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate (sale_id, timestamp_ms).
func (s *PricePointStore) InsertBulk(ctx context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		saleID      string
		timestampMs int64
	}
	seen := make(map[key]struct{})
	for _, p := range points {
		if p == nil || p.SaleID == "" {
			return storage.ErrInvalidInput
		}
		k := key{p.SaleID, p.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows; MergeTree does not
	// enforce uniqueness at insert time.
	for _, p := range points {
		exists, err := s.exists(ctx, p.SaleID, p.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_points (
			sale_id, timestamp_ms, price, sold_tokens, raised_quote
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.SaleID, uint64(p.TimestampMs),
			p.Price, p.SoldTokens, p.RaisedQuote,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBySaleID retrieves all points for a sale, ordered by timestamp ASC.
func (s *PricePointStore) GetBySaleID(ctx context.Context, saleID string) ([]*domain.PricePoint, error) {
	query := `
		SELECT sale_id, timestamp_ms, price, sold_tokens, raised_quote
		FROM price_points
		WHERE sale_id = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, saleID)
	if err != nil {
		return nil, fmt.Errorf("query by sale id: %w", err)
	}
	defer rows.Close()

	return scanPricePoints(rows)
}

// GetByTimeRange retrieves points for a sale within [start, end] (inclusive, ms).
func (s *PricePointStore) GetByTimeRange(ctx context.Context, saleID string, start, end int64) ([]*domain.PricePoint, error) {
	query := `
		SELECT sale_id, timestamp_ms, price, sold_tokens, raised_quote
		FROM price_points
		WHERE sale_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, saleID, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPricePoints(rows)
}

// exists checks if a point with the given key exists.
func (s *PricePointStore) exists(ctx context.Context, saleID string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM price_points
		WHERE sale_id = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, saleID, uint64(timestampMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanPricePoints scans multiple rows.
func scanPricePoints(rows driver.Rows) ([]*domain.PricePoint, error) {
	var points []*domain.PricePoint

	for rows.Next() {
		var p domain.PricePoint
		var timestampMs uint64

		err := rows.Scan(
			&p.SaleID, &timestampMs,
			&p.Price, &p.SoldTokens, &p.RaisedQuote,
		)
		if err != nil {
			return nil, fmt.Errorf("scan price point row: %w", err)
		}

		p.TimestampMs = int64(timestampMs)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price point rows: %w", err)
	}

	return points, nil
}
