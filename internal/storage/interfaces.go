package storage

import (
	"context"

	"token-launchpad/internal/domain"
)

// SaleStore provides access to sales storage.
type SaleStore interface {
	// Insert adds a new sale. Returns ErrDuplicateKey if sale_id exists.
	Insert(ctx context.Context, s *domain.SaleRecord) error

	// GetByID retrieves a sale by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, saleID string) (*domain.SaleRecord, error)

	// GetByStatus retrieves all sales in a given status, ordered by created_at ASC.
	GetByStatus(ctx context.Context, status string) ([]*domain.SaleRecord, error)

	// GetByCreator retrieves all sales created by an address, ordered by created_at ASC.
	GetByCreator(ctx context.Context, creator string) ([]*domain.SaleRecord, error)

	// UpdateStatus records a terminal transition. Returns ErrNotFound if sale_id
	// does not exist. RefundRate is only meaningful for FAILED.
	UpdateStatus(ctx context.Context, saleID, status, refundRate string, updatedAt int64) error
}

// TradeStore provides access to trades storage.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.Trade, error)

	// GetBySaleID retrieves all trades for a sale, ordered by timestamp ASC.
	GetBySaleID(ctx context.Context, saleID string) ([]*domain.Trade, error)

	// GetByParticipant retrieves a participant's trades in a sale, ordered by timestamp ASC.
	GetByParticipant(ctx context.Context, saleID, participant string) ([]*domain.Trade, error)

	// GetByTimeRange retrieves trades for a sale within [start, end] (inclusive, ms).
	GetByTimeRange(ctx context.Context, saleID string, start, end int64) ([]*domain.Trade, error)
}

// PricePointStore provides access to price_points storage.
type PricePointStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (sale_id, timestamp_ms).
	InsertBulk(ctx context.Context, points []*domain.PricePoint) error

	// GetBySaleID retrieves all points for a sale, ordered by timestamp ASC.
	GetBySaleID(ctx context.Context, saleID string) ([]*domain.PricePoint, error)

	// GetByTimeRange retrieves points for a sale within [start, end] (inclusive, ms).
	GetByTimeRange(ctx context.Context, saleID string, start, end int64) ([]*domain.PricePoint, error)
}
