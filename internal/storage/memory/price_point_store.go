package memory

import (
	"context"
	"sort"
	"sync"

	"token-launchpad/internal/domain"
	"token-launchpad/internal/storage"
)

// PricePointStore is an in-memory implementation of storage.PricePointStore.
type PricePointStore struct {
	mu   sync.RWMutex
	data map[pricePointKey]*domain.PricePoint
}

type pricePointKey struct {
	saleID      string
	timestampMs int64
}

// NewPricePointStore creates a new in-memory price point store.
func NewPricePointStore() *PricePointStore {
	return &PricePointStore{
		data: make(map[pricePointKey]*domain.PricePoint),
	}
}

// InsertBulk adds multiple points. Fails entire batch on duplicate (sale_id, timestamp_ms).
func (s *PricePointStore) InsertBulk(_ context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchKeys := make(map[pricePointKey]struct{}, len(points))
	for _, p := range points {
		if p == nil || p.SaleID == "" {
			return storage.ErrInvalidInput
		}

		k := pricePointKey{p.SaleID, p.TimestampMs}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	// Second pass: insert all
	for _, p := range points {
		copy := *p
		s.data[pricePointKey{p.SaleID, p.TimestampMs}] = &copy
	}

	return nil
}

// GetBySaleID retrieves all points for a sale, ordered by timestamp ASC.
func (s *PricePointStore) GetBySaleID(_ context.Context, saleID string) ([]*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PricePoint
	for k, p := range s.data {
		if k.saleID == saleID {
			copy := *p
			result = append(result, &copy)
		}
	}

	sortPricePoints(result)
	return result, nil
}

// GetByTimeRange retrieves points for a sale within [start, end] (inclusive, ms).
func (s *PricePointStore) GetByTimeRange(_ context.Context, saleID string, start, end int64) ([]*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PricePoint
	for k, p := range s.data {
		if k.saleID == saleID && k.timestampMs >= start && k.timestampMs <= end {
			copy := *p
			result = append(result, &copy)
		}
	}

	sortPricePoints(result)
	return result, nil
}

func sortPricePoints(points []*domain.PricePoint) {
	sort.Slice(points, func(i, j int) bool {
		return points[i].TimestampMs < points[j].TimestampMs
	})
}

var _ storage.PricePointStore = (*PricePointStore)(nil)
