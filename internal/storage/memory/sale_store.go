package memory

import (
	"context"
	"sort"
	"sync"

	"token-launchpad/internal/domain"
	"token-launchpad/internal/storage"
)

// SaleStore is an in-memory implementation of storage.SaleStore.
type SaleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SaleRecord // keyed by sale_id
}

// NewSaleStore creates a new in-memory sale store.
func NewSaleStore() *SaleStore {
	return &SaleStore{
		data: make(map[string]*domain.SaleRecord),
	}
}

// Insert adds a new sale. Returns ErrDuplicateKey if sale_id exists.
func (s *SaleStore) Insert(_ context.Context, r *domain.SaleRecord) error {
	if r == nil || r.SaleID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.SaleID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	s.data[r.SaleID] = &copy
	return nil
}

// GetByID retrieves a sale by its ID. Returns ErrNotFound if not exists.
func (s *SaleStore) GetByID(_ context.Context, saleID string) (*domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[saleID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *r
	return &copy, nil
}

// GetByStatus retrieves all sales in a given status, ordered by created_at ASC.
func (s *SaleStore) GetByStatus(_ context.Context, status string) ([]*domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SaleRecord
	for _, r := range s.data {
		if r.Status == status {
			copy := *r
			result = append(result, &copy)
		}
	}

	sortSales(result)
	return result, nil
}

// GetByCreator retrieves all sales created by an address, ordered by created_at ASC.
func (s *SaleStore) GetByCreator(_ context.Context, creator string) ([]*domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SaleRecord
	for _, r := range s.data {
		if r.Creator == creator {
			copy := *r
			result = append(result, &copy)
		}
	}

	sortSales(result)
	return result, nil
}

// UpdateStatus records a terminal transition. Returns ErrNotFound if sale_id
// does not exist.
func (s *SaleStore) UpdateStatus(_ context.Context, saleID, status, refundRate string, updatedAt int64) error {
	if saleID == "" || status == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[saleID]
	if !exists {
		return storage.ErrNotFound
	}

	r.Status = status
	if refundRate != "" {
		r.RefundRate = refundRate
	}
	r.UpdatedAt = updatedAt
	return nil
}

func sortSales(sales []*domain.SaleRecord) {
	sort.Slice(sales, func(i, j int) bool {
		if sales[i].CreatedAt != sales[j].CreatedAt {
			return sales[i].CreatedAt < sales[j].CreatedAt
		}
		return sales[i].SaleID < sales[j].SaleID
	})
}

var _ storage.SaleStore = (*SaleStore)(nil)
