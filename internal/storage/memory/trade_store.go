package memory

import (
	"context"
	"sort"
	"sync"

	"token-launchpad/internal/domain"
	"token-launchpad/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by trade_id
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.Trade),
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.data[t.TradeID] = &copy
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(_ context.Context, tradeID string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[tradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *t
	return &copy, nil
}

// GetBySaleID retrieves all trades for a sale, ordered by timestamp ASC.
func (s *TradeStore) GetBySaleID(_ context.Context, saleID string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.SaleID == saleID {
			copy := *t
			result = append(result, &copy)
		}
	}

	sortTrades(result)
	return result, nil
}

// GetByParticipant retrieves a participant's trades in a sale, ordered by timestamp ASC.
func (s *TradeStore) GetByParticipant(_ context.Context, saleID, participant string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.SaleID == saleID && t.Participant == participant {
			copy := *t
			result = append(result, &copy)
		}
	}

	sortTrades(result)
	return result, nil
}

// GetByTimeRange retrieves trades for a sale within [start, end] (inclusive, ms).
func (s *TradeStore) GetByTimeRange(_ context.Context, saleID string, start, end int64) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.SaleID == saleID && t.Timestamp >= start && t.Timestamp <= end {
			copy := *t
			result = append(result, &copy)
		}
	}

	sortTrades(result)
	return result, nil
}

func sortTrades(trades []*domain.Trade) {
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].Timestamp != trades[j].Timestamp {
			return trades[i].Timestamp < trades[j].Timestamp
		}
		return trades[i].TradeID < trades[j].TradeID
	})
}

var _ storage.TradeStore = (*TradeStore)(nil)
