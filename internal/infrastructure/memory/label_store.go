package memory

import (
	"context"
	"sort"
	"sync"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/repository"
)

// LabelStore is an in-memory implementation of repository.LabelRepository.
type LabelStore struct {
	mu     sync.RWMutex
	labels map[string]entity.WalletLabel
}

// NewLabelStore creates a new in-memory label store seeded with the given labels.
func NewLabelStore(seed ...entity.WalletLabel) *LabelStore {
	s := &LabelStore{labels: make(map[string]entity.WalletLabel, len(seed))}
	for _, l := range seed {
		s.labels[l.Address] = l
	}
	return s
}

// Compile-time interface check.
var _ repository.LabelRepository = (*LabelStore)(nil)

// IsExchangeWallet reports whether the address is labeled as an exchange.
func (s *LabelStore) IsExchangeWallet(_ context.Context, address string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.labels[address].IsExchange, nil
}

// ExchangeWallets returns the sorted subset of addresses labeled as exchanges.
func (s *LabelStore) ExchangeWallets(_ context.Context, addresses []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []string
	for _, addr := range addresses {
		if s.labels[addr].IsExchange {
			result = append(result, addr)
		}
	}
	sort.Strings(result)
	return result, nil
}

// GetLabel returns the label of an address.
func (s *LabelStore) GetLabel(_ context.Context, address string) (*entity.WalletLabel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	label, ok := s.labels[address]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &label, nil
}

// SaveLabel stores or replaces a label.
func (s *LabelStore) SaveLabel(_ context.Context, label *entity.WalletLabel) error {
	if label == nil || label.Address == "" {
		return repository.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels[label.Address] = *label
	return nil
}
