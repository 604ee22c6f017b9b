package repository

import (
	"context"
	"wallet-cluster-analyzer/internal/domain/entity"
)

// LabelRepository exposes the external wallet labeling
type LabelRepository interface {
	// IsExchangeWallet reports whether the address belongs to a known exchange
	IsExchangeWallet(ctx context.Context, address string) (bool, error)

	// ExchangeWallets returns the subset of addresses labeled as exchanges, sorted
	ExchangeWallets(ctx context.Context, addresses []string) ([]string, error)

	// GetLabel returns the label of an address or ErrNotFound
	GetLabel(ctx context.Context, address string) (*entity.WalletLabel, error)

	// SaveLabel stores or replaces a label
	SaveLabel(ctx context.Context, label *entity.WalletLabel) error
}
