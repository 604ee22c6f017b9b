package database

import (
	"context"
	"errors"
	"fmt"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/repository"
)

// PostgresLabelRepository is the durable store of wallet labels.
type PostgresLabelRepository struct {
	pool *Pool
}

// NewPostgresLabelRepository creates a new PostgresLabelRepository.
func NewPostgresLabelRepository(pool *Pool) *PostgresLabelRepository {
	return &PostgresLabelRepository{pool: pool}
}

// Compile-time interface check.
var _ repository.LabelRepository = (*PostgresLabelRepository)(nil)

// IsExchangeWallet reports whether the address is labeled as an exchange.
func (s *PostgresLabelRepository) IsExchangeWallet(ctx context.Context, address string) (bool, error) {
	label, err := s.GetLabel(ctx, address)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return label.IsExchange, nil
}

// ExchangeWallets returns the sorted subset of addresses labeled as exchanges.
func (s *PostgresLabelRepository) ExchangeWallets(ctx context.Context, addresses []string) ([]string, error) {
	if len(addresses) == 0 {
		return []string{}, nil
	}

	query := `
		SELECT address FROM wallet_labels
		WHERE is_exchange AND address = ANY($1)
		ORDER BY address COLLATE "C" ASC
	`

	rows, err := s.pool.Query(ctx, query, addresses)
	if err != nil {
		return nil, fmt.Errorf("get exchange wallets: %w", err)
	}
	defer rows.Close()

	result := make([]string, 0)
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan exchange wallet: %w", err)
		}
		result = append(result, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchange wallets: %w", err)
	}
	return result, nil
}

// GetLabel returns the label of an address or ErrNotFound.
func (s *PostgresLabelRepository) GetLabel(ctx context.Context, address string) (*entity.WalletLabel, error) {
	query := `SELECT address, is_exchange, exchange FROM wallet_labels WHERE address = $1`

	var label entity.WalletLabel
	err := s.pool.QueryRow(ctx, query, address).Scan(&label.Address, &label.IsExchange, &label.Exchange)
	if err != nil {
		if isNotFoundError(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet label: %w", err)
	}
	return &label, nil
}

// SaveLabel stores or replaces a label.
func (s *PostgresLabelRepository) SaveLabel(ctx context.Context, label *entity.WalletLabel) error {
	if label == nil || label.Address == "" {
		return repository.ErrInvalidInput
	}

	query := `
		INSERT INTO wallet_labels (address, is_exchange, exchange, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (address) DO UPDATE SET
			is_exchange = EXCLUDED.is_exchange,
			exchange = EXCLUDED.exchange,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.pool.Exec(ctx, query, label.Address, label.IsExchange, label.Exchange); err != nil {
		return fmt.Errorf("save wallet label: %w", err)
	}
	return nil
}
