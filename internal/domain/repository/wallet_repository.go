package repository

import (
	"context"
	"time"
	"wallet-cluster-analyzer/internal/domain/entity"
)

// RelationshipRepository is the durable store of aggregated wallet flows.
// It is the source of truth the in-memory graphs are hydrated from.
type RelationshipRepository interface {
	// MergeTransfers folds events into their (from, to, asset) aggregates.
	// Each aggregate is updated atomically and an event key is applied at most
	// once, so redelivered or reordered batches converge. Returns the sorted keys
	// of the events that changed an aggregate.
	MergeTransfers(ctx context.Context, events []*entity.TransferEvent) ([]string, error)

	// GetFlowsForWallets returns the aggregates touching any of the given
	// wallets that were active since the given time, at most perWalletLimit per
	// wallet and strongest first
	GetFlowsForWallets(ctx context.Context, addresses []string, since time.Time, perWalletLimit int) ([]*entity.FlowRecord, error)

	// GetRecentFlows returns up to limit aggregates active since the given time
	GetRecentFlows(ctx context.Context, since time.Time, limit int) ([]*entity.FlowRecord, error)

	// Ping checks connectivity
	Ping(ctx context.Context) error
}
