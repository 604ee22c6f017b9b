package repository

import (
	"context"
	"time"
	"wallet-cluster-analyzer/internal/domain/entity"
)

// TransferRepository stores event-level transfer records and answers the
// event-level evidence queries
type TransferRepository interface {
	// InsertTransfers stores events, ignoring ones already stored under the
	// same (signature, event_index). Returns the number of new rows.
	InsertTransfers(ctx context.Context, events []*entity.TransferEvent) (int, error)

	// GetSharedInboundSenders returns wallets that sent to both a and b since the given time
	GetSharedInboundSenders(ctx context.Context, a, b string, since time.Time) ([]entity.SharedCounterparty, error)

	// GetTopCounterparties returns the most frequent send destinations of a wallet
	GetTopCounterparties(ctx context.Context, wallet string, since time.Time, limit int) ([]entity.Counterparty, error)

	// GetBehavioralProfile summarises the transfer activity of a wallet,
	// leaving out transfers with exclude when it is non-empty.
	// Returns ErrNotFound when the wallet has no such activity in the window.
	GetBehavioralProfile(ctx context.Context, wallet, exclude string, since time.Time) (*entity.BehavioralProfile, error)

	// GetTemporalOverlap compares the active time buckets and slots of two
	// wallets. Transfers between a and b are not counted for either side.
	GetTemporalOverlap(ctx context.Context, a, b string, since time.Time, bucket time.Duration) (*entity.TemporalOverlap, error)

	// Ping checks connectivity
	Ping(ctx context.Context) error
}

// TransferSource fetches transfers of a single wallet from the upstream parser.
// It is used to bootstrap wallets the store has never seen.
type TransferSource interface {
	FetchWalletTransfers(ctx context.Context, address string, limit int) ([]*entity.TransferEvent, error)
}
