package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/repository"
)

var base = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

func event(sig string, idx int, from, to string, amount float64, at time.Time, slot uint64) *entity.TransferEvent {
	return &entity.TransferEvent{
		Signature:  sig,
		EventIndex: idx,
		Slot:       slot,
		BlockTime:  at,
		Kind:       entity.TransferKindSOL,
		From:       from,
		To:         to,
		Amount:     amount,
	}
}

func TestPostgresTransferRepository_InsertIsIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewPostgresTransferRepository(pool)

	events := []*entity.TransferEvent{
		event("sig1", 0, "A", "B", 1, base, 100),
		event("sig1", 1, "A", "C", 2, base, 100),
	}
	n, err := repo.InsertTransfers(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Redelivery plus one new event
	n, err = repo.InsertTransfers(ctx, append(events, event("sig2", 0, "B", "C", 3, base, 101)))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.InsertTransfers(ctx, []*entity.TransferEvent{nil})
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestPostgresTransferRepository_EvidenceQueries(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewPostgresTransferRepository(pool)

	_, err := repo.InsertTransfers(ctx, []*entity.TransferEvent{
		// F funds both A and B, G only funds A
		event("f1", 0, "F", "A", 5, base, 10),
		event("f2", 0, "F", "A", 5, base.Add(time.Minute), 11),
		event("f3", 0, "F", "B", 5, base.Add(2*time.Minute), 12),
		event("g1", 0, "G", "A", 1, base, 13),
		// A and B both pay D, in the same slot once
		event("a1", 0, "A", "D", 2, base.Add(time.Hour), 20),
		event("a2", 0, "A", "D", 2, base.Add(2*time.Hour), 21),
		event("a3", 0, "A", "E", 2, base.Add(2*time.Hour), 21),
		event("b1", 0, "B", "D", 4, base.Add(time.Hour), 20),
		// Outside the window
		event("old", 0, "F", "B", 9, base.Add(-90*24*time.Hour), 1),
	})
	require.NoError(t, err)
	since := base.Add(-24 * time.Hour)

	shared, err := repo.GetSharedInboundSenders(ctx, "A", "B", since)
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.Equal(t, entity.SharedCounterparty{Address: "F", EventsA: 2, EventsB: 1}, shared[0])

	top, err := repo.GetTopCounterparties(ctx, "A", since, 10)
	require.NoError(t, err)
	assert.Equal(t, []entity.Counterparty{{Address: "D", EventCount: 2}, {Address: "E", EventCount: 1}}, top)

	top, err = repo.GetTopCounterparties(ctx, "A", since, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	profile, err := repo.GetBehavioralProfile(ctx, "A", "", since)
	require.NoError(t, err)
	assert.Equal(t, int64(6), profile.TxCount)
	assert.InDelta(t, 17.0/6.0, profile.AvgAmount, 1e-9)
	assert.InDelta(t, 6.0, profile.TxPerDay, 1e-9)
	assert.InDelta(t, 3.0/6.0, profile.HourHistogram[9], 1e-9)
	assert.InDelta(t, 1.0/6.0, profile.HourHistogram[10], 1e-9)
	assert.InDelta(t, 2.0/6.0, profile.HourHistogram[11], 1e-9)
	assert.True(t, profile.FirstActivity.Equal(base))

	_, err = repo.GetBehavioralProfile(ctx, "NOBODY", "", since)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	overlap, err := repo.GetTemporalOverlap(ctx, "A", "B", since, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), overlap.ActiveBucketsA)
	assert.Equal(t, int64(2), overlap.ActiveBucketsB)
	assert.Equal(t, int64(2), overlap.SharedBuckets)
	assert.Equal(t, int64(1), overlap.SameSlotCount)

	_, err = repo.GetTemporalOverlap(ctx, "A", "B", since, time.Millisecond)
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestPostgresTransferRepository_PairTransfersExcluded(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewPostgresTransferRepository(pool)

	_, err := repo.InsertTransfers(ctx, []*entity.TransferEvent{
		event("ac", 0, "A", "C", 5, base, 42),
		event("ca", 0, "C", "A", 5, base.Add(time.Minute), 43),
		event("ad", 0, "A", "D", 1, base.Add(3*time.Hour), 50),
	})
	require.NoError(t, err)
	since := base.Add(-24 * time.Hour)

	profile, err := repo.GetBehavioralProfile(ctx, "A", "C", since)
	require.NoError(t, err)
	assert.Equal(t, int64(1), profile.TxCount)
	assert.InDelta(t, 1.0, profile.AvgAmount, 1e-9)

	_, err = repo.GetBehavioralProfile(ctx, "C", "A", since)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	overlap, err := repo.GetTemporalOverlap(ctx, "A", "C", since, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), overlap.ActiveBucketsA)
	assert.Zero(t, overlap.ActiveBucketsB)
	assert.Zero(t, overlap.SharedBuckets)
	assert.Zero(t, overlap.SameSlotCount)
}

func TestPostgresLabelRepository_SaveAndLookup(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewPostgresLabelRepository(pool)

	require.NoError(t, repo.SaveLabel(ctx, &entity.WalletLabel{Address: "EX2", IsExchange: true, Exchange: "kraken"}))
	require.NoError(t, repo.SaveLabel(ctx, &entity.WalletLabel{Address: "EX1", IsExchange: true, Exchange: "okx"}))
	require.NoError(t, repo.SaveLabel(ctx, &entity.WalletLabel{Address: "USER"}))

	isExchange, err := repo.IsExchangeWallet(ctx, "EX1")
	require.NoError(t, err)
	assert.True(t, isExchange)

	isExchange, err = repo.IsExchangeWallet(ctx, "UNKNOWN")
	require.NoError(t, err)
	assert.False(t, isExchange)

	exchanges, err := repo.ExchangeWallets(ctx, []string{"USER", "EX2", "EX1", "UNKNOWN"})
	require.NoError(t, err)
	assert.Equal(t, []string{"EX1", "EX2"}, exchanges)

	// Replace
	require.NoError(t, repo.SaveLabel(ctx, &entity.WalletLabel{Address: "EX1"}))
	label, err := repo.GetLabel(ctx, "EX1")
	require.NoError(t, err)
	assert.False(t, label.IsExchange)

	_, err = repo.GetLabel(ctx, "UNKNOWN")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.SaveLabel(ctx, nil), repository.ErrInvalidInput)
}
