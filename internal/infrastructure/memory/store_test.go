package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/repository"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

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

func TestRelationshipStore_MergeIsIdempotent(t *testing.T) {
	store := NewRelationshipStore()
	ctx := context.Background()

	events := []*entity.TransferEvent{
		event("s2", 0, "A", "B", 5, base.Add(time.Hour), 2),
		event("s1", 0, "A", "B", 10, base, 1),
		event("s3", 0, "A", "A", 10, base, 3),
	}

	merged, err := store.MergeTransfers(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1#0", "s2#0"}, merged)

	merged, err = store.MergeTransfers(ctx, events[:1])
	require.NoError(t, err)
	assert.Empty(t, merged)

	flows, err := store.GetFlowsForWallets(ctx, []string{"A"}, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, 15.0, flows[0].Amount)
	assert.Equal(t, int64(2), flows[0].TxCount)
	assert.Equal(t, base, flows[0].FirstSeen)
	assert.Equal(t, base.Add(time.Hour), flows[0].LastSeen)
	assert.Equal(t, []string{"s1#0", "s2#0"}, flows[0].EventKeys)
}

func TestRelationshipStore_FlowsPerWalletLimit(t *testing.T) {
	store := NewRelationshipStore()
	ctx := context.Background()

	_, err := store.MergeTransfers(ctx, []*entity.TransferEvent{
		event("s1", 0, "HUB", "A", 1, base, 1),
		event("s2", 0, "HUB", "B", 1, base, 1),
		event("s3", 0, "HUB", "B", 1, base, 1),
		event("s4", 0, "C", "HUB", 1, base.Add(-48*time.Hour), 1),
	})
	require.NoError(t, err)

	flows, err := store.GetFlowsForWallets(ctx, []string{"HUB"}, time.Time{}, 1)
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, "B", flows[0].ToAddress)

	flows, err = store.GetFlowsForWallets(ctx, []string{"HUB"}, base.Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, flows, 2)

	recent, err := store.GetRecentFlows(ctx, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "A", recent[0].ToAddress)
}

func TestTransferStore_Queries(t *testing.T) {
	store := NewTransferStore()
	ctx := context.Background()

	inserted, err := store.InsertTransfers(ctx, []*entity.TransferEvent{
		event("f1", 0, "FUNDER", "A", 1, base, 10),
		event("f2", 0, "FUNDER", "B", 1, base, 10),
		event("f3", 0, "FUNDER", "B", 1, base.Add(time.Minute), 11),
		event("a1", 0, "A", "DEX", 10, base.Add(2*time.Hour), 20),
		event("b1", 0, "B", "DEX", 30, base.Add(2*time.Hour), 20),
		event("a2", 0, "A", "X", 20, base.Add(26*time.Hour), 30),
	})
	require.NoError(t, err)
	assert.Equal(t, 6, inserted)

	dup, err := store.InsertTransfers(ctx, []*entity.TransferEvent{event("f1", 0, "FUNDER", "A", 1, base, 10)})
	require.NoError(t, err)
	assert.Equal(t, 0, dup)

	shared, err := store.GetSharedInboundSenders(ctx, "A", "B", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []entity.SharedCounterparty{{Address: "FUNDER", EventsA: 1, EventsB: 2}}, shared)

	top, err := store.GetTopCounterparties(ctx, "A", time.Time{}, 1)
	require.NoError(t, err)
	assert.Equal(t, []entity.Counterparty{{Address: "DEX", EventCount: 1}}, top)

	profile, err := store.GetBehavioralProfile(ctx, "A", "", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), profile.TxCount)
	assert.InDelta(t, 31.0/3.0, profile.AvgAmount, 1e-9)
	assert.InDelta(t, 3.0, profile.TxPerDay*26.0/24.0, 1e-9)
	assert.InDelta(t, 2.0/3.0, profile.HourHistogram[12], 1e-9)

	_, err = store.GetBehavioralProfile(ctx, "NOBODY", "", time.Time{})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	overlap, err := store.GetTemporalOverlap(ctx, "A", "B", time.Time{}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), overlap.ActiveBucketsA)
	assert.Equal(t, int64(2), overlap.ActiveBucketsB)
	assert.Equal(t, int64(2), overlap.SharedBuckets)
	assert.Equal(t, int64(2), overlap.SameSlotCount)
}

func TestTransferStore_PairTransfersExcluded(t *testing.T) {
	store := NewTransferStore()
	ctx := context.Background()

	_, err := store.InsertTransfers(ctx, []*entity.TransferEvent{
		event("ac", 0, "A", "C", 5, base, 42),
	})
	require.NoError(t, err)

	profile, err := store.GetBehavioralProfile(ctx, "A", "", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), profile.TxCount)

	_, err = store.GetBehavioralProfile(ctx, "A", "C", time.Time{})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.GetBehavioralProfile(ctx, "C", "A", time.Time{})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	overlap, err := store.GetTemporalOverlap(ctx, "A", "C", time.Time{}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, entity.TemporalOverlap{}, *overlap)

	_, err = store.InsertTransfers(ctx, []*entity.TransferEvent{
		event("ad", 0, "A", "D", 1, base, 42),
		event("ce", 0, "C", "E", 1, base, 42),
	})
	require.NoError(t, err)

	overlap, err = store.GetTemporalOverlap(ctx, "A", "C", time.Time{}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, entity.TemporalOverlap{ActiveBucketsA: 1, ActiveBucketsB: 1, SharedBuckets: 1, SameSlotCount: 1}, *overlap)
}

func TestLabelStore(t *testing.T) {
	store := NewLabelStore(entity.WalletLabel{Address: "EX", IsExchange: true, Exchange: "binance"})
	ctx := context.Background()

	ok, err := store.IsExchangeWallet(ctx, "EX")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.SaveLabel(ctx, &entity.WalletLabel{Address: "AA", IsExchange: true}))
	exchanges, err := store.ExchangeWallets(ctx, []string{"EX", "ZZ", "AA"})
	require.NoError(t, err)
	assert.Equal(t, []string{"AA", "EX"}, exchanges)

	_, err = store.GetLabel(ctx, "ZZ")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, store.SaveLabel(ctx, &entity.WalletLabel{}), repository.ErrInvalidInput)
}
