package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/repository"
	"wallet-cluster-analyzer/internal/infrastructure/config"
	"wallet-cluster-analyzer/internal/infrastructure/logger"
	"wallet-cluster-analyzer/internal/infrastructure/memory"
)

func TestProcessTransfer_RejectsInvalidEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.ingestion.ProcessTransfer(ctx, nil)
	assert.ErrorIs(t, err, repository.ErrInvalidInput)

	err = f.ingestion.ProcessTransfer(ctx, transfer("sig", "not-a-wallet", wallet(2), 1, time.Now(), 1))
	assert.ErrorIs(t, err, repository.ErrInvalidInput)

	require.NoError(t, f.ingestion.ProcessTransfer(ctx, transfer("sig", wallet(1), wallet(2), 1, time.Now(), 1)))
	assert.True(t, f.network.Snapshot().HasNode(wallet(2)))
}

func TestProcessTransferBatch_SkipsMalformedAndRedeliveries(t *testing.T) {
	f := newFixture(t)
	a, b := wallet(1), wallet(2)
	at := time.Now().Add(-time.Hour)

	batch := []*entity.TransferEvent{
		transfer("s1", a, b, 2, at, 10),
		nil,
		transfer("s2", a, "", 3, at, 11),
		transfer("s3", a, b, -1, at, 12),
		transfer("s4", a, b, 3, at, 13),
	}
	f.ingest(t, batch...)
	// Redelivery of the same events must not change any aggregate
	f.ingest(t, batch...)

	g := f.network.Snapshot()
	edge, ok := g.Edge(a, b)
	require.True(t, ok)
	assert.Equal(t, int64(2), edge.TransactionCount)
	assert.InDelta(t, 5.0, edge.SolAmount, 1e-9)

	flows, err := f.relationships.GetFlowsForWallets(context.Background(), []string{a}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, int64(2), flows[0].TxCount)

	counterparties, err := f.transfers.GetTopCounterparties(context.Background(), a, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, counterparties, 1)
	assert.Equal(t, b, counterparties[0].Address)
}

func TestProcessTransferBatch_StoreFailure(t *testing.T) {
	failing := errors.New("disk full")
	svc := NewIngestionApplicationService(
		failingTransfers{err: failing},
		memory.NewRelationshipStore(),
		nil, nil,
		config.IngestionConfig{},
		logger.NewNop(),
	)

	err := svc.ProcessTransferBatch(context.Background(), []*entity.TransferEvent{
		transfer("s1", wallet(1), wallet(2), 1, time.Now(), 1),
	})
	assert.ErrorIs(t, err, failing)
}

func TestBootstrapWallets(t *testing.T) {
	f := newFixture(t)
	a, b, c, d := wallet(1), wallet(2), wallet(3), wallet(4)
	at := time.Now().Add(-time.Hour)

	f.source.transfers[a] = []*entity.TransferEvent{
		transfer("a1", a, b, 1, at, 1),
		transfer("a2", a, c, 1, at, 2),
		transfer("a3", c, a, 1, at, 3),
	}
	f.source.errs[d] = errors.New("upstream down")

	err := f.ingestion.BootstrapWallets(context.Background(), []string{a, a, "bogus", d})
	require.NoError(t, err)

	assert.Equal(t, 1, f.source.callCount(a))
	assert.Equal(t, 1, f.source.callCount(d))
	assert.Zero(t, f.source.callCount("bogus"))

	flows, err := f.relationships.GetFlowsForWallets(context.Background(), []string{a}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, flows, 3)
	assert.Equal(t, 3, f.network.Snapshot().EdgeCount())
}

func TestBootstrapWallets_Cancelled(t *testing.T) {
	f := newFixture(t)
	a := wallet(1)
	f.source.delay = time.Second
	f.source.transfers[a] = []*entity.TransferEvent{transfer("a1", a, wallet(2), 1, time.Now(), 1)}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := f.ingestion.BootstrapWallets(ctx, []string{a})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	flows, err := f.relationships.GetFlowsForWallets(context.Background(), []string{a}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, flows)
}

func TestBootstrapWallets_NoSource(t *testing.T) {
	svc := NewIngestionApplicationService(
		memory.NewTransferStore(),
		memory.NewRelationshipStore(),
		nil, nil,
		config.IngestionConfig{},
		logger.NewNop(),
	)
	assert.NoError(t, svc.BootstrapWallets(context.Background(), []string{wallet(1)}))
}

type failingTransfers struct {
	repository.TransferRepository
	err error
}

func (f failingTransfers) InsertTransfers(context.Context, []*entity.TransferEvent) (int, error) {
	return 0, f.err
}
