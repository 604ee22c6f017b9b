package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/graph"
	"wallet-cluster-analyzer/internal/infrastructure/memory"
)

var now = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

type transferRow struct {
	sig    string
	from   string
	to     string
	amount float64
	at     time.Time
	slot   uint64
}

// seed loads the same transfers into a graph and an in-memory transfer store
func seed(t *testing.T, rows ...transferRow) (*graph.WalletGraph, *memory.TransferStore) {
	t.Helper()
	g := graph.New()
	store := memory.NewTransferStore()
	events := make([]*entity.TransferEvent, 0, len(rows))
	for _, s := range rows {
		ev := &entity.TransferEvent{
			Signature: s.sig,
			Slot:      s.slot,
			BlockTime: s.at,
			Kind:      entity.TransferKindSOL,
			From:      s.from,
			To:        s.to,
			Amount:    s.amount,
		}
		g.MergeEdge(ev.From, ev.To, graph.DeltaFromEvent(ev))
		events = append(events, ev)
	}
	_, err := store.InsertTransfers(context.Background(), events)
	require.NoError(t, err)
	return g, store
}
