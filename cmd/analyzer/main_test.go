package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/infrastructure/config"
	"wallet-cluster-analyzer/internal/infrastructure/logger"
	"wallet-cluster-analyzer/internal/infrastructure/messaging"
)

// recordingIngestion stores nothing; it records batches and fails on demand
type recordingIngestion struct {
	mu      sync.Mutex
	batches [][]*entity.TransferEvent
	err     error
}

func (r *recordingIngestion) ProcessTransfer(ctx context.Context, event *entity.TransferEvent) error {
	return r.ProcessTransferBatch(ctx, []*entity.TransferEvent{event})
}

func (r *recordingIngestion) ProcessTransferBatch(_ context.Context, events []*entity.TransferEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, events)
	return r.err
}

func (r *recordingIngestion) BootstrapWallets(context.Context, []string) error { return nil }

type settled struct {
	acks, naks atomic.Int32
}

func (s *settled) delivery(signatures ...string) *messaging.Delivery {
	events := make([]*entity.TransferEvent, 0, len(signatures))
	for _, sig := range signatures {
		events = append(events, &entity.TransferEvent{Signature: sig, From: "A", To: "B", Amount: 1})
	}
	return messaging.NewDelivery(events, func() { s.acks.Add(1) }, func() { s.naks.Add(1) })
}

func runProcessMessages(t *testing.T, ingestion *recordingIngestion, deliveries ...*messaging.Delivery) {
	t.Helper()
	ch := make(chan *messaging.Delivery, len(deliveries))
	for _, d := range deliveries {
		ch <- d
	}
	close(ch)

	done := make(chan struct{})
	go func() {
		processMessages(context.Background(), ch, ingestion, logger.NewNop(), config.IngestionConfig{
			BatchSize:     3,
			Concurrency:   2,
			FlushInterval: time.Hour,
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("processMessages did not return after the channel closed")
	}
}

func TestProcessMessages_AcksStoredBatches(t *testing.T) {
	ingestion := &recordingIngestion{}
	var s settled

	runProcessMessages(t, ingestion, s.delivery("a", "b"), s.delivery("c", "d"), s.delivery("e"))

	assert.Equal(t, int32(3), s.acks.Load())
	assert.Zero(t, s.naks.Load())

	var total int
	for _, b := range ingestion.batches {
		total += len(b)
	}
	assert.Equal(t, 5, total)
	// messages are never split across batches
	require.Len(t, ingestion.batches, 2)
}

func TestProcessMessages_NaksFailedBatches(t *testing.T) {
	ingestion := &recordingIngestion{err: errors.New("neo4j unavailable")}
	var s settled

	runProcessMessages(t, ingestion, s.delivery("a"), s.delivery("b", "c"), s.delivery("d"))

	assert.Zero(t, s.acks.Load())
	assert.Equal(t, int32(3), s.naks.Load())
}
