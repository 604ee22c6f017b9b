package service

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/graph"
	"wallet-cluster-analyzer/internal/domain/service"
	"wallet-cluster-analyzer/internal/infrastructure/config"
	"wallet-cluster-analyzer/internal/infrastructure/logger"
	"wallet-cluster-analyzer/internal/infrastructure/memory"
)

// wallet returns a valid base58 public key made of one repeated byte
func wallet(b byte) string {
	return base58.Encode(bytes.Repeat([]byte{b}, entity.PublicKeySize))
}

func transfer(sig, from, to string, amount float64, at time.Time, slot uint64) *entity.TransferEvent {
	return &entity.TransferEvent{
		Signature: sig,
		Slot:      slot,
		BlockTime: at,
		Kind:      entity.TransferKindSOL,
		From:      from,
		To:        to,
		Amount:    amount,
	}
}

// stubSource serves canned transfers per wallet and counts fetches
type stubSource struct {
	mu        sync.Mutex
	transfers map[string][]*entity.TransferEvent
	errs      map[string]error
	calls     map[string]int
	delay     time.Duration
}

func newStubSource() *stubSource {
	return &stubSource{
		transfers: make(map[string][]*entity.TransferEvent),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (s *stubSource) FetchWalletTransfers(ctx context.Context, address string, _ int) ([]*entity.TransferEvent, error) {
	s.mu.Lock()
	s.calls[address]++
	events, err := s.transfers[address], s.errs[address]
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return events, err
}

func (s *stubSource) callCount(address string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[address]
}

func testConfig() *config.Config {
	return &config.Config{
		Ingestion: config.IngestionConfig{
			Concurrency:      4,
			BatchSize:        2,
			FetchLimit:       100,
			FetchTimeout:     time.Second,
			BootstrapOnQuery: true,
		},
		Analysis: config.AnalysisConfig{
			NetworkLookbackDays:        30,
			NetworkEdgeLimit:           1000,
			HydrationTimeout:           5 * time.Second,
			ClusterDepth:               2,
			RouteDepth:                 4,
			MaxRoutes:                  4,
			BetweennessSampleThreshold: 500,
			BetweennessPivots:          64,
			MaxHubs:                    10,
			HighRiskThreshold:          0.5,
		},
		Evidence: service.DefaultEvidenceConfig(),
		Patterns: service.DefaultPatternConfig(),
		Risk:     graph.DefaultRiskConfig(),
	}
}

type fixture struct {
	cfg           *config.Config
	transfers     *memory.TransferStore
	relationships *memory.RelationshipStore
	labels        *memory.LabelStore
	source        *stubSource
	network       *graph.SharedGraph
	ingestion     *IngestionApplicationService
	loader        *GraphLoader
	analysis      *AnalysisApplicationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewNop()
	f := &fixture{
		cfg:           testConfig(),
		transfers:     memory.NewTransferStore(),
		relationships: memory.NewRelationshipStore(),
		labels:        memory.NewLabelStore(),
		source:        newStubSource(),
		network:       graph.NewSharedGraph(nil),
	}
	f.ingestion = NewIngestionApplicationService(f.transfers, f.relationships, f.source, f.network, f.cfg.Ingestion, log)
	f.loader = NewGraphLoader(
		f.relationships,
		service.NewWalletLabeler(f.labels, log),
		f.ingestion,
		f.cfg.Risk,
		LoaderConfigFrom(f.cfg),
		log,
	)
	f.analysis = NewAnalysisApplicationService(
		f.loader,
		service.NewEvidenceEngine(f.transfers, f.cfg.Evidence, log),
		service.NewPatternDetector(f.cfg.Patterns, log),
		f.network,
		f.cfg,
		log,
	)
	return f
}

func (f *fixture) ingest(t *testing.T, events ...*entity.TransferEvent) {
	t.Helper()
	require.NoError(t, f.ingestion.ProcessTransferBatch(context.Background(), events))
}

func (f *fixture) markExchange(t *testing.T, address string) {
	t.Helper()
	require.NoError(t, f.labels.SaveLabel(context.Background(), &entity.WalletLabel{
		Address:    address,
		IsExchange: true,
		Exchange:   "test",
	}))
}
