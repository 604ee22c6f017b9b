package service

import (
	"context"
	"fmt"
	"sort"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/graph"
	"wallet-cluster-analyzer/internal/domain/repository"
	"wallet-cluster-analyzer/internal/domain/service"
	"wallet-cluster-analyzer/internal/infrastructure/config"
	"wallet-cluster-analyzer/internal/infrastructure/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// IngestionApplicationService implements IngestionService. Events are written
// to the event store first, then folded into the relationship store, then into
// the cached network view.
type IngestionApplicationService struct {
	transfers     repository.TransferRepository
	relationships repository.RelationshipRepository
	source        repository.TransferSource
	network       *graph.SharedGraph
	config        config.IngestionConfig
	limiter       *rate.Limiter
	inflight      singleflight.Group
	logger        *logger.Logger
}

// NewIngestionApplicationService creates a new ingestion service. source and
// network may be nil. A non-positive fetch rate disables pacing.
func NewIngestionApplicationService(
	transfers repository.TransferRepository,
	relationships repository.RelationshipRepository,
	source repository.TransferSource,
	network *graph.SharedGraph,
	cfg config.IngestionConfig,
	logger *logger.Logger,
) *IngestionApplicationService {
	limit := rate.Inf
	if cfg.FetchRate > 0 {
		limit = rate.Limit(cfg.FetchRate)
	}
	return &IngestionApplicationService{
		transfers:     transfers,
		relationships: relationships,
		source:        source,
		network:       network,
		config:        cfg,
		limiter:       rate.NewLimiter(limit, max(cfg.FetchBurst, 1)),
		logger:        logger.WithComponent("ingestion-service"),
	}
}

var _ service.IngestionService = (*IngestionApplicationService)(nil)

// ProcessTransfer processes a single transfer event
func (s *IngestionApplicationService) ProcessTransfer(ctx context.Context, event *entity.TransferEvent) error {
	if event == nil {
		return repository.ErrInvalidInput
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}
	return s.ProcessTransferBatch(ctx, []*entity.TransferEvent{event})
}

// ProcessTransferBatch stores a batch of transfer events. Malformed events are
// logged and skipped; store failures fail the batch so it can be redelivered.
func (s *IngestionApplicationService) ProcessTransferBatch(ctx context.Context, events []*entity.TransferEvent) error {
	valid := make([]*entity.TransferEvent, 0, len(events))
	for _, ev := range events {
		if ev == nil {
			continue
		}
		if err := ev.Validate(); err != nil {
			s.logger.Warn("Skipping malformed transfer event", zap.Error(err))
			continue
		}
		valid = append(valid, ev)
	}
	if len(valid) == 0 {
		return nil
	}

	inserted, err := s.transfers.InsertTransfers(ctx, valid)
	if err != nil {
		return fmt.Errorf("failed to store transfer events: %w", err)
	}

	merged, err := s.relationships.MergeTransfers(ctx, valid)
	if err != nil {
		return fmt.Errorf("failed to merge transfer relationships: %w", err)
	}

	applied := 0
	if s.network != nil && len(merged) > 0 {
		applied = s.network.Apply(selectMerged(valid, merged))
	}

	s.logger.Debug("Processed transfer batch",
		zap.Int("received", len(events)),
		zap.Int("valid", len(valid)),
		zap.Int("inserted", inserted),
		zap.Int("merged", len(merged)),
		zap.Int("applied_to_network", applied))
	return nil
}

// selectMerged returns copies of the events whose keys the relationship store applied
func selectMerged(events []*entity.TransferEvent, mergedKeys []string) []entity.TransferEvent {
	selected := make([]entity.TransferEvent, 0, len(mergedKeys))
	for _, ev := range events {
		key := ev.Key()
		i := sort.SearchStrings(mergedKeys, key)
		if i < len(mergedKeys) && mergedKeys[i] == key {
			selected = append(selected, *ev)
		}
	}
	return selected
}

// BootstrapWallets fetches the history of each wallet from the upstream
// parser and stores it. Fetches run concurrently up to the configured limit,
// are paced by the rate limiter and are shared between concurrent callers
// asking for the same wallet. A failing wallet is logged and does not stop the
// others; cancellation stops everything and discards fetched results.
func (s *IngestionApplicationService) BootstrapWallets(ctx context.Context, addresses []string) error {
	if s.source == nil {
		return nil
	}

	wallets := uniqueValidAddresses(addresses)
	if len(wallets) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.config.Concurrency, 1))
	for _, addr := range wallets {
		g.Go(func() error {
			_, err, _ := s.inflight.Do(addr, func() (any, error) {
				return nil, s.bootstrapWallet(gctx, addr)
			})
			if err == nil {
				return nil
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}
			s.logger.Warn("Failed to bootstrap wallet", zap.String("address", addr), zap.Error(err))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("bootstrap cancelled: %w", err)
	}
	return nil
}

func (s *IngestionApplicationService) bootstrapWallet(ctx context.Context, address string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	fetchCtx := ctx
	if s.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.config.FetchTimeout)
		defer cancel()
	}

	events, err := s.source.FetchWalletTransfers(fetchCtx, address, s.config.FetchLimit)
	if err != nil {
		return fmt.Errorf("fetch transfers: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for start := 0; start < len(events); start += s.batchSize() {
		end := min(start+s.batchSize(), len(events))
		if err := s.ProcessTransferBatch(ctx, events[start:end]); err != nil {
			return err
		}
	}

	s.logger.Info("Bootstrapped wallet", zap.String("address", address), zap.Int("transfers", len(events)))
	return nil
}

func (s *IngestionApplicationService) batchSize() int {
	if s.config.BatchSize > 0 {
		return s.config.BatchSize
	}
	return 100
}

func uniqueValidAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		if entity.ValidateAddress(addr) == nil {
			result = append(result, addr)
		}
	}
	sort.Strings(result)
	return result
}
