package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/graph"
	"wallet-cluster-analyzer/internal/domain/repository"
	"wallet-cluster-analyzer/internal/domain/service"
	"wallet-cluster-analyzer/internal/infrastructure/config"
	"wallet-cluster-analyzer/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// LoaderConfig bounds graph hydration
type LoaderConfig struct {
	PerWalletLimit   int
	HydrationTimeout time.Duration
	BootstrapOnQuery bool
	NetworkLookback  time.Duration
	NetworkEdgeLimit int
}

// Bootstrapper fetches wallets the relationship store has never seen
type Bootstrapper interface {
	BootstrapWallets(ctx context.Context, addresses []string) error
}

// GraphLoader hydrates query-scoped graphs and the cached network view from
// the relationship store
type GraphLoader struct {
	relationships repository.RelationshipRepository
	labeler       *service.WalletLabeler
	bootstrapper  Bootstrapper
	risk          graph.RiskConfig
	config        LoaderConfig
	logger        *logger.Logger
	now           func() time.Time
}

// NewGraphLoader creates a new graph loader. bootstrapper may be nil.
func NewGraphLoader(
	relationships repository.RelationshipRepository,
	labeler *service.WalletLabeler,
	bootstrapper Bootstrapper,
	risk graph.RiskConfig,
	cfg LoaderConfig,
	logger *logger.Logger,
) *GraphLoader {
	return &GraphLoader{
		relationships: relationships,
		labeler:       labeler,
		bootstrapper:  bootstrapper,
		risk:          risk,
		config:        cfg,
		logger:        logger.WithComponent("graph-loader"),
		now:           time.Now,
	}
}

type flowID struct {
	from, to, asset string
}

// LoadNeighborhood hydrates the graph around the seeds, expanding depth hops
// out from them. Exchange wallets are included but never expanded. Seeds with
// no stored flows are bootstrapped from the upstream parser when enabled.
func (l *GraphLoader) LoadNeighborhood(ctx context.Context, seeds []string, depth int, lookback time.Duration) (*graph.WalletGraph, error) {
	if l.config.HydrationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.HydrationTimeout)
		defer cancel()
	}

	g := graph.New(graph.WithRiskConfig(l.risk))
	since := time.Time{}
	if lookback > 0 {
		since = l.now().Add(-lookback)
	}

	frontier := uniqueSorted(seeds)
	visited := make(map[string]bool, len(frontier))
	for _, addr := range frontier {
		visited[addr] = true
	}
	merged := make(map[flowID]bool)
	bootstrapped := false

	for level := 0; level < depth && len(frontier) > 0; level++ {
		flows, err := l.relationships.GetFlowsForWallets(ctx, frontier, since, l.config.PerWalletLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load flows: %w", err)
		}

		if level == 0 && !bootstrapped && l.config.BootstrapOnQuery && l.bootstrapper != nil {
			if missing := walletsWithoutFlows(frontier, flows); len(missing) > 0 {
				bootstrapped = true
				if err := l.bootstrapper.BootstrapWallets(ctx, missing); err != nil {
					return nil, fmt.Errorf("failed to bootstrap wallets: %w", err)
				}
				flows, err = l.relationships.GetFlowsForWallets(ctx, frontier, since, l.config.PerWalletLimit)
				if err != nil {
					return nil, fmt.Errorf("failed to load flows: %w", err)
				}
			}
		}

		var discovered []string
		for _, rec := range flows {
			id := flowID{from: rec.FromAddress, to: rec.ToAddress, asset: rec.Asset}
			if merged[id] {
				continue
			}
			merged[id] = true
			g.MergeEdge(rec.FromAddress, rec.ToAddress, graph.DeltaFromFlow(rec))
			for _, addr := range [2]string{rec.FromAddress, rec.ToAddress} {
				if !visited[addr] {
					visited[addr] = true
					discovered = append(discovered, addr)
				}
			}
		}

		sort.Strings(discovered)
		exchanges := l.labeler.Exchanges(ctx, discovered)
		for _, addr := range exchanges {
			g.SetExchange(addr, true)
		}
		frontier = without(discovered, exchanges)
	}

	for _, addr := range seeds {
		if addr != "" {
			g.AddNode(addr, false)
		}
	}
	l.labeler.LabelGraph(ctx, g)

	l.logger.Debug("Hydrated neighborhood",
		zap.Strings("seeds", seeds),
		zap.Int("depth", depth),
		zap.Int("nodes", g.NodeCount()),
		zap.Int("edges", g.EdgeCount()))
	return g, nil
}

// LoadNetwork hydrates the most recently active part of the network
func (l *GraphLoader) LoadNetwork(ctx context.Context) (*graph.WalletGraph, error) {
	since := time.Time{}
	if l.config.NetworkLookback > 0 {
		since = l.now().Add(-l.config.NetworkLookback)
	}

	flows, err := l.relationships.GetRecentFlows(ctx, since, l.config.NetworkEdgeLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent flows: %w", err)
	}

	g := graph.New(graph.WithRiskConfig(l.risk))
	for _, rec := range flows {
		g.MergeEdge(rec.FromAddress, rec.ToAddress, graph.DeltaFromFlow(rec))
	}
	l.labeler.LabelGraph(ctx, g)
	return g, nil
}

// RefreshNetwork replaces the cached network view with a fresh hydration
func (l *GraphLoader) RefreshNetwork(ctx context.Context, network *graph.SharedGraph) error {
	started := l.now()
	mark := network.BeginLoad()
	g, err := l.LoadNetwork(ctx)
	if err != nil {
		network.AbortLoad(mark)
		return err
	}
	network.Replace(g, mark)

	l.logger.Info("Refreshed network view",
		zap.Int("nodes", g.NodeCount()),
		zap.Int("edges", g.EdgeCount()),
		zap.Duration("took", l.now().Sub(started)))
	return nil
}

// RunRefreshLoop refreshes the network view every interval until ctx is done
func (l *GraphLoader) RunRefreshLoop(ctx context.Context, network *graph.SharedGraph, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.RefreshNetwork(ctx, network); err != nil && ctx.Err() == nil {
				l.logger.Error("Failed to refresh network view", zap.Error(err))
			}
		}
	}
}

func walletsWithoutFlows(wallets []string, flows []*entity.FlowRecord) []string {
	touched := make(map[string]bool, len(flows)*2)
	for _, rec := range flows {
		touched[rec.FromAddress] = true
		touched[rec.ToAddress] = true
	}
	var missing []string
	for _, addr := range wallets {
		if !touched[addr] {
			missing = append(missing, addr)
		}
	}
	return missing
}

func uniqueSorted(addresses []string) []string {
	seen := make(map[string]bool, len(addresses))
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if addr != "" && !seen[addr] {
			seen[addr] = true
			result = append(result, addr)
		}
	}
	sort.Strings(result)
	return result
}

// without returns the sorted addresses that are not in exclude
func without(addresses, exclude []string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, addr := range exclude {
		skip[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !skip[addr] {
			result = append(result, addr)
		}
	}
	return result
}

// LoaderConfigFrom derives the loader bounds from the application configuration
func LoaderConfigFrom(cfg *config.Config) LoaderConfig {
	return LoaderConfig{
		PerWalletLimit:   cfg.Evidence.MaxNeighborsPerNode,
		HydrationTimeout: cfg.Analysis.HydrationTimeout,
		BootstrapOnQuery: cfg.Ingestion.BootstrapOnQuery,
		NetworkLookback:  time.Duration(cfg.Analysis.NetworkLookbackDays) * 24 * time.Hour,
		NetworkEdgeLimit: cfg.Analysis.NetworkEdgeLimit,
	}
}
