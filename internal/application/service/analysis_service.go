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

// AnalysisApplicationService implements AnalysisService on top of query-scoped
// graphs hydrated by the loader and the cached network view
type AnalysisApplicationService struct {
	loader   *GraphLoader
	engine   *service.EvidenceEngine
	detector *service.PatternDetector
	network  *graph.SharedGraph
	config   *config.Config
	logger   *logger.Logger
}

// NewAnalysisApplicationService creates a new analysis application service
func NewAnalysisApplicationService(
	loader *GraphLoader,
	engine *service.EvidenceEngine,
	detector *service.PatternDetector,
	network *graph.SharedGraph,
	cfg *config.Config,
	logger *logger.Logger,
) *AnalysisApplicationService {
	return &AnalysisApplicationService{
		loader:   loader,
		engine:   engine,
		detector: detector,
		network:  network,
		config:   cfg,
		logger:   logger.WithComponent("analysis-service"),
	}
}

var _ service.AnalysisService = (*AnalysisApplicationService)(nil)

// FindSideWallets ranks wallets likely controlled by the owner of req.MainWallet
func (s *AnalysisApplicationService) FindSideWallets(ctx context.Context, req entity.SideWalletRequest) ([]entity.SideWalletCandidate, error) {
	req, err := s.engine.Normalize(req)
	if err != nil {
		return nil, err
	}
	if err := validateWallet(req.MainWallet); err != nil {
		return nil, err
	}

	g, err := s.loader.LoadNeighborhood(ctx, []string{req.MainWallet}, req.Depth, days(req.LookbackDays))
	if err != nil {
		return nil, err
	}

	candidates, err := s.engine.FindSideWallets(ctx, g, req)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		candidates[i].Reasons = RenderReasons(candidates[i].Signals)
	}

	s.logger.Info("Side wallet search",
		zap.String("main_wallet", req.MainWallet),
		zap.Int("depth", req.Depth),
		zap.Int("candidates", len(candidates)))
	return candidates, nil
}

// AnalyzeWalletCluster summarises the connected cluster around a wallet
func (s *AnalysisApplicationService) AnalyzeWalletCluster(ctx context.Context, wallet string) (*entity.ClusterSummary, error) {
	if err := validateWallet(wallet); err != nil {
		return nil, err
	}

	g, err := s.loader.LoadNeighborhood(ctx, []string{wallet}, s.config.Analysis.ClusterDepth, days(s.config.Evidence.DefaultLookbackDays))
	if err != nil {
		return nil, err
	}

	summary := &entity.ClusterSummary{
		Wallet:          wallet,
		Members:         []string{},
		StronglyLinked:  []string{},
		RoleCounts:      map[entity.WalletRole]int{},
		ExchangeWallets: []string{},
	}
	if g.Degree(wallet) == 0 {
		summary.Patterns = s.detector.Analyze(graph.New(), nil)
		return summary, nil
	}

	members := componentOf(g.ConnectedComponents(), wallet)
	cluster := g.Subgraph(members)

	summary.Members = members
	summary.Size = len(members)
	summary.InternalEdges = cluster.EdgeCount()
	summary.Density = cluster.Density()
	summary.TotalVolume = graph.ComputeStats(cluster).TotalVolume
	if scc := componentOf(graph.StronglyConnectedClusters(cluster), wallet); len(scc) > 0 {
		summary.StronglyLinked = scc
	}

	riskTotal := 0.0
	for _, addr := range members {
		node, _ := cluster.Node(addr)
		riskTotal += node.RiskScore
		summary.RoleCounts[node.Role]++
		if node.IsExchange {
			summary.ExchangeWallets = append(summary.ExchangeWallets, addr)
		}
	}
	summary.AverageRisk = riskTotal / float64(len(members))
	summary.CentralWallet = s.centralWallet(cluster)
	summary.Patterns = s.detector.Analyze(cluster, []string{wallet})

	s.logger.Info("Cluster analysis",
		zap.String("wallet", wallet),
		zap.Int("size", summary.Size),
		zap.String("risk_level", string(summary.Patterns.OverallRiskLevel)))
	return summary, nil
}

// TraceExchangeRoutes returns the best route from one wallet to another
// followed by the other minimum-hop routes
func (s *AnalysisApplicationService) TraceExchangeRoutes(ctx context.Context, from, to string) ([]entity.ExchangeRoute, error) {
	if err := validateWallet(from); err != nil {
		return nil, err
	}
	if err := validateWallet(to); err != nil {
		return nil, err
	}
	routes := []entity.ExchangeRoute{}
	if from == to {
		return routes, nil
	}

	// Expanding half the route depth from both ends covers every route up to the full depth
	depth := (s.config.Analysis.RouteDepth + 1) / 2
	g, err := s.loader.LoadNeighborhood(ctx, []string{from, to}, depth, days(s.config.Evidence.DefaultLookbackDays))
	if err != nil {
		return nil, err
	}

	best, ok := graph.ShortestPath(g, from, to)
	if !ok {
		return routes, nil
	}
	routes = append(routes, exchangeRoute(g, best))
	for _, p := range graph.AllShortestPaths(g, from, to, s.config.Analysis.MaxRoutes) {
		if len(routes) >= s.config.Analysis.MaxRoutes {
			break
		}
		if !sameWallets(p.Wallets, best.Wallets) {
			routes = append(routes, exchangeRoute(g, p))
		}
	}
	return routes, nil
}

// DetectWashTrading returns the wash trading cycles through a wallet
func (s *AnalysisApplicationService) DetectWashTrading(ctx context.Context, wallet string) ([]entity.WashTradingPattern, error) {
	if err := validateWallet(wallet); err != nil {
		return nil, err
	}

	// Every edge of a cycle through the wallet lies within half the cycle length of it
	depth := s.config.Patterns.CycleMaxDepth/2 + 1
	g, err := s.loader.LoadNeighborhood(ctx, []string{wallet}, depth, days(s.config.Evidence.DefaultLookbackDays))
	if err != nil {
		return nil, err
	}
	return s.detector.DetectWashTrading(g, wallet), nil
}

// DetectNetworkAnomalies scans the cached network view, hydrating it first if
// it has never been loaded
func (s *AnalysisApplicationService) DetectNetworkAnomalies(ctx context.Context) (*entity.NetworkAnomalies, error) {
	if s.network.RefreshedAt().IsZero() {
		if err := s.loader.RefreshNetwork(ctx, s.network); err != nil {
			return nil, err
		}
	}

	var result *entity.NetworkAnomalies
	s.network.View(func(g *graph.WalletGraph) {
		result = s.networkAnomalies(g)
	})

	s.logger.Info("Network anomaly scan",
		zap.Int("nodes", result.NodeCount),
		zap.Int("clusters", len(result.Clusters)),
		zap.Int("hubs", len(result.Hubs)),
		zap.Bool("sampled_centrality", result.SampledCentrality))
	return result, nil
}

func (s *AnalysisApplicationService) networkAnomalies(g *graph.WalletGraph) *entity.NetworkAnomalies {
	result := &entity.NetworkAnomalies{
		NodeCount:       g.NodeCount(),
		EdgeCount:       g.EdgeCount(),
		Density:         g.Density(),
		Clusters:        graph.StronglyConnectedClusters(g),
		Hubs:            []entity.HubWallet{},
		HighRiskWallets: []string{},
	}

	betweenness, sampled := graph.BetweennessCentrality(g, s.betweennessOptions())
	degree := graph.DegreeCentrality(g)
	result.SampledCentrality = sampled

	for _, addr := range g.Nodes() {
		if b := betweenness[addr]; b > 0 {
			result.Hubs = append(result.Hubs, entity.HubWallet{
				Address:     addr,
				Betweenness: b,
				Degree:      degree[addr],
				IsExchange:  g.IsExchange(addr),
			})
		}
		if node, _ := g.Node(addr); !node.IsExchange && node.RiskScore >= s.config.Analysis.HighRiskThreshold {
			result.HighRiskWallets = append(result.HighRiskWallets, addr)
		}
	}
	sort.SliceStable(result.Hubs, func(i, j int) bool {
		if result.Hubs[i].Betweenness != result.Hubs[j].Betweenness {
			return result.Hubs[i].Betweenness > result.Hubs[j].Betweenness
		}
		return result.Hubs[i].Address < result.Hubs[j].Address
	})
	if limit := s.config.Analysis.MaxHubs; limit > 0 && len(result.Hubs) > limit {
		result.Hubs = result.Hubs[:limit]
	}

	result.Patterns = s.detector.Analyze(g, nil)
	return result
}

func (s *AnalysisApplicationService) betweennessOptions() graph.BetweennessOptions {
	return graph.BetweennessOptions{
		SampleThreshold: s.config.Analysis.BetweennessSampleThreshold,
		Pivots:          s.config.Analysis.BetweennessPivots,
	}
}

// centralWallet picks the wallet with the highest betweenness, then degree, then address
func (s *AnalysisApplicationService) centralWallet(g *graph.WalletGraph) string {
	betweenness, _ := graph.BetweennessCentrality(g, s.betweennessOptions())
	best := ""
	for _, addr := range g.Nodes() {
		if best == "" ||
			betweenness[addr] > betweenness[best] ||
			(betweenness[addr] == betweenness[best] && g.Degree(addr) > g.Degree(best)) {
			best = addr
		}
	}
	return best
}

func exchangeRoute(g *graph.WalletGraph, p graph.Path) entity.ExchangeRoute {
	route := entity.ExchangeRoute{
		Path:      append([]string(nil), p.Wallets...),
		Hops:      p.Hops,
		Volume:    p.Volume,
		Exchanges: []string{},
	}
	for i := 0; i+1 < len(p.Wallets); i++ {
		if e, ok := g.Edge(p.Wallets[i], p.Wallets[i+1]); ok {
			if i == 0 || e.TransactionCount < route.MinTxCount {
				route.MinTxCount = e.TransactionCount
			}
		}
	}
	for _, addr := range p.Wallets {
		if g.IsExchange(addr) {
			route.Exchanges = append(route.Exchanges, addr)
		}
	}
	return route
}

func componentOf(components [][]string, wallet string) []string {
	for _, c := range components {
		for _, addr := range c {
			if addr == wallet {
				return c
			}
		}
	}
	return nil
}

func sameWallets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func validateWallet(address string) error {
	if err := entity.ValidateAddress(address); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}
	return nil
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
