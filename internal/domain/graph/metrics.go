package graph

import "wallet-cluster-analyzer/internal/domain/entity"

// WalletMetrics summarises one wallet of the graph.
type WalletMetrics struct {
	Address          string            `json:"address"`
	InDegree         int               `json:"in_degree"`
	OutDegree        int               `json:"out_degree"`
	IncomingVolume   float64           `json:"incoming_volume"`
	OutgoingVolume   float64           `json:"outgoing_volume"`
	TransactionCount int64             `json:"transaction_count"`
	DegreeCentrality float64           `json:"degree_centrality"`
	RiskScore        float64           `json:"risk_score"`
	Role             entity.WalletRole `json:"role"`
}

// Stats summarises the whole graph.
type Stats struct {
	NodeCount        int     `json:"node_count"`
	EdgeCount        int     `json:"edge_count"`
	Density          float64 `json:"density"`
	Components       int     `json:"components"`
	LargestComponent int     `json:"largest_component"`
	TotalVolume      float64 `json:"total_volume"`
	ExchangeCount    int     `json:"exchange_count"`
}

// ComputeWalletMetrics returns the metrics of a wallet, false when absent.
func ComputeWalletMetrics(g *WalletGraph, address string) (WalletMetrics, bool) {
	node, ok := g.Node(address)
	if !ok {
		return WalletMetrics{}, false
	}
	centrality := 0.0
	if n := g.NodeCount(); n > 1 {
		centrality = float64(g.Degree(address)) / float64(n-1)
	}
	return WalletMetrics{
		Address:          address,
		InDegree:         g.InDegree(address),
		OutDegree:        g.OutDegree(address),
		IncomingVolume:   g.IncomingVolume(address),
		OutgoingVolume:   g.OutgoingVolume(address),
		TransactionCount: node.TransactionCount,
		DegreeCentrality: centrality,
		RiskScore:        node.RiskScore,
		Role:             node.Role,
	}, true
}

// ComputeStats returns graph level statistics.
func ComputeStats(g *WalletGraph) Stats {
	components := g.ConnectedComponents()
	stats := Stats{
		NodeCount:  g.NodeCount(),
		EdgeCount:  g.EdgeCount(),
		Density:    g.Density(),
		Components: len(components),
	}
	if len(components) > 0 {
		stats.LargestComponent = len(components[0])
	}
	for _, e := range g.Edges() {
		stats.TotalVolume += e.Volume()
	}
	for _, addr := range g.Nodes() {
		if g.IsExchange(addr) {
			stats.ExchangeCount++
		}
	}
	return stats
}
