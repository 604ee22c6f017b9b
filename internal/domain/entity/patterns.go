package entity

// WashTradingPattern is a cycle of transfers that returns funds to its origin
type WashTradingPattern struct {
	Wallets     []string        `json:"wallets"`
	CycleLen    int             `json:"cycle_len"`
	TxCount     int64           `json:"tx_count"`
	Volume      float64         `json:"volume"`
	PatternType WashPatternType `json:"pattern_type"`
	Confidence  float64         `json:"confidence"`
}

// CircularFlow is a network-wide cycle with its aggregated volume
type CircularFlow struct {
	Path   []string `json:"path"`
	Volume float64  `json:"volume"`
	Hops   int      `json:"hops"`
}

// PumpDumpIndicator flags a wallet that accumulated and distributed within one window
type PumpDumpIndicator struct {
	Coordinator        string  `json:"coordinator"`
	AccumulationVolume float64 `json:"accumulation_volume"`
	DistributionVolume float64 `json:"distribution_volume"`
	ConnectedCount     int     `json:"connected_count"`
	RiskScore          float64 `json:"risk_score"`
}

// CoordinatedActivity is a group of wallets acting in a synchronised way
type CoordinatedActivity struct {
	Wallets          []string   `json:"wallets"`
	TimeWindow       TimeWindow `json:"time_window"`
	CorrelationScore float64    `json:"correlation_score"`
}

// PatternAnalysisResult aggregates every pattern detector output
type PatternAnalysisResult struct {
	WashTrading         []WashTradingPattern  `json:"wash_trading"`
	CircularFlows       []CircularFlow        `json:"circular_flows"`
	PumpDump            []PumpDumpIndicator   `json:"pump_dump"`
	CoordinatedActivity []CoordinatedActivity `json:"coordinated_activity"`
	RiskPoints          float64               `json:"risk_points"`
	OverallRiskLevel    RiskLevel             `json:"overall_risk_level"`
	ConfidenceScore     float64               `json:"confidence_score"`
}

// HubWallet is a wallet with outsized betweenness in the analysed network
type HubWallet struct {
	Address     string  `json:"address"`
	Betweenness float64 `json:"betweenness"`
	Degree      float64 `json:"degree"`
	IsExchange  bool    `json:"is_exchange"`
}

// NetworkAnomalies is the result of a network-wide anomaly scan
type NetworkAnomalies struct {
	NodeCount         int                   `json:"node_count"`
	EdgeCount         int                   `json:"edge_count"`
	Density           float64               `json:"density"`
	Clusters          [][]string            `json:"clusters"`
	Hubs              []HubWallet           `json:"hubs"`
	HighRiskWallets   []string              `json:"high_risk_wallets"`
	Patterns          PatternAnalysisResult `json:"patterns"`
	SampledCentrality bool                  `json:"sampled_centrality"`
}
