package entity

import (
	"time"
)

// EvidenceItem is one structured piece of evidence behind a signal
type EvidenceItem struct {
	Kind                string   `json:"kind"`
	Magnitude           float64  `json:"magnitude"`
	SupportingAddresses []string `json:"supporting_addresses,omitempty"`
}

// Evidence item kinds
const (
	EvidenceConnection          = "connection"
	EvidenceSharedFunder        = "shared_funder"
	EvidenceSharedCounterparty  = "shared_counterparty"
	EvidenceAmountSimilarity    = "amount_similarity"
	EvidenceFrequencySimilarity = "frequency_similarity"
	EvidenceHourSimilarity      = "hour_similarity"
	EvidenceActiveOverlap       = "active_overlap"
	EvidenceSameSlot            = "same_slot"
)

// EvidenceSignal is one independently computed, weighted contributor to a candidate score
type EvidenceSignal struct {
	Kind     SignalKind     `json:"kind"`
	RawScore float64        `json:"raw_score"`
	Weight   float64        `json:"weight"`
	Evidence []EvidenceItem `json:"evidence,omitempty"`
}

// Contribution returns the weighted share of the signal in the final score
func (s EvidenceSignal) Contribution() float64 {
	return s.RawScore * s.Weight
}

// SideWalletRequest holds the parameters of a side-wallet search
type SideWalletRequest struct {
	MainWallet   string  `json:"main_wallet"`
	Depth        int     `json:"depth"`
	Threshold    float64 `json:"threshold"`
	Limit        int     `json:"limit"`
	LookbackDays int     `json:"lookback_days"`
}

// SideWalletCandidate is a wallet hypothesised to share an owner with the main wallet
type SideWalletCandidate struct {
	Address     string           `json:"address"`
	Score       float64          `json:"score"`
	HopDistance int              `json:"hop_distance"`
	Direction   Direction        `json:"direction"`
	Signals     []EvidenceSignal `json:"signals"`
	Reasons     []string         `json:"reasons"`
}

// Signal returns the signal of the given kind, if present
func (c *SideWalletCandidate) Signal(kind SignalKind) (EvidenceSignal, bool) {
	for _, s := range c.Signals {
		if s.Kind == kind {
			return s, true
		}
	}
	return EvidenceSignal{}, false
}

// ClusterSummary describes the cluster a wallet belongs to
type ClusterSummary struct {
	Wallet          string                `json:"wallet"`
	Members         []string              `json:"members"`
	Size            int                   `json:"size"`
	StronglyLinked  []string              `json:"strongly_linked"`
	InternalEdges   int                   `json:"internal_edges"`
	TotalVolume     float64               `json:"total_volume"`
	Density         float64               `json:"density"`
	AverageRisk     float64               `json:"average_risk"`
	CentralWallet   string                `json:"central_wallet"`
	RoleCounts      map[WalletRole]int    `json:"role_counts"`
	ExchangeWallets []string              `json:"exchange_wallets"`
	Patterns        PatternAnalysisResult `json:"patterns"`
}

// ExchangeRoute is one path that connects a wallet with another wallet or an exchange
type ExchangeRoute struct {
	Path       []string `json:"path"`
	Hops       int      `json:"hops"`
	Volume     float64  `json:"volume"`
	MinTxCount int64    `json:"min_tx_count"`
	Exchanges  []string `json:"exchanges"`
}

// TimeWindow is a closed time interval
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
