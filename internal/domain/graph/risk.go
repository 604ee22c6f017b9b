package graph

import "math"

// RiskConfig holds the thresholds of the per-wallet risk score.
type RiskConfig struct {
	Base                float64 `mapstructure:"base"`
	HighDegreeThreshold int     `mapstructure:"high_degree_threshold"`
	HighDegreeIncrement float64 `mapstructure:"high_degree_increment"`
	ImbalanceRatio      float64 `mapstructure:"imbalance_ratio"`
	ImbalanceIncrement  float64 `mapstructure:"imbalance_increment"`
	VolumeThreshold     float64 `mapstructure:"volume_threshold"`
	VolumeIncrement     float64 `mapstructure:"volume_increment"`
}

// DefaultRiskConfig returns the default risk thresholds.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		Base:                0.1,
		HighDegreeThreshold: 50,
		HighDegreeIncrement: 0.2,
		ImbalanceRatio:      0.5,
		ImbalanceIncrement:  0.2,
		VolumeThreshold:     1000,
		VolumeIncrement:     0.3,
	}
}

// RiskScore is a pure function of the wallet's current edges:
// base + high degree + unbalanced flow + volume above threshold, clamped to [0,1].
func RiskScore(g *WalletGraph, address string, cfg RiskConfig) float64 {
	if !g.HasNode(address) {
		return 0
	}

	score := cfg.Base

	if g.Degree(address) > cfg.HighDegreeThreshold {
		score += cfg.HighDegreeIncrement
	}

	inVol, outVol := g.IncomingVolume(address), g.OutgoingVolume(address)
	if imbalance(inVol, outVol) > cfg.ImbalanceRatio {
		score += cfg.ImbalanceIncrement
	}

	total := inVol + outVol
	if cfg.VolumeThreshold > 0 && total > cfg.VolumeThreshold {
		excess := (total - cfg.VolumeThreshold) / cfg.VolumeThreshold
		score += cfg.VolumeIncrement * math.Min(1, excess)
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
