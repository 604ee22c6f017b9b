package service

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// SignalWeights are the weights of the five side-wallet signals. They must sum to 1.
type SignalWeights struct {
	Connectivity         float64 `mapstructure:"connectivity"`
	SharedFunders        float64 `mapstructure:"shared_funders"`
	SharedCounterparties float64 `mapstructure:"shared_counterparties"`
	Behavioral           float64 `mapstructure:"behavioral"`
	Temporal             float64 `mapstructure:"temporal"`
}

// Sum returns the total weight
func (w SignalWeights) Sum() float64 {
	return w.Connectivity + w.SharedFunders + w.SharedCounterparties + w.Behavioral + w.Temporal
}

// EvidenceConfig configures the side-wallet evidence engine
type EvidenceConfig struct {
	Weights SignalWeights `mapstructure:"weights"`

	DefaultDepth        int     `mapstructure:"default_depth"`
	DefaultThreshold    float64 `mapstructure:"default_threshold"`
	DefaultLimit        int     `mapstructure:"default_limit"`
	DefaultLookbackDays int     `mapstructure:"default_lookback_days"`
	MaxDepth            int     `mapstructure:"max_depth"`

	// Connectivity
	HopDecay            float64 `mapstructure:"hop_decay"`
	TxCountSaturation   float64 `mapstructure:"tx_count_saturation"`
	VolumeSaturation    float64 `mapstructure:"volume_saturation"`
	MaxNeighborsPerNode int     `mapstructure:"max_neighbors_per_node"`
	MinEdgeWeight       float64 `mapstructure:"min_edge_weight"`

	// Event-level signals
	FunderSaturation  float64       `mapstructure:"funder_saturation"`
	CounterpartyLimit int           `mapstructure:"counterparty_limit"`
	TemporalBucket    time.Duration `mapstructure:"temporal_bucket"`
	SameSlotBonus     float64       `mapstructure:"same_slot_bonus"`
	SameSlotBonusCap  float64       `mapstructure:"same_slot_bonus_cap"`
	SignalConcurrency int           `mapstructure:"signal_concurrency"`
}

// DefaultEvidenceConfig returns the default evidence configuration
func DefaultEvidenceConfig() EvidenceConfig {
	return EvidenceConfig{
		Weights: SignalWeights{
			Connectivity:         0.30,
			SharedFunders:        0.25,
			SharedCounterparties: 0.20,
			Behavioral:           0.15,
			Temporal:             0.10,
		},
		DefaultDepth:        2,
		DefaultThreshold:    0.10,
		DefaultLimit:        15,
		DefaultLookbackDays: 30,
		MaxDepth:            4,
		HopDecay:            0.5,
		TxCountSaturation:   20,
		VolumeSaturation:    1000,
		MaxNeighborsPerNode: 50,
		MinEdgeWeight:       0.02,
		FunderSaturation:    10,
		CounterpartyLimit:   50,
		TemporalBucket:      time.Hour,
		SameSlotBonus:       0.05,
		SameSlotBonusCap:    0.3,
		SignalConcurrency:   4,
	}
}

// Validate rejects malformed evidence settings
func (c EvidenceConfig) Validate() error {
	var errs []error
	if math.Abs(c.Weights.Sum()-1.0) > 1e-6 {
		errs = append(errs, fmt.Errorf("evidence.weights must sum to 1.0, got %.6f", c.Weights.Sum()))
	}
	for _, w := range []struct {
		name  string
		value float64
	}{
		{"connectivity", c.Weights.Connectivity},
		{"shared_funders", c.Weights.SharedFunders},
		{"shared_counterparties", c.Weights.SharedCounterparties},
		{"behavioral", c.Weights.Behavioral},
		{"temporal", c.Weights.Temporal},
	} {
		if w.value < 0 {
			errs = append(errs, fmt.Errorf("evidence.weights.%s must not be negative", w.name))
		}
	}
	if c.DefaultDepth <= 0 {
		errs = append(errs, errors.New("evidence.default_depth must be positive"))
	}
	if c.MaxDepth < c.DefaultDepth {
		errs = append(errs, errors.New("evidence.max_depth must be at least default_depth"))
	}
	if c.DefaultThreshold <= 0 || c.DefaultThreshold > 1 {
		errs = append(errs, errors.New("evidence.default_threshold must be in (0,1]"))
	}
	if c.DefaultLimit <= 0 {
		errs = append(errs, errors.New("evidence.default_limit must be positive"))
	}
	if c.DefaultLookbackDays <= 0 {
		errs = append(errs, errors.New("evidence.default_lookback_days must be positive"))
	}
	if c.HopDecay <= 0 || c.HopDecay > 1 {
		errs = append(errs, errors.New("evidence.hop_decay must be in (0,1]"))
	}
	if c.TxCountSaturation <= 0 || c.VolumeSaturation <= 0 || c.FunderSaturation <= 0 {
		errs = append(errs, errors.New("evidence saturation constants must be positive"))
	}
	if c.MaxNeighborsPerNode <= 0 {
		errs = append(errs, errors.New("evidence.max_neighbors_per_node must be positive"))
	}
	if c.MinEdgeWeight < 0 || c.MinEdgeWeight >= 1 {
		errs = append(errs, errors.New("evidence.min_edge_weight must be in [0,1)"))
	}
	if c.CounterpartyLimit <= 0 {
		errs = append(errs, errors.New("evidence.counterparty_limit must be positive"))
	}
	if c.TemporalBucket <= 0 {
		errs = append(errs, errors.New("evidence.temporal_bucket must be positive"))
	}
	if c.SignalConcurrency <= 0 {
		errs = append(errs, errors.New("evidence.signal_concurrency must be positive"))
	}
	return errors.Join(errs...)
}

// PatternConfig configures the pattern detector
type PatternConfig struct {
	CycleMaxDepth        int     `mapstructure:"cycle_max_depth"`
	MaxCycles            int     `mapstructure:"max_cycles"`
	VolumeMatchTolerance float64 `mapstructure:"volume_match_tolerance"`

	PumpAccumulationThreshold float64       `mapstructure:"pump_accumulation_threshold"`
	PumpDistributionThreshold float64       `mapstructure:"pump_distribution_threshold"`
	PumpWindow                time.Duration `mapstructure:"pump_window"`
	PumpNormalization         float64       `mapstructure:"pump_normalization"`

	CoordinationThreshold float64 `mapstructure:"coordination_threshold"`
	CoordinationMaxNodes  int     `mapstructure:"coordination_max_nodes"`

	WashWeight         float64 `mapstructure:"wash_weight"`
	CircularWeight     float64 `mapstructure:"circular_weight"`
	PumpWeight         float64 `mapstructure:"pump_weight"`
	CoordinationWeight float64 `mapstructure:"coordination_weight"`
}

// DefaultPatternConfig returns the default pattern detector configuration
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		CycleMaxDepth:             4,
		MaxCycles:                 1000,
		VolumeMatchTolerance:      0.10,
		PumpAccumulationThreshold: 1000,
		PumpDistributionThreshold: 1000,
		PumpWindow:                24 * time.Hour,
		PumpNormalization:         10,
		CoordinationThreshold:     0.6,
		CoordinationMaxNodes:      500,
		WashWeight:                1.0,
		CircularWeight:            0.5,
		PumpWeight:                1.0,
		CoordinationWeight:        0.75,
	}
}

// Validate rejects malformed pattern settings
func (c PatternConfig) Validate() error {
	var errs []error
	if c.CycleMaxDepth < 2 {
		errs = append(errs, errors.New("patterns.cycle_max_depth must be at least 2"))
	}
	if c.MaxCycles <= 0 {
		errs = append(errs, errors.New("patterns.max_cycles must be positive"))
	}
	if c.VolumeMatchTolerance < 0 || c.VolumeMatchTolerance >= 1 {
		errs = append(errs, errors.New("patterns.volume_match_tolerance must be in [0,1)"))
	}
	if c.PumpAccumulationThreshold <= 0 || c.PumpDistributionThreshold <= 0 {
		errs = append(errs, errors.New("patterns pump thresholds must be positive"))
	}
	if c.PumpWindow <= 0 {
		errs = append(errs, errors.New("patterns.pump_window must be positive"))
	}
	if c.PumpNormalization <= 0 {
		errs = append(errs, errors.New("patterns.pump_normalization must be positive"))
	}
	if c.CoordinationThreshold <= 0 || c.CoordinationThreshold > 1 {
		errs = append(errs, errors.New("patterns.coordination_threshold must be in (0,1]"))
	}
	if c.CoordinationMaxNodes <= 1 {
		errs = append(errs, errors.New("patterns.coordination_max_nodes must be greater than 1"))
	}
	if c.WashWeight < 0 || c.CircularWeight < 0 || c.PumpWeight < 0 || c.CoordinationWeight < 0 {
		errs = append(errs, errors.New("patterns risk weights must not be negative"))
	}
	return errors.Join(errs...)
}
