package entity

import (
	"time"
)

// WalletLabel is the external labeling of a wallet
type WalletLabel struct {
	Address    string `json:"address"`
	IsExchange bool   `json:"is_exchange"`
	Exchange   string `json:"exchange,omitempty"`
}

// Counterparty is a wallet seen on the other side of transfers together with its event count
type Counterparty struct {
	Address    string `json:"address"`
	EventCount int64  `json:"event_count"`
}

// SharedCounterparty is a wallet that interacted with both compared wallets
type SharedCounterparty struct {
	Address string `json:"address"`
	EventsA int64  `json:"events_a"`
	EventsB int64  `json:"events_b"`
}

// BehavioralProfile summarises the transfer activity of a wallet inside a lookback window.
// HourHistogram holds the share of events per UTC hour and sums to 1 when TxCount > 0.
type BehavioralProfile struct {
	Address       string      `json:"address"`
	TxCount       int64       `json:"tx_count"`
	AvgAmount     float64     `json:"avg_amount"`
	TxPerDay      float64     `json:"tx_per_day"`
	HourHistogram [24]float64 `json:"hour_histogram"`
	FirstActivity time.Time   `json:"first_activity"`
	LastActivity  time.Time   `json:"last_activity"`
}

// TemporalOverlap describes how the active periods of two wallets line up
type TemporalOverlap struct {
	ActiveBucketsA int64 `json:"active_buckets_a"`
	ActiveBucketsB int64 `json:"active_buckets_b"`
	SharedBuckets  int64 `json:"shared_buckets"`
	SameSlotCount  int64 `json:"same_slot_count"`
}

// ActivityRate returns events per day over the active span, treating spans
// shorter than a day as one day
func ActivityRate(count int64, first, last time.Time) float64 {
	if count <= 0 {
		return 0
	}
	days := last.Sub(first).Hours() / 24
	if days < 1 {
		days = 1
	}
	return float64(count) / days
}

// NormalizeHistogram converts per-hour counts into shares
func NormalizeHistogram(counts [24]float64) [24]float64 {
	var total float64
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return counts
	}
	var shares [24]float64
	for i, c := range counts {
		shares[i] = c / total
	}
	return shares
}
