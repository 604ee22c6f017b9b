package entity

import (
	"fmt"
	"time"
)

// TransferKind distinguishes native SOL transfers from SPL token transfers
type TransferKind string

const (
	TransferKindSOL   TransferKind = "sol"
	TransferKindToken TransferKind = "token"
)

// NativeAsset is the asset key used for SOL flows in the relationship store
const NativeAsset = "SOL"

// TransferEvent represents a single parsed transfer published by the transaction parser
type TransferEvent struct {
	Signature  string       `json:"signature"`
	EventIndex int          `json:"event_index"`
	Slot       uint64       `json:"slot"`
	BlockTime  time.Time    `json:"block_time"`
	Kind       TransferKind `json:"kind"`
	From       string       `json:"from"`
	To         string       `json:"to"`
	Mint       string       `json:"mint,omitempty"`
	Amount     float64      `json:"amount"`
}

// Key returns the idempotency key of the event (signature#event_index)
func (e *TransferEvent) Key() string {
	return fmt.Sprintf("%s#%d", e.Signature, e.EventIndex)
}

// Asset returns the mint for token transfers and NativeAsset for SOL
func (e *TransferEvent) Asset() string {
	if e.Kind == TransferKindToken && e.Mint != "" {
		return e.Mint
	}
	return NativeAsset
}

// FlowRecord is one aggregated (from, to, asset) relationship as persisted by the store
type FlowRecord struct {
	FromAddress string    `json:"from_address"`
	ToAddress   string    `json:"to_address"`
	Asset       string    `json:"asset"`
	Amount      float64   `json:"amount"`
	TxCount     int64     `json:"tx_count"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	EventKeys   []string  `json:"event_keys"`
}
