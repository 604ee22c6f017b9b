package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/repository"
)

type flowKey struct {
	From  string
	To    string
	Asset string
}

// RelationshipStore is an in-memory implementation of repository.RelationshipRepository.
type RelationshipStore struct {
	mu      sync.RWMutex
	flows   map[flowKey]*entity.FlowRecord
	applied map[flowKey]map[string]struct{}
}

// NewRelationshipStore creates a new in-memory relationship store.
func NewRelationshipStore() *RelationshipStore {
	return &RelationshipStore{
		flows:   make(map[flowKey]*entity.FlowRecord),
		applied: make(map[flowKey]map[string]struct{}),
	}
}

// Compile-time interface check.
var _ repository.RelationshipRepository = (*RelationshipStore)(nil)

// MergeTransfers folds events into their aggregates. Already applied event keys are skipped.
func (s *RelationshipStore) MergeTransfers(_ context.Context, events []*entity.TransferEvent) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]string, 0, len(events))
	for _, ev := range events {
		if ev == nil || ev.From == "" || ev.To == "" || ev.From == ev.To {
			continue
		}
		key := flowKey{From: ev.From, To: ev.To, Asset: ev.Asset()}
		eventKey := ev.Key()
		if _, dup := s.applied[key][eventKey]; dup {
			continue
		}

		rec, ok := s.flows[key]
		if !ok {
			rec = &entity.FlowRecord{
				FromAddress: ev.From,
				ToAddress:   ev.To,
				Asset:       key.Asset,
				FirstSeen:   ev.BlockTime,
				LastSeen:    ev.BlockTime,
			}
			s.flows[key] = rec
			s.applied[key] = make(map[string]struct{})
		}
		rec.Amount += ev.Amount
		rec.TxCount++
		if ev.BlockTime.Before(rec.FirstSeen) {
			rec.FirstSeen = ev.BlockTime
		}
		if ev.BlockTime.After(rec.LastSeen) {
			rec.LastSeen = ev.BlockTime
		}
		i := sort.SearchStrings(rec.EventKeys, eventKey)
		rec.EventKeys = append(rec.EventKeys, "")
		copy(rec.EventKeys[i+1:], rec.EventKeys[i:])
		rec.EventKeys[i] = eventKey
		s.applied[key][eventKey] = struct{}{}
		merged = append(merged, eventKey)
	}
	sort.Strings(merged)
	return merged, nil
}

// GetFlowsForWallets returns aggregates touching the wallets, strongest first per wallet.
func (s *RelationshipStore) GetFlowsForWallets(_ context.Context, addresses []string, since time.Time, perWalletLimit int) ([]*entity.FlowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(addresses))
	for _, addr := range addresses {
		wanted[addr] = true
	}
	perWallet := make(map[string][]*entity.FlowRecord)
	for _, rec := range s.flows {
		if rec.LastSeen.Before(since) {
			continue
		}
		if wanted[rec.FromAddress] {
			perWallet[rec.FromAddress] = append(perWallet[rec.FromAddress], rec)
		}
		if wanted[rec.ToAddress] {
			perWallet[rec.ToAddress] = append(perWallet[rec.ToAddress], rec)
		}
	}

	selected := make(map[flowKey]*entity.FlowRecord)
	for _, flows := range perWallet {
		sortByStrength(flows)
		if perWalletLimit > 0 && len(flows) > perWalletLimit {
			flows = flows[:perWalletLimit]
		}
		for _, rec := range flows {
			selected[flowKey{From: rec.FromAddress, To: rec.ToAddress, Asset: rec.Asset}] = rec
		}
	}

	result := make([]*entity.FlowRecord, 0, len(selected))
	for _, rec := range selected {
		result = append(result, copyFlow(rec))
	}
	sortByKey(result)
	return result, nil
}

// GetRecentFlows returns up to limit aggregates active since the given time, most recent first.
func (s *RelationshipStore) GetRecentFlows(_ context.Context, since time.Time, limit int) ([]*entity.FlowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*entity.FlowRecord
	for _, rec := range s.flows {
		if !rec.LastSeen.Before(since) {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].LastSeen.Equal(result[j].LastSeen) {
			return result[i].LastSeen.After(result[j].LastSeen)
		}
		return lessKey(result[i], result[j])
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	for i, rec := range result {
		result[i] = copyFlow(rec)
	}
	return result, nil
}

// Ping always succeeds.
func (s *RelationshipStore) Ping(_ context.Context) error {
	return nil
}

func copyFlow(rec *entity.FlowRecord) *entity.FlowRecord {
	c := *rec
	c.EventKeys = append([]string(nil), rec.EventKeys...)
	return &c
}

func sortByStrength(flows []*entity.FlowRecord) {
	sort.Slice(flows, func(i, j int) bool {
		if flows[i].TxCount != flows[j].TxCount {
			return flows[i].TxCount > flows[j].TxCount
		}
		if flows[i].Amount != flows[j].Amount {
			return flows[i].Amount > flows[j].Amount
		}
		return lessKey(flows[i], flows[j])
	})
}

func sortByKey(flows []*entity.FlowRecord) {
	sort.Slice(flows, func(i, j int) bool { return lessKey(flows[i], flows[j]) })
}

func lessKey(a, b *entity.FlowRecord) bool {
	if a.FromAddress != b.FromAddress {
		return a.FromAddress < b.FromAddress
	}
	if a.ToAddress != b.ToAddress {
		return a.ToAddress < b.ToAddress
	}
	return a.Asset < b.Asset
}
