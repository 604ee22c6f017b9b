package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/repository"
)

type transferKey struct {
	Signature  string
	EventIndex int
}

// TransferStore is an in-memory implementation of repository.TransferRepository.
type TransferStore struct {
	mu   sync.RWMutex
	data []*entity.TransferEvent
	keys map[transferKey]bool
}

// NewTransferStore creates a new in-memory transfer store.
func NewTransferStore() *TransferStore {
	return &TransferStore{
		data: make([]*entity.TransferEvent, 0),
		keys: make(map[transferKey]bool),
	}
}

// Compile-time interface check.
var _ repository.TransferRepository = (*TransferStore)(nil)

// InsertTransfers stores events, skipping already stored (signature, event_index) pairs.
func (s *TransferStore) InsertTransfers(_ context.Context, events []*entity.TransferEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, e := range events {
		if e == nil {
			return inserted, repository.ErrInvalidInput
		}
		key := transferKey{Signature: e.Signature, EventIndex: e.EventIndex}
		if s.keys[key] {
			continue
		}
		// Store a copy
		ev := *e
		s.data = append(s.data, &ev)
		s.keys[key] = true
		inserted++
	}
	return inserted, nil
}

// GetSharedInboundSenders returns wallets that sent to both a and b since the given time.
func (s *TransferStore) GetSharedInboundSenders(_ context.Context, a, b string, since time.Time) ([]entity.SharedCounterparty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	toA := make(map[string]int64)
	toB := make(map[string]int64)
	for _, e := range s.data {
		if e.BlockTime.Before(since) {
			continue
		}
		switch e.To {
		case a:
			toA[e.From]++
		case b:
			toB[e.From]++
		}
	}

	var shared []entity.SharedCounterparty
	for sender, countA := range toA {
		if sender == a || sender == b {
			continue
		}
		if countB, ok := toB[sender]; ok {
			shared = append(shared, entity.SharedCounterparty{Address: sender, EventsA: countA, EventsB: countB})
		}
	}
	sort.Slice(shared, func(i, j int) bool {
		ti, tj := shared[i].EventsA+shared[i].EventsB, shared[j].EventsA+shared[j].EventsB
		if ti != tj {
			return ti > tj
		}
		return shared[i].Address < shared[j].Address
	})
	return shared, nil
}

// GetTopCounterparties returns the most frequent send destinations of a wallet.
func (s *TransferStore) GetTopCounterparties(_ context.Context, wallet string, since time.Time, limit int) ([]entity.Counterparty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	for _, e := range s.data {
		if e.From == wallet && e.To != wallet && !e.BlockTime.Before(since) {
			counts[e.To]++
		}
	}

	result := make([]entity.Counterparty, 0, len(counts))
	for addr, n := range counts {
		result = append(result, entity.Counterparty{Address: addr, EventCount: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].EventCount != result[j].EventCount {
			return result[i].EventCount > result[j].EventCount
		}
		return result[i].Address < result[j].Address
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetBehavioralProfile summarises the wallet's transfers since the given time,
// skipping transfers with exclude.
func (s *TransferStore) GetBehavioralProfile(_ context.Context, wallet, exclude string, since time.Time) (*entity.BehavioralProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile := &entity.BehavioralProfile{Address: wallet}
	var total float64
	var hours [24]float64
	for _, e := range s.data {
		if (e.From != wallet && e.To != wallet) || e.BlockTime.Before(since) {
			continue
		}
		if exclude != "" && (e.From == exclude || e.To == exclude) {
			continue
		}
		profile.TxCount++
		total += e.Amount
		hours[e.BlockTime.UTC().Hour()]++
		if profile.FirstActivity.IsZero() || e.BlockTime.Before(profile.FirstActivity) {
			profile.FirstActivity = e.BlockTime
		}
		if e.BlockTime.After(profile.LastActivity) {
			profile.LastActivity = e.BlockTime
		}
	}
	if profile.TxCount == 0 {
		return nil, repository.ErrNotFound
	}

	profile.AvgAmount = total / float64(profile.TxCount)
	profile.TxPerDay = entity.ActivityRate(profile.TxCount, profile.FirstActivity, profile.LastActivity)
	profile.HourHistogram = entity.NormalizeHistogram(hours)
	return profile, nil
}

// GetTemporalOverlap compares the active buckets and slots of two wallets,
// ignoring transfers between them.
func (s *TransferStore) GetTemporalOverlap(_ context.Context, a, b string, since time.Time, bucket time.Duration) (*entity.TemporalOverlap, error) {
	if bucket < time.Second {
		return nil, repository.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	bucketsA, bucketsB := make(map[int64]bool), make(map[int64]bool)
	slotsA, slotsB := make(map[uint64]bool), make(map[uint64]bool)
	for _, e := range s.data {
		if e.BlockTime.Before(since) || betweenPair(e, a, b) {
			continue
		}
		b64 := e.BlockTime.Unix() / int64(bucket/time.Second)
		if e.From == a || e.To == a {
			bucketsA[b64] = true
			slotsA[e.Slot] = true
		}
		if e.From == b || e.To == b {
			bucketsB[b64] = true
			slotsB[e.Slot] = true
		}
	}

	overlap := &entity.TemporalOverlap{
		ActiveBucketsA: int64(len(bucketsA)),
		ActiveBucketsB: int64(len(bucketsB)),
	}
	for k := range bucketsA {
		if bucketsB[k] {
			overlap.SharedBuckets++
		}
	}
	for slot := range slotsA {
		if slotsB[slot] {
			overlap.SameSlotCount++
		}
	}
	return overlap, nil
}

func betweenPair(e *entity.TransferEvent, a, b string) bool {
	return (e.From == a && e.To == b) || (e.From == b && e.To == a)
}

// Ping always succeeds.
func (s *TransferStore) Ping(_ context.Context) error {
	return nil
}
