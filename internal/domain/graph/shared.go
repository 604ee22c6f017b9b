package graph

import (
	"sync"
	"time"

	"wallet-cluster-analyzer/internal/domain/entity"
)

// SharedGraph is the cached, read-mostly network view. Readers hold the read
// lock for the duration of a pure computation; writers hold the write lock only
// while merging.
//
// While a hydration is in flight every applied event is also journaled, and
// Replace replays the journal into the hydrated graph. Hydrated edges carry
// their event keys, so an event that reached both the stores and the journal
// is merged once.
type SharedGraph struct {
	mu          sync.RWMutex
	graph       *WalletGraph
	refreshedAt time.Time

	loads        int
	journal      []entity.TransferEvent
	journalStart int
}

// LoadMark is the journal position at which a hydration started.
type LoadMark struct {
	seq int
}

// NewSharedGraph wraps g, or an empty graph when g is nil.
func NewSharedGraph(g *WalletGraph) *SharedGraph {
	if g == nil {
		g = New()
	}
	return &SharedGraph{graph: g}
}

// View runs fn against the current graph under the read lock. fn must not
// retain the graph or perform I/O.
func (s *SharedGraph) View(fn func(g *WalletGraph)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.graph)
}

// Snapshot returns a deep copy that callers may use without holding any lock.
func (s *SharedGraph) Snapshot() *WalletGraph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Clone()
}

// Apply merges transfer events and returns how many changed the graph.
func (s *SharedGraph) Apply(events []entity.TransferEvent) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loads > 0 {
		s.journal = append(s.journal, events...)
	}
	return mergeEvents(s.graph, events)
}

func mergeEvents(g *WalletGraph, events []entity.TransferEvent) int {
	applied := 0
	for i := range events {
		if g.MergeEdge(events[i].From, events[i].To, DeltaFromEvent(&events[i])) {
			applied++
		}
	}
	return applied
}

// MarkExchanges labels the given wallets as exchanges where present.
func (s *SharedGraph) MarkExchanges(addresses []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, addr := range addresses {
		s.graph.SetExchange(addr, true)
	}
}

// BeginLoad must be called before a hydration reads the stores. The returned
// mark is released by Replace or AbortLoad.
func (s *SharedGraph) BeginLoad() LoadMark {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return LoadMark{seq: s.journalStart + len(s.journal)}
}

// Replace swaps in a freshly hydrated graph after merging the events applied
// since mark was taken.
func (s *SharedGraph) Replace(g *WalletGraph, mark LoadMark) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if from := mark.seq - s.journalStart; from >= 0 && from < len(s.journal) {
		mergeEvents(g, s.journal[from:])
	}
	s.graph = g
	s.refreshedAt = time.Now()
	s.endLoad()
}

// AbortLoad releases the mark of a hydration that failed.
func (s *SharedGraph) AbortLoad(LoadMark) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLoad()
}

func (s *SharedGraph) endLoad() {
	if s.loads > 0 {
		s.loads--
	}
	if s.loads == 0 {
		s.journalStart += len(s.journal)
		s.journal = nil
	}
}

// RefreshedAt reports when the view was last replaced.
func (s *SharedGraph) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}
