package graph

const (
	// DefaultCycleDepth bounds cycle length in edges.
	DefaultCycleDepth = 4
	// DefaultMaxCycles bounds how many cycles one search may report.
	DefaultMaxCycles = 1000
)

// FindCycles enumerates simple directed cycles that pass through start, each
// returned as the wallet sequence beginning at start (the closing edge back to
// start is implied). The search is depth-limited so it terminates on any graph.
func FindCycles(g *WalletGraph, start string, maxDepth, maxCycles int) [][]string {
	if !g.HasNode(start) {
		return nil
	}
	maxDepth, maxCycles = cycleBounds(maxDepth, maxCycles)
	s := &cycleSearch{
		g:         g,
		start:     start,
		maxDepth:  maxDepth,
		maxCycles: maxCycles,
		onPath:    map[string]bool{start: true},
		allow:     func(string) bool { return true },
	}
	s.walk(start, []string{start})
	return s.cycles
}

// FindAllCycles enumerates simple cycles across the whole graph. Each cycle is
// reported once, rotated so that its smallest address comes first.
func FindAllCycles(g *WalletGraph, maxDepth, maxCycles int) [][]string {
	maxDepth, maxCycles = cycleBounds(maxDepth, maxCycles)
	var cycles [][]string
	for _, start := range g.Nodes() {
		if len(cycles) >= maxCycles {
			break
		}
		s := &cycleSearch{
			g:         g,
			start:     start,
			maxDepth:  maxDepth,
			maxCycles: maxCycles - len(cycles),
			onPath:    map[string]bool{start: true},
			allow:     func(addr string) bool { return addr > start },
		}
		s.walk(start, []string{start})
		cycles = append(cycles, s.cycles...)
	}
	return cycles
}

// CycleVolume sums the edge volume along a cycle, including the closing edge.
func CycleVolume(g *WalletGraph, cycle []string) float64 {
	var total float64
	for i := range cycle {
		if e, ok := g.Edge(cycle[i], cycle[(i+1)%len(cycle)]); ok {
			total += e.Volume()
		}
	}
	return total
}

// CycleTxCount sums transaction counts along a cycle, including the closing edge.
func CycleTxCount(g *WalletGraph, cycle []string) int64 {
	var total int64
	for i := range cycle {
		if e, ok := g.Edge(cycle[i], cycle[(i+1)%len(cycle)]); ok {
			total += e.TransactionCount
		}
	}
	return total
}

type cycleSearch struct {
	g         *WalletGraph
	start     string
	maxDepth  int
	maxCycles int
	onPath    map[string]bool
	allow     func(string) bool
	cycles    [][]string
}

func (s *cycleSearch) walk(node string, path []string) {
	for _, next := range s.g.Neighbors(node) {
		if len(s.cycles) >= s.maxCycles {
			return
		}
		if next == s.start {
			if len(path) >= 2 {
				s.cycles = append(s.cycles, append([]string(nil), path...))
			}
			continue
		}
		if s.onPath[next] || !s.allow(next) || len(path) >= s.maxDepth {
			continue
		}
		s.onPath[next] = true
		s.walk(next, append(path, next))
		s.onPath[next] = false
	}
}

func cycleBounds(maxDepth, maxCycles int) (int, int) {
	if maxDepth <= 0 {
		maxDepth = DefaultCycleDepth
	}
	if maxCycles <= 0 {
		maxCycles = DefaultMaxCycles
	}
	return maxDepth, maxCycles
}
