package graph

import (
	"container/heap"
	"math"
)

// DefaultMaxAlternatePaths caps AllShortestPaths on dense subgraphs.
const DefaultMaxAlternatePaths = 4

const costEpsilon = 1e-9

// Path is a sequence of wallets joined by existing edges.
type Path struct {
	Wallets []string `json:"wallets"`
	Hops    int      `json:"hops"`
	Cost    float64  `json:"cost"`
	Volume  float64  `json:"volume"`
}

// EdgeWeight makes well-trodden edges cheaper: 1 / (1 + tx_count).
func EdgeWeight(e *Edge) float64 {
	return 1.0 / (1.0 + float64(e.TransactionCount))
}

// ShortestPath runs Dijkstra from -> to. Paths are ranked by hop count, then by
// summed EdgeWeight, then by higher aggregate volume, then by the lexicographically
// smaller wallet sequence, so the answer never depends on map order.
func ShortestPath(g *WalletGraph, from, to string) (Path, bool) {
	if !g.HasNode(from) || !g.HasNode(to) {
		return Path{}, false
	}
	if from == to {
		return Path{Wallets: []string{from}}, true
	}

	best := map[string]*pathLabel{from: {wallets: []string{from}}}
	settled := make(map[string]bool)
	pq := &labelQueue{}
	heap.Push(pq, best[from])

	for pq.Len() > 0 {
		current := heap.Pop(pq).(*pathLabel)
		node := current.last()
		if settled[node] || best[node] != current {
			continue
		}
		settled[node] = true
		if node == to {
			return current.toPath(), true
		}

		for _, e := range g.OutgoingEdges(node) {
			if settled[e.To] {
				continue
			}
			wallets := make([]string, len(current.wallets)+1)
			copy(wallets, current.wallets)
			wallets[len(current.wallets)] = e.To
			candidate := &pathLabel{
				wallets: wallets,
				hops:    current.hops + 1,
				cost:    current.cost + EdgeWeight(e),
				volume:  current.volume + e.Volume(),
			}
			if existing, ok := best[e.To]; !ok || candidate.less(existing) {
				best[e.To] = candidate
				heap.Push(pq, candidate)
			}
		}
	}
	return Path{}, false
}

// AllShortestPaths enumerates minimum-hop paths from -> to in lexicographic
// order, stopping after k paths (DefaultMaxAlternatePaths when k <= 0).
func AllShortestPaths(g *WalletGraph, from, to string, k int) []Path {
	if k <= 0 {
		k = DefaultMaxAlternatePaths
	}
	if !g.HasNode(from) || !g.HasNode(to) || from == to {
		return nil
	}

	dist := map[string]int{from: 0}
	queue := []string{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == to {
			break
		}
		for _, next := range g.Neighbors(current) {
			if _, seen := dist[next]; !seen {
				dist[next] = dist[current] + 1
				queue = append(queue, next)
			}
		}
	}
	target, ok := dist[to]
	if !ok {
		return nil
	}

	// Mark the wallets that lie on some shortest path by walking back from to.
	useful := map[string]bool{to: true}
	frontier := []string{to}
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		for _, prev := range g.Predecessors(current) {
			d, seen := dist[prev]
			if !seen || d != dist[current]-1 || useful[prev] {
				continue
			}
			useful[prev] = true
			frontier = append(frontier, prev)
		}
	}

	var paths []Path
	var walk func(node string, trail []string)
	walk = func(node string, trail []string) {
		if len(paths) >= k {
			return
		}
		if node == to {
			wallets := append([]string(nil), trail...)
			paths = append(paths, pathFromWallets(g, wallets))
			return
		}
		if dist[node] >= target {
			return
		}
		for _, next := range g.Neighbors(node) {
			if !useful[next] || dist[next] != dist[node]+1 {
				continue
			}
			walk(next, append(trail, next))
			if len(paths) >= k {
				return
			}
		}
	}
	walk(from, []string{from})
	return paths
}

func pathFromWallets(g *WalletGraph, wallets []string) Path {
	p := Path{Wallets: wallets, Hops: len(wallets) - 1}
	for i := 0; i+1 < len(wallets); i++ {
		if e, ok := g.Edge(wallets[i], wallets[i+1]); ok {
			p.Cost += EdgeWeight(e)
			p.Volume += e.Volume()
		}
	}
	return p
}

type pathLabel struct {
	wallets []string
	hops    int
	cost    float64
	volume  float64
	index   int
}

func (l *pathLabel) last() string { return l.wallets[len(l.wallets)-1] }

func (l *pathLabel) toPath() Path {
	return Path{Wallets: l.wallets, Hops: l.hops, Cost: l.cost, Volume: l.volume}
}

func (l *pathLabel) less(o *pathLabel) bool {
	if l.hops != o.hops {
		return l.hops < o.hops
	}
	if math.Abs(l.cost-o.cost) > costEpsilon {
		return l.cost < o.cost
	}
	if math.Abs(l.volume-o.volume) > costEpsilon {
		return l.volume > o.volume
	}
	return lexLess(l.wallets, o.wallets)
}

func lexLess(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

type labelQueue []*pathLabel

func (q labelQueue) Len() int           { return len(q) }
func (q labelQueue) Less(i, j int) bool { return q[i].less(q[j]) }
func (q labelQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *labelQueue) Push(x any) {
	item := x.(*pathLabel)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *labelQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
