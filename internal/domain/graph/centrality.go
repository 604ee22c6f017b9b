package graph

// BetweennessOptions controls when betweenness switches to pivot sampling.
type BetweennessOptions struct {
	// SampleThreshold is the node count above which pivots are sampled.
	// Zero disables sampling.
	SampleThreshold int
	// Pivots is the number of source wallets used when sampling.
	Pivots int
}

// DegreeCentrality returns each wallet's distinct counterparty count
// normalised by |V|-1.
func DegreeCentrality(g *WalletGraph) map[string]float64 {
	n := g.NodeCount()
	centrality := make(map[string]float64, n)
	if n < 2 {
		for _, addr := range g.Nodes() {
			centrality[addr] = 0
		}
		return centrality
	}
	for _, addr := range g.Nodes() {
		centrality[addr] = float64(g.Degree(addr)) / float64(n-1)
	}
	return centrality
}

// BetweennessCentrality computes normalised directed betweenness with Brandes'
// algorithm over unweighted shortest paths. Exact computation costs
// O(V·(V+E)); above opts.SampleThreshold it runs from evenly spaced pivots in
// address order and extrapolates, reporting sampled=true.
func BetweennessCentrality(g *WalletGraph, opts BetweennessOptions) (scores map[string]float64, sampled bool) {
	nodes := g.Nodes()
	n := len(nodes)
	scores = make(map[string]float64, n)
	for _, addr := range nodes {
		scores[addr] = 0
	}
	if n < 3 {
		return scores, false
	}

	sources := nodes
	if opts.SampleThreshold > 0 && n > opts.SampleThreshold && opts.Pivots > 0 && opts.Pivots < n {
		sources = evenlySpaced(nodes, opts.Pivots)
		sampled = true
	}

	for _, s := range sources {
		accumulateDependencies(g, s, scores)
	}

	scale := 1.0 / float64((n-1)*(n-2))
	if sampled {
		scale *= float64(n) / float64(len(sources))
	}
	for _, addr := range nodes {
		scores[addr] *= scale
	}
	return scores, sampled
}

func accumulateDependencies(g *WalletGraph, s string, scores map[string]float64) {
	var order []string
	preds := make(map[string][]string)
	sigma := map[string]float64{s: 1}
	dist := map[string]int{s: 0}

	queue := []string{s}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)
		for _, w := range g.Neighbors(v) {
			if _, seen := dist[w]; !seen {
				dist[w] = dist[v] + 1
				queue = append(queue, w)
			}
			if dist[w] == dist[v]+1 {
				sigma[w] += sigma[v]
				preds[w] = append(preds[w], v)
			}
		}
	}

	delta := make(map[string]float64, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		w := order[i]
		for _, v := range preds[w] {
			delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
		}
		if w != s {
			scores[w] += delta[w]
		}
	}
}

func evenlySpaced(nodes []string, k int) []string {
	picked := make([]string, 0, k)
	step := float64(len(nodes)) / float64(k)
	for i := 0; i < k; i++ {
		picked = append(picked, nodes[int(float64(i)*step)])
	}
	return picked
}
