package graph

import "sort"

// TarjanSCC returns every strongly connected component of g, singletons
// included. Members are sorted; components are ordered largest first and then
// by their first address.
func TarjanSCC(g *WalletGraph) [][]string {
	t := &tarjan{
		g:       g,
		index:   make(map[string]int, g.NodeCount()),
		lowlink: make(map[string]int, g.NodeCount()),
		onStack: make(map[string]bool, g.NodeCount()),
	}
	for _, addr := range g.Nodes() {
		if _, visited := t.index[addr]; !visited {
			t.strongConnect(addr)
		}
	}
	sortComponents(t.components)
	return t.components
}

// StronglyConnectedClusters drops the trivial singleton components, which
// carry no evidence of circulation on their own.
func StronglyConnectedClusters(g *WalletGraph) [][]string {
	var clusters [][]string
	for _, component := range TarjanSCC(g) {
		if len(component) > 1 {
			clusters = append(clusters, component)
		}
	}
	return clusters
}

type tarjan struct {
	g          *WalletGraph
	counter    int
	index      map[string]int
	lowlink    map[string]int
	onStack    map[string]bool
	stack      []string
	components [][]string
}

func (t *tarjan) strongConnect(v string) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.g.Neighbors(v) {
		if _, visited := t.index[w]; !visited {
			t.strongConnect(w)
			t.lowlink[v] = min(t.lowlink[v], t.lowlink[w])
		} else if t.onStack[w] {
			t.lowlink[v] = min(t.lowlink[v], t.index[w])
		}
	}

	if t.lowlink[v] != t.index[v] {
		return
	}
	var component []string
	for {
		n := len(t.stack) - 1
		w := t.stack[n]
		t.stack = t.stack[:n]
		t.onStack[w] = false
		component = append(component, w)
		if w == v {
			break
		}
	}
	sort.Strings(component)
	t.components = append(t.components, component)
}

func sortComponents(components [][]string) {
	sort.SliceStable(components, func(i, j int) bool {
		if len(components[i]) != len(components[j]) {
			return len(components[i]) > len(components[j])
		}
		return components[i][0] < components[j][0]
	})
}
