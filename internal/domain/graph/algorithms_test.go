package graph

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flowGraph(flows ...[3]string) *WalletGraph {
	g := New()
	for _, f := range flows {
		var amount float64
		_, _ = fmt.Sscanf(f[2], "%g", &amount)
		g.MergeEdge(f[0], f[1], EdgeDelta{Amount: amount, Count: 1, FirstSeen: t0, LastSeen: t0})
	}
	return g
}

func TestShortestPathPrefersDirectEdge(t *testing.T) {
	g := New()
	g.MergeEdge("A", "B", EdgeDelta{Amount: 10, Count: 1})
	g.MergeEdge("A", "C", EdgeDelta{Amount: 10, Count: 5})
	g.MergeEdge("C", "B", EdgeDelta{Amount: 10, Count: 5})

	path, ok := ShortestPath(g, "A", "B")
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B"}, path.Wallets)
	assert.Equal(t, 1, path.Hops)
	assert.InDelta(t, 0.5, path.Cost, 1e-12)
}

func TestShortestPathTieBreaks(t *testing.T) {
	t.Run("lower weight wins", func(t *testing.T) {
		g := New()
		g.MergeEdge("A", "B", EdgeDelta{Amount: 1, Count: 1})
		g.MergeEdge("B", "D", EdgeDelta{Amount: 1, Count: 1})
		g.MergeEdge("A", "C", EdgeDelta{Amount: 1, Count: 9})
		g.MergeEdge("C", "D", EdgeDelta{Amount: 1, Count: 9})

		path, ok := ShortestPath(g, "A", "D")
		require.True(t, ok)
		assert.Equal(t, []string{"A", "C", "D"}, path.Wallets)
	})

	t.Run("higher volume wins on equal weight", func(t *testing.T) {
		g := New()
		g.MergeEdge("A", "B", EdgeDelta{Amount: 1, Count: 2})
		g.MergeEdge("B", "D", EdgeDelta{Amount: 1, Count: 2})
		g.MergeEdge("A", "C", EdgeDelta{Amount: 50, Count: 2})
		g.MergeEdge("C", "D", EdgeDelta{Amount: 50, Count: 2})

		path, ok := ShortestPath(g, "A", "D")
		require.True(t, ok)
		assert.Equal(t, []string{"A", "C", "D"}, path.Wallets)
		assert.Equal(t, 100.0, path.Volume)
	})

	t.Run("address order breaks remaining ties", func(t *testing.T) {
		g := New()
		g.MergeEdge("A", "C", EdgeDelta{Amount: 1, Count: 2})
		g.MergeEdge("C", "D", EdgeDelta{Amount: 1, Count: 2})
		g.MergeEdge("A", "B", EdgeDelta{Amount: 1, Count: 2})
		g.MergeEdge("B", "D", EdgeDelta{Amount: 1, Count: 2})

		path, ok := ShortestPath(g, "A", "D")
		require.True(t, ok)
		assert.Equal(t, []string{"A", "B", "D"}, path.Wallets)
	})
}

func TestShortestPathMissing(t *testing.T) {
	g := flowGraph([3]string{"A", "B", "1"})

	_, ok := ShortestPath(g, "B", "A")
	assert.False(t, ok)
	_, ok = ShortestPath(g, "A", "Z")
	assert.False(t, ok)
}

func TestAllShortestPaths(t *testing.T) {
	g := flowGraph(
		[3]string{"A", "C", "1"},
		[3]string{"C", "D", "1"},
		[3]string{"A", "B", "1"},
		[3]string{"B", "D", "1"},
		[3]string{"A", "E", "1"},
		[3]string{"E", "F", "1"},
		[3]string{"F", "D", "1"},
	)

	paths := AllShortestPaths(g, "A", "D", 0)
	require.Len(t, paths, 2)
	assert.Equal(t, []string{"A", "B", "D"}, paths[0].Wallets)
	assert.Equal(t, []string{"A", "C", "D"}, paths[1].Wallets)

	assert.Len(t, AllShortestPaths(g, "A", "D", 1), 1)
	assert.Empty(t, AllShortestPaths(g, "D", "A", 0))
}

func TestTarjanSCC(t *testing.T) {
	g := flowGraph(
		[3]string{"A", "B", "1"},
		[3]string{"B", "C", "1"},
		[3]string{"C", "A", "1"},
	)
	g.AddNode("D", false)

	assert.Equal(t, [][]string{{"A", "B", "C"}, {"D"}}, TarjanSCC(g))
	assert.Equal(t, [][]string{{"A", "B", "C"}}, StronglyConnectedClusters(g))
}

func TestFindCycles(t *testing.T) {
	g := flowGraph(
		[3]string{"A", "B", "1"},
		[3]string{"B", "A", "1"},
		[3]string{"B", "C", "1"},
		[3]string{"C", "A", "1"},
	)

	assert.Equal(t, [][]string{{"A", "B"}, {"A", "B", "C"}}, FindCycles(g, "A", 4, 0))
	assert.Equal(t, [][]string{{"A", "B"}}, FindCycles(g, "A", 2, 0))
	assert.Equal(t, [][]string{{"A", "B"}, {"A", "B", "C"}}, FindAllCycles(g, 4, 0))
	assert.InDelta(t, 3.0, CycleVolume(g, []string{"A", "B", "C"}), 1e-12)
	assert.Equal(t, int64(2), CycleTxCount(g, []string{"A", "B"}))
}

func TestFindAllCyclesTerminatesOnDenseGraph(t *testing.T) {
	g := New()
	wallets := []string{"W1", "W2", "W3", "W4", "W5", "W6", "W7", "W8"}
	for _, a := range wallets {
		for _, b := range wallets {
			g.MergeEdge(a, b, EdgeDelta{Amount: 1})
		}
	}

	cycles := FindAllCycles(g, 4, 0)
	seen := make(map[string]bool)
	for _, c := range cycles {
		assert.LessOrEqual(t, len(c), 4)
		for _, addr := range c[1:] {
			assert.Greater(t, addr, c[0])
		}
		key := strings.Join(c, ",")
		assert.False(t, seen[key], "duplicate cycle %s", key)
		seen[key] = true
	}
	// 8·7/2 two-cycles, 8·7·6/3 three-cycles, 8·7·6·5/4 four-cycles
	assert.Len(t, cycles, 28+112+420)

	assert.Len(t, FindAllCycles(g, 4, 10), 10)
}

func TestCentrality(t *testing.T) {
	g := flowGraph(
		[3]string{"A", "B", "1"},
		[3]string{"B", "C", "1"},
	)

	degree := DegreeCentrality(g)
	assert.Equal(t, 1.0, degree["B"])
	assert.Equal(t, 0.5, degree["A"])

	between, sampled := BetweennessCentrality(g, BetweennessOptions{})
	assert.False(t, sampled)
	assert.InDelta(t, 0.5, between["B"], 1e-12)
	assert.Equal(t, 0.0, between["A"])
}

func TestBetweennessSampling(t *testing.T) {
	g := New()
	for i := 0; i < 9; i++ {
		g.MergeEdge(fmt.Sprintf("N%d", i), fmt.Sprintf("N%d", i+1), EdgeDelta{Amount: 1})
	}
	opts := BetweennessOptions{SampleThreshold: 5, Pivots: 5}

	first, sampled := BetweennessCentrality(g, opts)
	second, _ := BetweennessCentrality(g, opts)
	assert.True(t, sampled)
	assert.Equal(t, first, second)
	assert.Greater(t, first["N5"], 0.0)
}
