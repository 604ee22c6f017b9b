// Package graph holds the in-memory wallet relationship graph and the pure
// algorithms that run over it. Nothing in this package performs I/O.
package graph

import (
	"math"
	"sort"
	"time"

	"wallet-cluster-analyzer/internal/domain/entity"
)

// WalletNode is a wallet in the graph. RiskScore and Role are derived from the
// current edges every time the node is read.
type WalletNode struct {
	Address          string            `json:"address"`
	Balance          float64           `json:"balance"`
	TransactionCount int64             `json:"transaction_count"`
	RiskScore        float64           `json:"risk_score"`
	IsExchange       bool              `json:"is_exchange"`
	Role             entity.WalletRole `json:"role"`
}

// Edge is the aggregate of every transfer from one wallet to another.
type Edge struct {
	From             string             `json:"from"`
	To               string             `json:"to"`
	SolAmount        float64            `json:"sol_amount"`
	TokenAmounts     map[string]float64 `json:"token_amounts"`
	TransactionCount int64              `json:"transaction_count"`
	FirstSeen        time.Time          `json:"first_seen"`
	LastSeen         time.Time          `json:"last_seen"`
	IsDirect         bool               `json:"is_direct"`
	Signatures       []string           `json:"signatures"`

	seen map[string]struct{}
}

// Volume is the SOL amount plus every token amount, summed in mint order so the
// result does not depend on map iteration.
func (e *Edge) Volume() float64 {
	total := e.SolAmount
	for _, mint := range e.Mints() {
		total += e.TokenAmounts[mint]
	}
	return total
}

// Mints returns the token mints seen on the edge in sorted order.
func (e *Edge) Mints() []string {
	mints := make([]string, 0, len(e.TokenAmounts))
	for mint := range e.TokenAmounts {
		mints = append(mints, mint)
	}
	sort.Strings(mints)
	return mints
}

// EdgeDelta is one increment merged into an edge. A non-empty EventKey makes
// the merge idempotent: the same key is applied at most once per edge.
// EventKeys lists events already folded into an aggregate delta; they are
// recorded on the edge so a later delta carrying one of them is ignored.
type EdgeDelta struct {
	Asset     string
	Amount    float64
	Count     int64
	FirstSeen time.Time
	LastSeen  time.Time
	EventKey  string
	EventKeys []string
}

// DeltaFromEvent converts a parsed transfer into an edge delta.
func DeltaFromEvent(ev *entity.TransferEvent) EdgeDelta {
	return EdgeDelta{
		Asset:     ev.Asset(),
		Amount:    ev.Amount,
		Count:     1,
		FirstSeen: ev.BlockTime,
		LastSeen:  ev.BlockTime,
		EventKey:  ev.Key(),
	}
}

// DeltaFromFlow converts a stored aggregate into an edge delta.
func DeltaFromFlow(rec *entity.FlowRecord) EdgeDelta {
	return EdgeDelta{
		Asset:     rec.Asset,
		Amount:    rec.Amount,
		Count:     rec.TxCount,
		FirstSeen: rec.FirstSeen,
		LastSeen:  rec.LastSeen,
		EventKeys: rec.EventKeys,
	}
}

type nodeState struct {
	address    string
	isExchange bool
	txCount    int64
	solIn      float64
	solOut     float64
}

// WalletGraph is a directed graph of wallets with forward and reverse indices.
// It is not safe for concurrent use; see SharedGraph.
type WalletGraph struct {
	nodes     map[string]*nodeState
	out       map[string]map[string]*Edge
	in        map[string]map[string]*Edge
	edgeCount int
	risk      RiskConfig
}

// Option configures a WalletGraph.
type Option func(*WalletGraph)

// WithRiskConfig sets the thresholds used to derive node risk scores.
func WithRiskConfig(cfg RiskConfig) Option {
	return func(g *WalletGraph) {
		g.risk = cfg
	}
}

// New creates an empty wallet graph.
func New(opts ...Option) *WalletGraph {
	g := &WalletGraph{
		nodes: make(map[string]*nodeState),
		out:   make(map[string]map[string]*Edge),
		in:    make(map[string]map[string]*Edge),
		risk:  DefaultRiskConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddNode ensures the wallet exists. The exchange flag is sticky once set.
func (g *WalletGraph) AddNode(address string, isExchange bool) {
	n := g.ensureNode(address)
	n.isExchange = n.isExchange || isExchange
}

// SetExchange marks a wallet as an exchange if it is present in the graph.
func (g *WalletGraph) SetExchange(address string, isExchange bool) {
	if n, ok := g.nodes[address]; ok {
		n.isExchange = isExchange
	}
}

// HasNode reports whether the wallet is in the graph.
func (g *WalletGraph) HasNode(address string) bool {
	_, ok := g.nodes[address]
	return ok
}

// MergeEdge folds a delta into the (from, to) edge. It returns false when the
// delta was ignored: self-loops, empty addresses or an already applied event key.
func (g *WalletGraph) MergeEdge(from, to string, d EdgeDelta) bool {
	if from == "" || to == "" || from == to {
		return false
	}

	edge := g.out[from][to]
	if edge != nil && d.EventKey != "" {
		if _, dup := edge.seen[d.EventKey]; dup {
			return false
		}
	}

	src := g.ensureNode(from)
	dst := g.ensureNode(to)

	if edge == nil {
		edge = &Edge{
			From:         from,
			To:           to,
			TokenAmounts: make(map[string]float64),
			FirstSeen:    d.FirstSeen,
			LastSeen:     d.LastSeen,
			IsDirect:     true,
			seen:         make(map[string]struct{}),
		}
		if g.out[from] == nil {
			g.out[from] = make(map[string]*Edge)
		}
		if g.in[to] == nil {
			g.in[to] = make(map[string]*Edge)
		}
		g.out[from][to] = edge
		g.in[to][from] = edge
		g.edgeCount++
	}

	count := d.Count
	if count <= 0 {
		count = 1
	}

	if d.Asset == "" || d.Asset == entity.NativeAsset {
		edge.SolAmount += d.Amount
		src.solOut += d.Amount
		dst.solIn += d.Amount
	} else {
		edge.TokenAmounts[d.Asset] += d.Amount
	}
	edge.TransactionCount += count
	src.txCount += count
	dst.txCount += count

	if !d.FirstSeen.IsZero() && (edge.FirstSeen.IsZero() || d.FirstSeen.Before(edge.FirstSeen)) {
		edge.FirstSeen = d.FirstSeen
	}
	if d.LastSeen.After(edge.LastSeen) {
		edge.LastSeen = d.LastSeen
	}

	if d.EventKey != "" {
		edge.remember(d.EventKey)
	}
	for _, key := range d.EventKeys {
		edge.remember(key)
	}
	return true
}

func (e *Edge) remember(key string) {
	if _, dup := e.seen[key]; dup || key == "" {
		return
	}
	e.seen[key] = struct{}{}
	i := sort.SearchStrings(e.Signatures, key)
	e.Signatures = append(e.Signatures, "")
	copy(e.Signatures[i+1:], e.Signatures[i:])
	e.Signatures[i] = key
}

// Node returns a snapshot of the wallet with its derived fields filled in.
func (g *WalletGraph) Node(address string) (WalletNode, bool) {
	n, ok := g.nodes[address]
	if !ok {
		return WalletNode{}, false
	}
	return WalletNode{
		Address:          n.address,
		Balance:          n.solIn - n.solOut,
		TransactionCount: n.txCount,
		RiskScore:        RiskScore(g, address, g.risk),
		IsExchange:       n.isExchange,
		Role:             g.Role(address),
	}, true
}

// IsExchange reports whether the wallet is labeled as an exchange.
func (g *WalletGraph) IsExchange(address string) bool {
	n, ok := g.nodes[address]
	return ok && n.isExchange
}

// Edge returns the aggregated edge from -> to.
func (g *WalletGraph) Edge(from, to string) (*Edge, bool) {
	e, ok := g.out[from][to]
	return e, ok
}

// Nodes returns every wallet address in sorted order.
func (g *WalletGraph) Nodes() []string {
	addrs := make([]string, 0, len(g.nodes))
	for addr := range g.nodes {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

// Edges returns every edge ordered by (from, to).
func (g *WalletGraph) Edges() []*Edge {
	edges := make([]*Edge, 0, g.edgeCount)
	for _, from := range g.Nodes() {
		edges = append(edges, g.OutgoingEdges(from)...)
	}
	return edges
}

// NodeCount returns |V|.
func (g *WalletGraph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns |E|.
func (g *WalletGraph) EdgeCount() int { return g.edgeCount }

// Neighbors returns the wallets this wallet sent to, sorted.
func (g *WalletGraph) Neighbors(address string) []string {
	return sortedKeys(g.out[address])
}

// Predecessors returns the wallets that sent to this wallet, sorted.
func (g *WalletGraph) Predecessors(address string) []string {
	return sortedKeys(g.in[address])
}

// UndirectedNeighbors returns the union of neighbors and predecessors, sorted.
func (g *WalletGraph) UndirectedNeighbors(address string) []string {
	set := make(map[string]struct{}, len(g.out[address])+len(g.in[address]))
	for to := range g.out[address] {
		set[to] = struct{}{}
	}
	for from := range g.in[address] {
		set[from] = struct{}{}
	}
	addrs := make([]string, 0, len(set))
	for addr := range set {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

// OutgoingEdges returns the edges leaving the wallet ordered by destination.
func (g *WalletGraph) OutgoingEdges(address string) []*Edge {
	adj := g.out[address]
	edges := make([]*Edge, 0, len(adj))
	for _, to := range sortedKeys(adj) {
		edges = append(edges, adj[to])
	}
	return edges
}

// IncomingEdges returns the edges entering the wallet ordered by source.
func (g *WalletGraph) IncomingEdges(address string) []*Edge {
	adj := g.in[address]
	edges := make([]*Edge, 0, len(adj))
	for _, from := range sortedKeys(adj) {
		edges = append(edges, adj[from])
	}
	return edges
}

// OutgoingVolume sums the volume of every outgoing edge.
func (g *WalletGraph) OutgoingVolume(address string) float64 {
	total := 0.0
	for _, e := range g.OutgoingEdges(address) {
		total += e.Volume()
	}
	return total
}

// IncomingVolume sums the volume of every incoming edge.
func (g *WalletGraph) IncomingVolume(address string) float64 {
	total := 0.0
	for _, e := range g.IncomingEdges(address) {
		total += e.Volume()
	}
	return total
}

// OutDegree returns the number of distinct destinations.
func (g *WalletGraph) OutDegree(address string) int { return len(g.out[address]) }

// InDegree returns the number of distinct sources.
func (g *WalletGraph) InDegree(address string) int { return len(g.in[address]) }

// Degree returns the number of distinct counterparties in either direction.
func (g *WalletGraph) Degree(address string) int {
	return len(g.UndirectedNeighbors(address))
}

// HasPath reports whether to is reachable from from along edge direction.
func (g *WalletGraph) HasPath(from, to string) bool {
	if !g.HasNode(from) || !g.HasNode(to) {
		return false
	}
	if from == to {
		return true
	}
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for next := range g.out[current] {
			if next == to {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// ReachableSet returns every wallet reachable from start along edge direction
// within maxDepth hops (unbounded when maxDepth <= 0), sorted, start excluded.
func (g *WalletGraph) ReachableSet(start string, maxDepth int) []string {
	if !g.HasNode(start) {
		return nil
	}
	depth := map[string]int{start: 0}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if maxDepth > 0 && depth[current] >= maxDepth {
			continue
		}
		for _, next := range g.Neighbors(current) {
			if _, seen := depth[next]; seen {
				continue
			}
			depth[next] = depth[current] + 1
			queue = append(queue, next)
		}
	}
	delete(depth, start)
	return sortedKeys(depth)
}

// ConnectedComponents returns the weakly connected components, each sorted,
// largest first and then by first address.
func (g *WalletGraph) ConnectedComponents() [][]string {
	visited := make(map[string]bool, len(g.nodes))
	var components [][]string
	for _, addr := range g.Nodes() {
		if visited[addr] {
			continue
		}
		visited[addr] = true
		component := []string{addr}
		queue := []string{addr}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			for _, next := range g.UndirectedNeighbors(current) {
				if !visited[next] {
					visited[next] = true
					component = append(component, next)
					queue = append(queue, next)
				}
			}
		}
		sort.Strings(component)
		components = append(components, component)
	}
	sort.SliceStable(components, func(i, j int) bool {
		if len(components[i]) != len(components[j]) {
			return len(components[i]) > len(components[j])
		}
		return components[i][0] < components[j][0]
	})
	return components
}

// Density returns |E| / (|V| * (|V|-1)).
func (g *WalletGraph) Density() float64 {
	v := float64(len(g.nodes))
	if v < 2 {
		return 0
	}
	return float64(g.edgeCount) / (v * (v - 1))
}

// Role derives the structural role of a wallet from flow imbalance and degree.
func (g *WalletGraph) Role(address string) entity.WalletRole {
	n, ok := g.nodes[address]
	if !ok {
		return entity.RoleIntermediary
	}
	if n.isExchange {
		return entity.RoleExchange
	}
	inVol, outVol := g.IncomingVolume(address), g.OutgoingVolume(address)
	inDeg, outDeg := len(g.in[address]), len(g.out[address])
	switch {
	case outDeg == 0 && inDeg > 0:
		return entity.RoleSink
	case inDeg == 0 && outDeg > 0:
		return entity.RoleSource
	}
	if imbalance(inVol, outVol) > g.risk.ImbalanceRatio {
		if outVol > inVol {
			return entity.RoleSource
		}
		return entity.RoleSink
	}
	return entity.RoleIntermediary
}

// Subgraph returns the graph induced by the given wallets.
func (g *WalletGraph) Subgraph(addresses []string) *WalletGraph {
	keep := make(map[string]bool, len(addresses))
	for _, addr := range addresses {
		keep[addr] = true
	}
	sub := New(WithRiskConfig(g.risk))
	for _, addr := range addresses {
		if n, ok := g.nodes[addr]; ok {
			sub.AddNode(addr, n.isExchange)
		}
	}
	for _, addr := range sortedKeys(keep) {
		for _, e := range g.OutgoingEdges(addr) {
			if keep[e.To] {
				sub.copyEdge(e)
			}
		}
	}
	return sub
}

// Clone returns a deep copy of the graph.
func (g *WalletGraph) Clone() *WalletGraph {
	return g.Subgraph(g.Nodes())
}

func (g *WalletGraph) copyEdge(e *Edge) {
	g.MergeEdge(e.From, e.To, EdgeDelta{
		Asset:     entity.NativeAsset,
		Amount:    e.SolAmount,
		Count:     e.TransactionCount,
		FirstSeen: e.FirstSeen,
		LastSeen:  e.LastSeen,
	})
	copied := g.out[e.From][e.To]
	for _, mint := range e.Mints() {
		copied.TokenAmounts[mint] = e.TokenAmounts[mint]
	}
	copied.IsDirect = e.IsDirect
	copied.Signatures = append([]string(nil), e.Signatures...)
	for _, key := range e.Signatures {
		copied.seen[key] = struct{}{}
	}
}

func (g *WalletGraph) ensureNode(address string) *nodeState {
	n, ok := g.nodes[address]
	if !ok {
		n = &nodeState{address: address}
		g.nodes[address] = n
	}
	return n
}

func imbalance(in, out float64) float64 {
	peak := in
	if out > peak {
		peak = out
	}
	if peak == 0 {
		return 0
	}
	return math.Abs(in-out) / peak
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
