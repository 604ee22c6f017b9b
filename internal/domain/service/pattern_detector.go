package service

import (
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/graph"
	"wallet-cluster-analyzer/internal/infrastructure/logger"
)

const (
	washDirectConfidence    = 0.70
	washSymmetricConfidence = 0.85
	washTriangleConfidence  = 0.80
	washMultiHopDecay       = 0.85
)

// PatternDetector flags wash trading, pump-and-dump, circular flows and
// coordinated activity over a graph snapshot. All methods are pure.
type PatternDetector struct {
	config PatternConfig
	logger *logger.Logger
}

// NewPatternDetector creates a new pattern detector
func NewPatternDetector(config PatternConfig, logger *logger.Logger) *PatternDetector {
	return &PatternDetector{
		config: config,
		logger: logger.WithComponent("pattern-detector"),
	}
}

// DetectWashTrading classifies every bounded cycle through wallet
func (d *PatternDetector) DetectWashTrading(g *graph.WalletGraph, wallet string) []entity.WashTradingPattern {
	cycles := graph.FindCycles(g, wallet, d.config.CycleMaxDepth, d.config.MaxCycles)
	patterns := make([]entity.WashTradingPattern, 0, len(cycles))
	for _, cycle := range cycles {
		patterns = append(patterns, d.classifyCycle(g, cycle))
	}
	sortWashPatterns(patterns)
	return patterns
}

func (d *PatternDetector) classifyCycle(g *graph.WalletGraph, cycle []string) entity.WashTradingPattern {
	p := entity.WashTradingPattern{
		Wallets:  cycle,
		CycleLen: len(cycle),
		TxCount:  graph.CycleTxCount(g, cycle),
		Volume:   graph.CycleVolume(g, cycle),
	}
	switch {
	case len(cycle) == 2:
		p.PatternType = entity.WashDirectBackAndForth
		p.Confidence = washDirectConfidence
		out, _ := g.Edge(cycle[0], cycle[1])
		back, _ := g.Edge(cycle[1], cycle[0])
		if out != nil && back != nil && volumesMatch(out.Volume(), back.Volume(), d.config.VolumeMatchTolerance) {
			p.Confidence = washSymmetricConfidence
		}
	case len(cycle) == 3:
		p.PatternType = entity.WashCircularThreeWay
		p.Confidence = washTriangleConfidence
	default:
		p.PatternType = entity.WashMultiHop
		p.Confidence = cycleConfidence(len(cycle))
	}
	return p
}

// cycleConfidence is the structural confidence of a cycle of n hops with no
// volume information
func cycleConfidence(n int) float64 {
	switch {
	case n <= 2:
		return washDirectConfidence
	case n == 3:
		return washTriangleConfidence
	default:
		return washDirectConfidence * math.Pow(washMultiHopDecay, float64(n-4))
	}
}

func volumesMatch(a, b, tolerance float64) bool {
	peak := math.Max(a, b)
	if peak == 0 {
		return false
	}
	return math.Abs(a-b)/peak <= tolerance
}

// DetectPumpDump flags non-exchange wallets whose received and sent volume
// inside one window ending at their latest activity both exceed the
// accumulation and distribution thresholds.
//
// Edges are aggregates, so the volume inside the window is estimated: an edge
// contributes the share of its first-to-last-seen span that overlaps the
// window, as if its transfers were spread evenly over that span. Edges whose
// transfers all fall inside the window contribute exactly.
func (d *PatternDetector) DetectPumpDump(g *graph.WalletGraph) []entity.PumpDumpIndicator {
	var indicators []entity.PumpDumpIndicator
	for _, addr := range g.Nodes() {
		if g.IsExchange(addr) {
			continue
		}
		incoming, outgoing := g.IncomingEdges(addr), g.OutgoingEdges(addr)
		if len(incoming) == 0 || len(outgoing) == 0 {
			continue
		}

		var anchor time.Time
		for _, e := range append(append([]*graph.Edge(nil), incoming...), outgoing...) {
			if e.LastSeen.After(anchor) {
				anchor = e.LastSeen
			}
		}
		windowStart := anchor.Add(-d.config.PumpWindow)
		share := func(e *graph.Edge) float64 {
			if anchor.IsZero() {
				return 1
			}
			return windowShare(e, windowStart)
		}

		connected := make(map[string]struct{})
		var accumulation, distribution float64
		for _, e := range incoming {
			if f := share(e); f > 0 {
				accumulation += f * e.Volume()
				connected[e.From] = struct{}{}
			}
		}
		for _, e := range outgoing {
			if f := share(e); f > 0 {
				distribution += f * e.Volume()
				connected[e.To] = struct{}{}
			}
		}
		if accumulation < d.config.PumpAccumulationThreshold || distribution < d.config.PumpDistributionThreshold {
			continue
		}

		indicators = append(indicators, entity.PumpDumpIndicator{
			Coordinator:        addr,
			AccumulationVolume: accumulation,
			DistributionVolume: distribution,
			ConnectedCount:     len(connected),
			RiskScore:          math.Min(1, float64(len(connected))/d.config.PumpNormalization),
		})
	}
	sort.SliceStable(indicators, func(i, j int) bool {
		if indicators[i].RiskScore != indicators[j].RiskScore {
			return indicators[i].RiskScore > indicators[j].RiskScore
		}
		return indicators[i].Coordinator < indicators[j].Coordinator
	})
	return indicators
}

// windowShare is the fraction of the edge's first-to-last-seen span that lies
// at or after start. Undated and single-instant edges count fully when their
// last transfer is inside the window.
func windowShare(e *graph.Edge, start time.Time) float64 {
	if e.LastSeen.Before(start) {
		return 0
	}
	span := e.LastSeen.Sub(e.FirstSeen)
	if e.FirstSeen.IsZero() || !e.FirstSeen.Before(start) || span <= 0 {
		return 1
	}
	return float64(e.LastSeen.Sub(start)) / float64(span)
}

// DetectCircularFlows enumerates cycles across the whole graph
func (d *PatternDetector) DetectCircularFlows(g *graph.WalletGraph) []entity.CircularFlow {
	return circularFlows(g, graph.FindAllCycles(g, d.config.CycleMaxDepth, d.config.MaxCycles))
}

func circularFlows(g *graph.WalletGraph, cycles [][]string) []entity.CircularFlow {
	flows := make([]entity.CircularFlow, 0, len(cycles))
	for _, cycle := range cycles {
		flows = append(flows, entity.CircularFlow{
			Path:   cycle,
			Volume: graph.CycleVolume(g, cycle),
			Hops:   len(cycle),
		})
	}
	sort.SliceStable(flows, func(i, j int) bool {
		if flows[i].Volume != flows[j].Volume {
			return flows[i].Volume > flows[j].Volume
		}
		return strings.Join(flows[i].Path, ",") < strings.Join(flows[j].Path, ",")
	})
	return flows
}

type activityProfile struct {
	address        string
	start, end     time.Time
	counterparties map[string]struct{}
	tokens         map[string]struct{}
}

// DetectCoordinatedActivity groups wallets whose active windows, counterparties
// and traded tokens line up. Pairs scoring at least CoordinationThreshold are
// joined with union-find.
func (d *PatternDetector) DetectCoordinatedActivity(g *graph.WalletGraph) []entity.CoordinatedActivity {
	profiles := d.activityProfiles(g)
	if len(profiles) < 2 {
		return nil
	}

	uf := newUnionFind(len(profiles))
	type pairScore struct {
		a, b  int
		score float64
	}
	var pairs []pairScore
	for i := 0; i < len(profiles); i++ {
		for j := i + 1; j < len(profiles); j++ {
			score := pairCorrelation(profiles[i], profiles[j])
			if score >= d.config.CoordinationThreshold {
				uf.union(i, j)
				pairs = append(pairs, pairScore{a: i, b: j, score: score})
			}
		}
	}

	scoreSum := make(map[int]float64)
	scoreCount := make(map[int]int)
	for _, p := range pairs {
		root := uf.find(p.a)
		scoreSum[root] += p.score
		scoreCount[root]++
	}

	members := make(map[int][]int)
	for i := range profiles {
		root := uf.find(i)
		members[root] = append(members[root], i)
	}

	var groups []entity.CoordinatedActivity
	for root, idx := range members {
		if len(idx) < 2 {
			continue
		}
		group := entity.CoordinatedActivity{
			CorrelationScore: scoreSum[root] / float64(scoreCount[root]),
		}
		for _, i := range idx {
			p := profiles[i]
			group.Wallets = append(group.Wallets, p.address)
			if group.TimeWindow.Start.IsZero() || p.start.Before(group.TimeWindow.Start) {
				group.TimeWindow.Start = p.start
			}
			if p.end.After(group.TimeWindow.End) {
				group.TimeWindow.End = p.end
			}
		}
		sort.Strings(group.Wallets)
		groups = append(groups, group)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].CorrelationScore != groups[j].CorrelationScore {
			return groups[i].CorrelationScore > groups[j].CorrelationScore
		}
		return groups[i].Wallets[0] < groups[j].Wallets[0]
	})
	return groups
}

// activityProfiles builds one profile per active non-exchange wallet, keeping
// the CoordinationMaxNodes most active ones
func (d *PatternDetector) activityProfiles(g *graph.WalletGraph) []*activityProfile {
	type ranked struct {
		address string
		txCount int64
	}
	var active []ranked
	for _, addr := range g.Nodes() {
		if g.IsExchange(addr) || g.Degree(addr) == 0 {
			continue
		}
		node, _ := g.Node(addr)
		active = append(active, ranked{address: addr, txCount: node.TransactionCount})
	}
	if len(active) > d.config.CoordinationMaxNodes {
		sort.SliceStable(active, func(i, j int) bool {
			if active[i].txCount != active[j].txCount {
				return active[i].txCount > active[j].txCount
			}
			return active[i].address < active[j].address
		})
		active = active[:d.config.CoordinationMaxNodes]
		sort.Slice(active, func(i, j int) bool { return active[i].address < active[j].address })
	}

	profiles := make([]*activityProfile, 0, len(active))
	for _, a := range active {
		p := &activityProfile{
			address:        a.address,
			counterparties: make(map[string]struct{}),
			tokens:         make(map[string]struct{}),
		}
		edges := append(g.OutgoingEdges(a.address), g.IncomingEdges(a.address)...)
		for _, e := range edges {
			peer := e.To
			if peer == a.address {
				peer = e.From
			}
			p.counterparties[peer] = struct{}{}
			if e.SolAmount > 0 {
				p.tokens[entity.NativeAsset] = struct{}{}
			}
			for _, mint := range e.Mints() {
				p.tokens[mint] = struct{}{}
			}
			if !e.FirstSeen.IsZero() && (p.start.IsZero() || e.FirstSeen.Before(p.start)) {
				p.start = e.FirstSeen
			}
			if e.LastSeen.After(p.end) {
				p.end = e.LastSeen
			}
		}
		profiles = append(profiles, p)
	}
	return profiles
}

// pairCorrelation weighs active-window overlap 50%, shared counterparties 30%
// and shared tokens 20%. The two wallets are left out of each other's
// counterparty sets, and pairs without a shared counterparty score zero.
func pairCorrelation(a, b *activityProfile) float64 {
	counterparties := jaccard(a.counterparties, b.counterparties, a.address, b.address)
	if counterparties == 0 {
		return 0
	}
	window := windowOverlap(a.start, a.end, b.start, b.end)
	tokens := jaccard(a.tokens, b.tokens)
	return 0.5*window + 0.3*counterparties + 0.2*tokens
}

func windowOverlap(aStart, aEnd, bStart, bEnd time.Time) float64 {
	if aStart.IsZero() || bStart.IsZero() {
		return 0
	}
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if end.Before(start) {
		return 0
	}
	unionStart := aStart
	if bStart.Before(unionStart) {
		unionStart = bStart
	}
	unionEnd := aEnd
	if bEnd.After(unionEnd) {
		unionEnd = bEnd
	}
	union := unionEnd.Sub(unionStart)
	if union <= 0 {
		return 1
	}
	return float64(end.Sub(start)) / float64(union)
}

func jaccard(a, b map[string]struct{}, exclude ...string) float64 {
	skip := func(k string) bool {
		for _, x := range exclude {
			if k == x {
				return true
			}
		}
		return false
	}
	var inter, union int
	for k := range a {
		if skip(k) {
			continue
		}
		union++
		if _, ok := b[k]; ok {
			inter++
		}
	}
	for k := range b {
		if skip(k) {
			continue
		}
		if _, ok := a[k]; !ok {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Analyze runs every detector. Wash trading is anchored on focus wallets when
// given and otherwise derived from the network-wide cycles.
func (d *PatternDetector) Analyze(g *graph.WalletGraph, focus []string) entity.PatternAnalysisResult {
	networkCycles := graph.FindAllCycles(g, d.config.CycleMaxDepth, d.config.MaxCycles)

	var wash []entity.WashTradingPattern
	if len(focus) == 0 {
		for _, cycle := range networkCycles {
			wash = append(wash, d.classifyCycle(g, cycle))
		}
	} else {
		seen := make(map[string]bool)
		for _, wallet := range focus {
			for _, p := range d.DetectWashTrading(g, wallet) {
				key := strings.Join(canonicalRotation(p.Wallets), ",")
				if seen[key] {
					continue
				}
				seen[key] = true
				wash = append(wash, p)
			}
		}
	}
	sortWashPatterns(wash)

	result := entity.PatternAnalysisResult{
		WashTrading:         wash,
		CircularFlows:       circularFlows(g, networkCycles),
		PumpDump:            d.DetectPumpDump(g),
		CoordinatedActivity: d.DetectCoordinatedActivity(g),
	}

	var confidences []float64
	var points float64
	if len(result.WashTrading) > 0 {
		var sum float64
		for _, p := range result.WashTrading {
			sum += p.Confidence
		}
		points += d.config.WashWeight * sum
		confidences = append(confidences, sum/float64(len(result.WashTrading)))
	}
	if len(result.CircularFlows) > 0 {
		var sum float64
		for _, f := range result.CircularFlows {
			sum += cycleConfidence(f.Hops)
		}
		points += d.config.CircularWeight * float64(len(result.CircularFlows))
		confidences = append(confidences, sum/float64(len(result.CircularFlows)))
	}
	if len(result.PumpDump) > 0 {
		var sum float64
		for _, p := range result.PumpDump {
			sum += p.RiskScore
		}
		points += d.config.PumpWeight * sum
		confidences = append(confidences, sum/float64(len(result.PumpDump)))
	}
	if len(result.CoordinatedActivity) > 0 {
		var sum float64
		for _, c := range result.CoordinatedActivity {
			sum += c.CorrelationScore
		}
		points += d.config.CoordinationWeight * sum
		confidences = append(confidences, sum/float64(len(result.CoordinatedActivity)))
	}

	result.RiskPoints = points
	result.OverallRiskLevel = entity.RiskLevelFromScore(points)
	if len(confidences) > 0 {
		var sum float64
		for _, c := range confidences {
			sum += c
		}
		result.ConfidenceScore = sum / float64(len(confidences))
	}

	d.logger.Debug("Pattern analysis completed",
		zap.Int("wash_trading", len(result.WashTrading)),
		zap.Int("circular_flows", len(result.CircularFlows)),
		zap.Int("pump_dump", len(result.PumpDump)),
		zap.Int("coordinated", len(result.CoordinatedActivity)),
		zap.String("risk_level", string(result.OverallRiskLevel)))

	return result
}

func sortWashPatterns(patterns []entity.WashTradingPattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].Confidence != patterns[j].Confidence {
			return patterns[i].Confidence > patterns[j].Confidence
		}
		return strings.Join(patterns[i].Wallets, ",") < strings.Join(patterns[j].Wallets, ",")
	})
}

// canonicalRotation rotates a cycle so its smallest address comes first
func canonicalRotation(cycle []string) []string {
	if len(cycle) == 0 {
		return cycle
	}
	start := 0
	for i, addr := range cycle {
		if addr < cycle[start] {
			start = i
		}
	}
	rotated := make([]string, 0, len(cycle))
	rotated = append(rotated, cycle[start:]...)
	return append(rotated, cycle[:start]...)
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
