package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/graph"
	"wallet-cluster-analyzer/internal/domain/repository"
	"wallet-cluster-analyzer/internal/infrastructure/logger"
)

const maxSupportingAddresses = 5

// EvidenceEngine scores side-wallet candidates by combining graph connectivity
// with four event-level signals read from the transfer store
type EvidenceEngine struct {
	transfers repository.TransferRepository
	config    EvidenceConfig
	logger    *logger.Logger
	now       func() time.Time
}

// NewEvidenceEngine creates a new evidence engine
func NewEvidenceEngine(transfers repository.TransferRepository, config EvidenceConfig, logger *logger.Logger) *EvidenceEngine {
	return &EvidenceEngine{
		transfers: transfers,
		config:    config,
		logger:    logger.WithComponent("evidence-engine"),
		now:       time.Now,
	}
}

// WithClock replaces the wall clock used for lookback windows
func (e *EvidenceEngine) WithClock(now func() time.Time) *EvidenceEngine {
	e.now = now
	return e
}

// Normalize fills defaults into a request and rejects malformed values
func (e *EvidenceEngine) Normalize(req entity.SideWalletRequest) (entity.SideWalletRequest, error) {
	if req.MainWallet == "" {
		return req, fmt.Errorf("%w: main wallet is required", repository.ErrInvalidInput)
	}
	if req.Depth < 0 || req.Limit < 0 || req.LookbackDays < 0 || req.Threshold < 0 || req.Threshold > 1 {
		return req, fmt.Errorf("%w: depth, limit and lookback must not be negative and threshold must be in [0,1]", repository.ErrInvalidInput)
	}
	if req.Depth > e.config.MaxDepth {
		return req, fmt.Errorf("%w: depth %d exceeds the maximum of %d", repository.ErrInvalidInput, req.Depth, e.config.MaxDepth)
	}
	if req.Depth == 0 {
		req.Depth = e.config.DefaultDepth
	}
	if req.Threshold == 0 {
		req.Threshold = e.config.DefaultThreshold
	}
	if req.Limit == 0 {
		req.Limit = e.config.DefaultLimit
	}
	if req.LookbackDays == 0 {
		req.LookbackDays = e.config.DefaultLookbackDays
	}
	return req, nil
}

// discovery is a wallet reached by the connectivity expansion
type discovery struct {
	address      string
	hop          int
	connectivity float64
	outbound     bool
	inbound      bool
	via          string
	txCount      int64
	volume       float64
}

// FindSideWallets ranks the wallets around req.MainWallet by evidence score.
// The graph must not be mutated while the call runs.
func (e *EvidenceEngine) FindSideWallets(ctx context.Context, g *graph.WalletGraph, req entity.SideWalletRequest) ([]entity.SideWalletCandidate, error) {
	req, err := e.Normalize(req)
	if err != nil {
		return nil, err
	}

	candidates := []entity.SideWalletCandidate{}
	if !g.HasNode(req.MainWallet) || g.Degree(req.MainWallet) == 0 {
		return candidates, nil
	}

	now := e.now()
	lookback := time.Duration(req.LookbackDays) * 24 * time.Hour
	since := now.Add(-lookback)

	found := e.expand(g, req.MainWallet, req.Depth, now, lookback)
	if len(found) == 0 {
		return candidates, nil
	}

	main := e.loadWalletEvidence(ctx, g, req.MainWallet, since)

	signals := make([][]entity.EvidenceSignal, len(found))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.config.SignalConcurrency)
	for i, d := range found {
		group.Go(func() error {
			signals[i] = e.scoreCandidate(groupCtx, g, main, d, since)
			return nil
		})
	}
	_ = group.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, d := range found {
		score := 0.0
		for _, s := range signals[i] {
			score += s.Contribution()
		}
		score = clamp01(score)
		if score < req.Threshold {
			continue
		}
		candidates = append(candidates, entity.SideWalletCandidate{
			Address:     d.address,
			Score:       score,
			HopDistance: d.hop,
			Direction:   d.direction(),
			Signals:     signals[i],
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Address < candidates[j].Address
	})
	if len(candidates) > req.Limit {
		candidates = candidates[:req.Limit]
	}

	e.logger.Debug("Side wallet search completed",
		zap.String("main_wallet", req.MainWallet),
		zap.Int("reached", len(found)),
		zap.Int("returned", len(candidates)))

	return candidates, nil
}

// expand runs the level-ordered BFS over the undirected view and returns the
// reached wallets sorted by address. Exchanges and hubs are reached but not
// expanded; weak edges are pruned and only the strongest neighbours of a
// wallet are followed.
func (e *EvidenceEngine) expand(g *graph.WalletGraph, mainWallet string, depth int, now time.Time, lookback time.Duration) []*discovery {
	found := make(map[string]*discovery)
	root := &discovery{address: mainWallet, outbound: true, inbound: true}
	frontier := []*discovery{root}

	for hop := 1; hop <= depth && len(frontier) > 0; hop++ {
		var next []*discovery
		for _, parent := range frontier {
			if parent.address != mainWallet && !e.expandable(g, parent.address) {
				continue
			}
			for _, link := range e.strongestLinks(g, parent.address, now, lookback) {
				if link.peer == mainWallet {
					continue
				}
				connectivity := math.Pow(e.config.HopDecay, float64(hop-1)) * link.weight
				outbound := parent.outbound && link.forward
				inbound := parent.inbound && link.backward
				if !outbound && !inbound {
					outbound, inbound = link.forward, link.backward
				}

				d, seen := found[link.peer]
				if !seen {
					d = &discovery{
						address:      link.peer,
						hop:          hop,
						connectivity: connectivity,
						outbound:     outbound,
						inbound:      inbound,
						via:          parent.address,
						txCount:      link.txCount,
						volume:       link.volume,
					}
					found[link.peer] = d
					next = append(next, d)
					continue
				}
				if d.hop == hop {
					d.outbound = d.outbound || outbound
					d.inbound = d.inbound || inbound
				}
				if connectivity > d.connectivity {
					d.connectivity = connectivity
					d.via = parent.address
					d.txCount = link.txCount
					d.volume = link.volume
				}
			}
		}
		frontier = next
	}

	result := make([]*discovery, 0, len(found))
	for _, d := range found {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].address < result[j].address })
	return result
}

func (e *EvidenceEngine) expandable(g *graph.WalletGraph, address string) bool {
	return !g.IsExchange(address) && g.Degree(address) <= e.config.MaxNeighborsPerNode
}

type link struct {
	peer     string
	weight   float64
	forward  bool
	backward bool
	txCount  int64
	volume   float64
}

// strongestLinks merges both edge directions per counterparty, weighs them by
// strength and recency, drops links under MinEdgeWeight and keeps the
// strongest MaxNeighborsPerNode.
func (e *EvidenceEngine) strongestLinks(g *graph.WalletGraph, address string, now time.Time, lookback time.Duration) []link {
	var links []link
	for _, peer := range g.UndirectedNeighbors(address) {
		l := link{peer: peer}
		var lastSeen time.Time
		if out, ok := g.Edge(address, peer); ok {
			l.forward = true
			l.txCount += out.TransactionCount
			l.volume += out.Volume()
			lastSeen = out.LastSeen
		}
		if in, ok := g.Edge(peer, address); ok {
			l.backward = true
			l.txCount += in.TransactionCount
			l.volume += in.Volume()
			if in.LastSeen.After(lastSeen) {
				lastSeen = in.LastSeen
			}
		}
		l.weight = e.edgeStrength(l.txCount, l.volume) * recencyFactor(lastSeen, now, lookback)
		if l.weight < e.config.MinEdgeWeight || l.weight == 0 {
			continue
		}
		links = append(links, l)
	}
	sort.SliceStable(links, func(i, j int) bool {
		if links[i].weight != links[j].weight {
			return links[i].weight > links[j].weight
		}
		return links[i].peer < links[j].peer
	})
	if len(links) > e.config.MaxNeighborsPerNode {
		links = links[:e.config.MaxNeighborsPerNode]
	}
	return links
}

// edgeStrength saturates transaction count and volume logarithmically and
// averages them into [0,1]
func (e *EvidenceEngine) edgeStrength(txCount int64, volume float64) float64 {
	txPart := math.Min(1, math.Log1p(float64(txCount))/math.Log1p(e.config.TxCountSaturation))
	volPart := 0.0
	if volume > 0 {
		volPart = math.Min(1, math.Log1p(volume)/math.Log1p(e.config.VolumeSaturation))
	}
	return 0.5*txPart + 0.5*volPart
}

// recencyFactor decays linearly from 1 at now to 0 at the lookback boundary.
// Undated aggregates count as current.
func recencyFactor(lastSeen, now time.Time, lookback time.Duration) float64 {
	if lastSeen.IsZero() {
		return 1
	}
	age := now.Sub(lastSeen)
	if age <= 0 {
		return 1
	}
	if age >= lookback {
		return 0
	}
	return 1 - float64(age)/float64(lookback)
}

func (d *discovery) direction() entity.Direction {
	switch {
	case d.outbound && d.inbound:
		return entity.DirectionBidirectional
	case d.inbound:
		return entity.DirectionInbound
	default:
		return entity.DirectionOutbound
	}
}

// walletEvidence is the per-wallet data shared by every pairwise signal
type walletEvidence struct {
	address        string
	counterparties map[string]int64
}

func (e *EvidenceEngine) loadWalletEvidence(ctx context.Context, g *graph.WalletGraph, address string, since time.Time) *walletEvidence {
	w := &walletEvidence{address: address, counterparties: make(map[string]int64)}

	counterparties, err := e.transfers.GetTopCounterparties(ctx, address, since, e.config.CounterpartyLimit)
	if err != nil {
		e.absent(address, entity.SignalSharedCounterparties, err)
	}
	for _, c := range counterparties {
		if c.Address == address || g.IsExchange(c.Address) {
			continue
		}
		w.counterparties[c.Address] = c.EventCount
	}
	return w
}

// loadProfile reads the activity of address, leaving out its transfers with peer
func (e *EvidenceEngine) loadProfile(ctx context.Context, address, peer string, since time.Time) *entity.BehavioralProfile {
	profile, err := e.transfers.GetBehavioralProfile(ctx, address, peer, since)
	switch {
	case err == nil:
		return profile
	case !errors.Is(err, repository.ErrNotFound):
		e.absent(address, entity.SignalBehavioral, err)
	}
	return nil
}

func (e *EvidenceEngine) absent(address string, kind entity.SignalKind, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	e.logger.Warn("Evidence unavailable, treating as absent",
		zap.String("wallet", address),
		zap.String("signal", string(kind)),
		zap.Error(err))
}

// scoreCandidate computes all five signals of one candidate. Store failures
// yield a zero signal, never an error.
func (e *EvidenceEngine) scoreCandidate(ctx context.Context, g *graph.WalletGraph, main *walletEvidence, d *discovery, since time.Time) []entity.EvidenceSignal {
	w := e.config.Weights
	signals := []entity.EvidenceSignal{
		{
			Kind:     entity.SignalConnectivity,
			RawScore: clamp01(d.connectivity),
			Weight:   w.Connectivity,
			Evidence: []entity.EvidenceItem{{
				Kind:                entity.EvidenceConnection,
				Magnitude:           float64(d.hop),
				SupportingAddresses: []string{d.via},
			}},
		},
		e.sharedFundersSignal(ctx, g, main.address, d.address, since),
	}

	candidate := e.loadWalletEvidence(ctx, g, d.address, since)
	signals = append(signals,
		e.sharedCounterpartiesSignal(main, candidate),
		e.behavioralSignal(
			e.loadProfile(ctx, main.address, d.address, since),
			e.loadProfile(ctx, d.address, main.address, since),
		),
		e.temporalSignal(ctx, main.address, d.address, since),
	)
	return signals
}

func (e *EvidenceEngine) sharedFundersSignal(ctx context.Context, g *graph.WalletGraph, mainWallet, candidate string, since time.Time) entity.EvidenceSignal {
	signal := entity.EvidenceSignal{Kind: entity.SignalSharedFunders, Weight: e.config.Weights.SharedFunders}

	shared, err := e.transfers.GetSharedInboundSenders(ctx, mainWallet, candidate, since)
	if err != nil {
		e.absent(candidate, signal.Kind, err)
		return signal
	}

	var events float64
	var funders []string
	for _, s := range shared {
		if s.Address == mainWallet || s.Address == candidate || g.IsExchange(s.Address) {
			continue
		}
		events += float64(min(s.EventsA, s.EventsB))
		funders = append(funders, s.Address)
	}
	if len(funders) == 0 {
		return signal
	}
	sort.Strings(funders)

	signal.RawScore = math.Min(1, events/e.config.FunderSaturation)
	signal.Evidence = []entity.EvidenceItem{{
		Kind:                entity.EvidenceSharedFunder,
		Magnitude:           float64(len(funders)),
		SupportingAddresses: truncate(funders, maxSupportingAddresses),
	}}
	return signal
}

func (e *EvidenceEngine) sharedCounterpartiesSignal(main, candidate *walletEvidence) entity.EvidenceSignal {
	signal := entity.EvidenceSignal{Kind: entity.SignalSharedCounterparties, Weight: e.config.Weights.SharedCounterparties}
	if len(main.counterparties) == 0 || len(candidate.counterparties) == 0 {
		return signal
	}

	var shared []string
	for addr := range main.counterparties {
		if addr == candidate.address {
			continue
		}
		if _, ok := candidate.counterparties[addr]; ok {
			shared = append(shared, addr)
		}
	}
	if len(shared) == 0 {
		return signal
	}
	sort.Strings(shared)

	smaller := min(len(main.counterparties), len(candidate.counterparties))
	signal.RawScore = math.Min(1, float64(len(shared))/float64(smaller))
	signal.Evidence = []entity.EvidenceItem{{
		Kind:                entity.EvidenceSharedCounterparty,
		Magnitude:           float64(len(shared)),
		SupportingAddresses: truncate(shared, maxSupportingAddresses),
	}}
	return signal
}

// behavioralSignal weighs amount similarity 40%, frequency 35% and the
// hour-of-day histogram 25%
func (e *EvidenceEngine) behavioralSignal(a, b *entity.BehavioralProfile) entity.EvidenceSignal {
	signal := entity.EvidenceSignal{Kind: entity.SignalBehavioral, Weight: e.config.Weights.Behavioral}
	if a == nil || b == nil || a.TxCount == 0 || b.TxCount == 0 {
		return signal
	}

	amount := ratioSimilarity(a.AvgAmount, b.AvgAmount)
	frequency := ratioSimilarity(a.TxPerDay, b.TxPerDay)

	var distance float64
	for h := 0; h < 24; h++ {
		distance += math.Abs(a.HourHistogram[h] - b.HourHistogram[h])
	}
	hours := clamp01(1 - distance/2)

	signal.RawScore = clamp01(0.40*amount + 0.35*frequency + 0.25*hours)
	signal.Evidence = []entity.EvidenceItem{
		{Kind: entity.EvidenceAmountSimilarity, Magnitude: amount},
		{Kind: entity.EvidenceFrequencySimilarity, Magnitude: frequency},
		{Kind: entity.EvidenceHourSimilarity, Magnitude: hours},
	}
	return signal
}

func (e *EvidenceEngine) temporalSignal(ctx context.Context, mainWallet, candidate string, since time.Time) entity.EvidenceSignal {
	signal := entity.EvidenceSignal{Kind: entity.SignalTemporal, Weight: e.config.Weights.Temporal}

	overlap, err := e.transfers.GetTemporalOverlap(ctx, mainWallet, candidate, since, e.config.TemporalBucket)
	if err != nil {
		e.absent(candidate, signal.Kind, err)
		return signal
	}
	smaller := min(overlap.ActiveBucketsA, overlap.ActiveBucketsB)
	if smaller == 0 {
		return signal
	}

	ratio := float64(overlap.SharedBuckets) / float64(smaller)
	bonus := math.Min(e.config.SameSlotBonusCap, e.config.SameSlotBonus*float64(overlap.SameSlotCount))
	signal.RawScore = clamp01(ratio + bonus)
	signal.Evidence = []entity.EvidenceItem{{Kind: entity.EvidenceActiveOverlap, Magnitude: ratio}}
	if overlap.SameSlotCount > 0 {
		signal.Evidence = append(signal.Evidence, entity.EvidenceItem{
			Kind:      entity.EvidenceSameSlot,
			Magnitude: float64(overlap.SameSlotCount),
		})
	}
	return signal
}

// ratioSimilarity is 1 - |a-b| / max(a,b), or 1 when both are zero
func ratioSimilarity(a, b float64) float64 {
	peak := math.Max(math.Abs(a), math.Abs(b))
	if peak == 0 {
		return 1
	}
	return clamp01(1 - math.Abs(a-b)/peak)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func truncate(addrs []string, n int) []string {
	if len(addrs) <= n {
		return addrs
	}
	return addrs[:n]
}
