package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/repository"
)

func TestAnalysis_RejectsInvalidWallets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.analysis.FindSideWallets(ctx, entity.SideWalletRequest{MainWallet: "0OIl"})
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
	_, err = f.analysis.AnalyzeWalletCluster(ctx, "")
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
	_, err = f.analysis.TraceExchangeRoutes(ctx, wallet(1), "short")
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
	_, err = f.analysis.DetectWashTrading(ctx, "short")
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestFindSideWallets_RendersReasons(t *testing.T) {
	f := newFixture(t)
	main, side, funder, dex, weak := wallet(1), wallet(2), wallet(3), wallet(4), wallet(5)
	recent := time.Now().Add(-2 * time.Hour)
	f.ingest(t,
		transfer("f1", funder, main, 5, recent, 90),
		transfer("f2", funder, side, 5, recent, 90),
		transfer("f3", funder, side, 5, recent.Add(time.Minute), 91),
		transfer("m1", main, side, 50, recent.Add(10*time.Minute), 95),
		transfer("m2", main, side, 50, recent.Add(20*time.Minute), 96),
		transfer("d1", main, dex, 10, recent.Add(30*time.Minute), 100),
		transfer("d2", side, dex, 11, recent.Add(30*time.Minute), 100),
		transfer("w1", main, weak, 1, time.Now().Add(-29*24*time.Hour), 10),
	)

	candidates, err := f.analysis.FindSideWallets(context.Background(), entity.SideWalletRequest{MainWallet: main})
	require.NoError(t, err)
	require.NotEmpty(t, candidates)

	top := candidates[0]
	assert.Equal(t, side, top.Address)
	assert.Contains(t, top.Reasons, "Direct transfer counterparty of the main wallet")
	assert.Contains(t, top.Reasons, "Funded by 1 wallet shared with the main wallet: "+funder)
	for _, c := range candidates {
		assert.NotEqual(t, main, c.Address)
		assert.NotNil(t, c.Reasons)
	}
}

func TestFindSideWallets_UnknownWallet(t *testing.T) {
	f := newFixture(t)

	candidates, err := f.analysis.FindSideWallets(context.Background(), entity.SideWalletRequest{MainWallet: wallet(42)})
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.Equal(t, 1, f.source.callCount(wallet(42)))
}

func TestAnalyzeWalletCluster(t *testing.T) {
	f := newFixture(t)
	a, b, c, d, far := wallet(1), wallet(2), wallet(3), wallet(4), wallet(5)
	at := time.Now().Add(-time.Hour)
	f.ingest(t,
		transfer("t1", a, b, 10, at, 1),
		transfer("t2", b, c, 10, at, 2),
		transfer("t3", c, a, 10, at, 3),
		transfer("t4", c, d, 5, at, 4),
		transfer("t5", d, far, 5, at, 5),
	)

	summary, err := f.analysis.AnalyzeWalletCluster(context.Background(), a)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{a, b, c, d}, summary.Members)
	assert.Equal(t, 4, summary.Size)
	assert.ElementsMatch(t, []string{a, b, c}, summary.StronglyLinked)
	assert.Equal(t, 4, summary.InternalEdges)
	assert.InDelta(t, 35.0, summary.TotalVolume, 1e-9)
	assert.Equal(t, c, summary.CentralWallet)
	assert.Greater(t, summary.AverageRisk, 0.0)
	assert.Empty(t, summary.ExchangeWallets)
	require.NotEmpty(t, summary.Patterns.WashTrading)
	assert.Equal(t, entity.WashCircularThreeWay, summary.Patterns.WashTrading[0].PatternType)

	total := 0
	for _, n := range summary.RoleCounts {
		total += n
	}
	assert.Equal(t, summary.Size, total)
}

func TestAnalyzeWalletCluster_IsolatedWallet(t *testing.T) {
	f := newFixture(t)

	summary, err := f.analysis.AnalyzeWalletCluster(context.Background(), wallet(9))
	require.NoError(t, err)
	assert.Equal(t, wallet(9), summary.Wallet)
	assert.Zero(t, summary.Size)
	assert.Empty(t, summary.Members)
	assert.Empty(t, summary.Patterns.WashTrading)
	assert.Equal(t, entity.RiskLevelLow, summary.Patterns.OverallRiskLevel)
}

func TestTraceExchangeRoutes(t *testing.T) {
	f := newFixture(t)
	a, b, c, x := wallet(1), wallet(2), wallet(3), wallet(9)
	at := time.Now().Add(-time.Hour)
	f.markExchange(t, x)
	f.ingest(t,
		transfer("t1", a, b, 10, at, 1),
		transfer("t2", b, x, 10, at, 2),
		transfer("t3", b, x, 10, at, 3),
		transfer("t4", a, c, 1, at, 4),
		transfer("t5", c, x, 1, at, 5),
	)

	routes, err := f.analysis.TraceExchangeRoutes(context.Background(), a, x)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	for _, r := range routes {
		assert.Equal(t, 2, r.Hops)
		assert.Equal(t, a, r.Path[0])
		assert.Equal(t, x, r.Path[2])
		assert.Equal(t, []string{x}, r.Exchanges)
		assert.Equal(t, int64(1), r.MinTxCount)
	}
	assert.NotEqual(t, routes[0].Path, routes[1].Path)
}

func TestTraceExchangeRoutes_NoRoute(t *testing.T) {
	f := newFixture(t)
	a, b := wallet(1), wallet(2)
	f.ingest(t, transfer("t1", b, a, 1, time.Now().Add(-time.Hour), 1))

	routes, err := f.analysis.TraceExchangeRoutes(context.Background(), a, b)
	require.NoError(t, err)
	assert.Empty(t, routes)

	routes, err = f.analysis.TraceExchangeRoutes(context.Background(), a, a)
	require.NoError(t, err)
	assert.Empty(t, routes)
}

func TestDetectWashTrading(t *testing.T) {
	f := newFixture(t)
	a, b := wallet(1), wallet(2)
	at := time.Now().Add(-time.Hour)
	f.ingest(t,
		transfer("t1", a, b, 10, at, 1),
		transfer("t2", b, a, 10, at.Add(time.Minute), 2),
	)

	patterns, err := f.analysis.DetectWashTrading(context.Background(), a)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, entity.WashDirectBackAndForth, patterns[0].PatternType)
	assert.ElementsMatch(t, []string{a, b}, patterns[0].Wallets)
	assert.InDelta(t, 20.0, patterns[0].Volume, 1e-9)
}

func TestDetectNetworkAnomalies(t *testing.T) {
	f := newFixture(t)
	a, b, h, c, d := wallet(1), wallet(2), wallet(3), wallet(4), wallet(5)
	p, q, r := wallet(6), wallet(7), wallet(8)
	v, w := wallet(10), wallet(11)
	at := time.Now().Add(-time.Hour)
	f.ingest(t,
		transfer("h1", a, h, 1, at, 1),
		transfer("h2", b, h, 1, at, 2),
		transfer("h3", h, c, 1, at, 3),
		transfer("h4", h, d, 1, at, 4),
		transfer("c1", p, q, 1, at, 5),
		transfer("c2", q, r, 1, at, 6),
		transfer("c3", r, p, 1, at, 7),
		transfer("v1", v, w, 2500, at, 8),
	)

	result, err := f.analysis.DetectNetworkAnomalies(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, result.NodeCount)
	assert.Equal(t, 8, result.EdgeCount)
	require.Len(t, result.Clusters, 1)
	assert.ElementsMatch(t, []string{p, q, r}, result.Clusters[0])
	require.NotEmpty(t, result.Hubs)
	assert.Equal(t, h, result.Hubs[0].Address)
	assert.ElementsMatch(t, []string{v, w}, result.HighRiskWallets)
	assert.NotEmpty(t, result.Patterns.CircularFlows)
	assert.False(t, result.SampledCentrality)
	assert.False(t, f.network.RefreshedAt().IsZero())
}
