package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	app_service "wallet-cluster-analyzer/internal/application/service"
	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/graph"
	domain_service "wallet-cluster-analyzer/internal/domain/service"
	"wallet-cluster-analyzer/internal/infrastructure/config"
	"wallet-cluster-analyzer/internal/infrastructure/database"
	"wallet-cluster-analyzer/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// Runs the wallet analyses against the configured stores and prints the
// results as JSON. Wallet bootstrap is disabled; only stored flows are used.
func main() {
	wallet := flag.String("wallet", "", "wallet to analyse")
	to := flag.String("to", "", "trace routes from -wallet to this wallet")
	depth := flag.Int("depth", 0, "side wallet search depth (0 uses the configured default)")
	network := flag.Bool("network", false, "scan the recent network for anomalies instead")
	flag.Parse()

	log, err := logger.NewLogger("warn", "development")
	if err != nil {
		panic(err)
	}
	log = log.WithComponent("analyze-wallet")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}
	if *wallet == "" && !*network {
		fmt.Fprintln(os.Stderr, "usage: analyze_wallet -wallet <address> [-to <address>] [-depth n] | -network")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	neo4jClient := database.NewNeo4JClient(&cfg.Neo4J, log)
	if err := neo4jClient.Connect(ctx); err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	defer neo4jClient.Close(ctx)

	pool, err := database.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()

	loaderCfg := app_service.LoaderConfigFrom(cfg)
	loaderCfg.BootstrapOnQuery = false
	loader := app_service.NewGraphLoader(
		database.NewNeo4JRelationshipRepository(neo4jClient, log),
		domain_service.NewWalletLabeler(database.NewPostgresLabelRepository(pool), log),
		nil,
		cfg.Risk,
		loaderCfg,
		log,
	)
	analysis := app_service.NewAnalysisApplicationService(
		loader,
		domain_service.NewEvidenceEngine(database.NewPostgresTransferRepository(pool), cfg.Evidence, log),
		domain_service.NewPatternDetector(cfg.Patterns, log),
		graph.NewSharedGraph(nil),
		cfg,
		log,
	)

	var result any
	switch {
	case *network:
		result, err = analysis.DetectNetworkAnomalies(ctx)
	case *to != "":
		result, err = analysis.TraceExchangeRoutes(ctx, *wallet, *to)
	default:
		report := struct {
			SideWallets []entity.SideWalletCandidate `json:"side_wallets"`
			Cluster     *entity.ClusterSummary       `json:"cluster"`
			WashTrading []entity.WashTradingPattern  `json:"wash_trading"`
		}{}
		report.SideWallets, err = analysis.FindSideWallets(ctx, entity.SideWalletRequest{MainWallet: *wallet, Depth: *depth})
		if err == nil {
			report.Cluster, err = analysis.AnalyzeWalletCluster(ctx, *wallet)
		}
		if err == nil {
			report.WashTrading, err = analysis.DetectWashTrading(ctx, *wallet)
		}
		result = report
	}
	if err != nil {
		log.Fatal("Analysis failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatal("Failed to encode result", zap.Error(err))
	}
}
