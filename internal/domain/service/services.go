package service

import (
	"context"
	"wallet-cluster-analyzer/internal/domain/entity"
)

// AnalysisService defines the analysis operations exposed to the API layer
type AnalysisService interface {
	// FindSideWallets ranks wallets likely controlled by the same entity as the main wallet
	FindSideWallets(ctx context.Context, req entity.SideWalletRequest) ([]entity.SideWalletCandidate, error)

	// AnalyzeWalletCluster summarises the cluster the wallet belongs to
	AnalyzeWalletCluster(ctx context.Context, wallet string) (*entity.ClusterSummary, error)

	// TraceExchangeRoutes returns the shortest routes between two wallets
	TraceExchangeRoutes(ctx context.Context, from, to string) ([]entity.ExchangeRoute, error)

	// DetectWashTrading returns the wash trading cycles through a wallet
	DetectWashTrading(ctx context.Context, wallet string) ([]entity.WashTradingPattern, error)

	// DetectNetworkAnomalies scans the cached network view
	DetectNetworkAnomalies(ctx context.Context) (*entity.NetworkAnomalies, error)
}

// IngestionService defines the operations of the ingestion worker
type IngestionService interface {
	// ProcessTransfer validates and stores a single transfer event
	ProcessTransfer(ctx context.Context, event *entity.TransferEvent) error

	// ProcessTransferBatch validates and stores a batch of transfer events
	ProcessTransferBatch(ctx context.Context, events []*entity.TransferEvent) error

	// BootstrapWallets fetches and stores the transfers of wallets the store has not seen
	BootstrapWallets(ctx context.Context, addresses []string) error
}
