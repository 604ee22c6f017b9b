package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/graph"
	"wallet-cluster-analyzer/internal/domain/repository"
	"wallet-cluster-analyzer/internal/infrastructure/logger"
)

// WalletLabeler applies exchange labels to graphs. The labeling repository is
// consulted first; the static known-exchange table always applies.
type WalletLabeler struct {
	labels repository.LabelRepository
	logger *logger.Logger
}

// NewWalletLabeler creates a new wallet labeler. labels may be nil.
func NewWalletLabeler(labels repository.LabelRepository, logger *logger.Logger) *WalletLabeler {
	return &WalletLabeler{
		labels: labels,
		logger: logger.WithComponent("wallet-labeler"),
	}
}

// IsExchange reports whether an address is a labeled exchange wallet
func (l *WalletLabeler) IsExchange(ctx context.Context, address string) bool {
	if _, ok := entity.KnownExchange(address); ok {
		return true
	}
	if l.labels == nil {
		return false
	}
	isExchange, err := l.labels.IsExchangeWallet(ctx, address)
	if err != nil {
		l.logger.Warn("Failed to look up wallet label", zap.String("address", address), zap.Error(err))
		return false
	}
	return isExchange
}

// Exchanges returns the sorted subset of addresses that are exchanges
func (l *WalletLabeler) Exchanges(ctx context.Context, addresses []string) []string {
	set := make(map[string]struct{})
	for _, addr := range addresses {
		if _, ok := entity.KnownExchange(addr); ok {
			set[addr] = struct{}{}
		}
	}
	if l.labels != nil && len(addresses) > 0 {
		labeled, err := l.labels.ExchangeWallets(ctx, addresses)
		if err != nil {
			l.logger.Warn("Failed to look up wallet labels, using known exchanges only",
				zap.Int("addresses", len(addresses)), zap.Error(err))
		}
		for _, addr := range labeled {
			set[addr] = struct{}{}
		}
	}
	exchanges := make([]string, 0, len(set))
	for _, addr := range addresses {
		if _, ok := set[addr]; ok {
			exchanges = append(exchanges, addr)
			delete(set, addr)
		}
	}
	sort.Strings(exchanges)
	return exchanges
}

// LabelGraph marks every exchange wallet of g
func (l *WalletLabeler) LabelGraph(ctx context.Context, g *graph.WalletGraph) []string {
	exchanges := l.Exchanges(ctx, g.Nodes())
	for _, addr := range exchanges {
		g.SetExchange(addr, true)
	}
	return exchanges
}
