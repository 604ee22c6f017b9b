package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/infrastructure/config"
	"wallet-cluster-analyzer/internal/infrastructure/database"
	"wallet-cluster-analyzer/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// Seeds the Postgres label store with the known exchange wallets and, when a
// path is given, the labels of a JSON file holding []entity.WalletLabel.
func main() {
	// Setup logger
	log, err := logger.NewLogger("info", "development")
	if err != nil {
		panic(err)
	}
	log = log.WithComponent("seed-labels")

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	labels := entity.KnownExchangeLabels()
	if len(os.Args) > 1 {
		data, err := os.ReadFile(os.Args[1])
		if err != nil {
			log.Fatal("Failed to read labels file", zap.Error(err))
		}
		var extra []entity.WalletLabel
		if err := json.Unmarshal(data, &extra); err != nil {
			log.Fatal("Failed to decode labels file", zap.Error(err))
		}
		labels = append(labels, extra...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := database.RunPostgresMigrations(ctx, pool); err != nil {
		log.Fatal("Failed to migrate Postgres", zap.Error(err))
	}

	repo := database.NewPostgresLabelRepository(pool)
	saved := 0
	for i := range labels {
		if err := entity.ValidateAddress(labels[i].Address); err != nil {
			log.Warn("Skipping label with invalid address", zap.String("address", labels[i].Address), zap.Error(err))
			continue
		}
		if err := repo.SaveLabel(ctx, &labels[i]); err != nil {
			log.Error("Failed to save label", zap.String("address", labels[i].Address), zap.Error(err))
			os.Exit(1)
		}
		saved++
	}

	log.Info("Seeding complete", zap.Int("labels", saved))
}
