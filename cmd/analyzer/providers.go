package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/repository"
	"wallet-cluster-analyzer/internal/infrastructure/cache"
	"wallet-cluster-analyzer/internal/infrastructure/config"
	"wallet-cluster-analyzer/internal/infrastructure/database"
	"wallet-cluster-analyzer/internal/infrastructure/logger"
	"wallet-cluster-analyzer/internal/infrastructure/memory"
	"wallet-cluster-analyzer/internal/infrastructure/messaging"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const connectTimeout = 30 * time.Second

// storage bundles the store implementations selected by storage.driver
type storage struct {
	transfers     repository.TransferRepository
	relationships repository.RelationshipRepository
	labels        repository.LabelRepository
}

// Ping checks every store
func (s *storage) Ping(ctx context.Context) error {
	return errors.Join(s.transfers.Ping(ctx), s.relationships.Ping(ctx))
}

func newStorage(lifecycle fx.Lifecycle, cfg *config.Config, log *logger.Logger) (*storage, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		log.Warn("Using in-memory storage, data is lost on restart")
		return &storage{
			transfers:     memory.NewTransferStore(),
			relationships: memory.NewRelationshipStore(),
			labels:        memory.NewLabelStore(entity.KnownExchangeLabels()...),
		}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	neo4jClient := database.NewNeo4JClient(&cfg.Neo4J, log)
	if err := neo4jClient.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to Neo4J: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		_ = neo4jClient.Close(ctx)
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if cfg.Postgres.RunMigrations {
		if err := database.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			_ = neo4jClient.Close(ctx)
			return nil, fmt.Errorf("failed to migrate Postgres: %w", err)
		}
	}

	lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			pool.Close()
			if err := neo4jClient.Close(ctx); err != nil {
				log.Error("Failed to close Neo4J connection", zap.Error(err))
			}
			return nil
		},
	})

	log.Info("Storage connected", zap.String("driver", cfg.Storage.Driver))
	return &storage{
		transfers:     database.NewPostgresTransferRepository(pool),
		relationships: database.NewNeo4JRelationshipRepository(neo4jClient, log),
		labels:        database.NewPostgresLabelRepository(pool),
	}, nil
}

// newLabelRepository puts the Redis read-through cache in front of the label
// store when Redis is enabled and reachable
func newLabelRepository(lifecycle fx.Lifecycle, s *storage, cfg *config.Config, log *logger.Logger) (repository.LabelRepository, error) {
	if !cfg.Redis.Enabled {
		return s.labels, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unavailable, reading labels from the store directly",
			zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = client.Close()
		return s.labels, nil
	}

	labels, err := cache.NewRedisLabelRepository(client, s.labels, cfg.Redis.KeyPrefix, cfg.Redis.LabelTTL)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if seeded, err := labels.Seed(ctx, entity.KnownExchangeLabels()); err != nil {
		log.Warn("Failed to seed exchange labels", zap.Error(err))
	} else {
		log.Info("Seeded exchange labels", zap.Int("seeded", seeded))
	}

	lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return labels, nil
}

// newTransferSource dials a dedicated request/reply connection to the parser.
// Without NATS the source reports itself unavailable and bootstraps fail fast.
func newTransferSource(lifecycle fx.Lifecycle, cfg *config.Config, log *logger.Logger) repository.TransferSource {
	if !cfg.NATS.Enabled {
		return messaging.NewNATSTransferSource(nil, cfg.NATS.FetchSubject, cfg.Ingestion.FetchTimeout, log)
	}

	conn, err := messaging.Dial(&cfg.NATS, log)
	if err != nil {
		log.Warn("Transfer source unavailable, wallet bootstrap disabled", zap.Error(err))
		return messaging.NewNATSTransferSource(nil, cfg.NATS.FetchSubject, cfg.Ingestion.FetchTimeout, log)
	}

	lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return conn.Drain()
		},
	})
	return messaging.NewNATSTransferSource(conn, cfg.NATS.FetchSubject, cfg.Ingestion.FetchTimeout, log)
}
