package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	app_service "wallet-cluster-analyzer/internal/application/service"
	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/graph"
	"wallet-cluster-analyzer/internal/domain/repository"
	domain_service "wallet-cluster-analyzer/internal/domain/service"
	"wallet-cluster-analyzer/internal/infrastructure/config"
	"wallet-cluster-analyzer/internal/infrastructure/logger"
	"wallet-cluster-analyzer/internal/infrastructure/messaging"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.NewLogger(cfg.App.LogLevel, cfg.App.Env)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	// Create FX application
	app := fx.New(
		// Provide dependencies
		fx.Supply(cfg),
		fx.Supply(log),
		fx.Supply(&cfg.NATS),

		// Infrastructure providers
		fx.Provide(
			newStorage,
			func(s *storage) repository.TransferRepository { return s.transfers },
			func(s *storage) repository.RelationshipRepository { return s.relationships },
			newLabelRepository,
			newTransferSource,
			messaging.NewNATSConsumer,
			func() *graph.SharedGraph { return graph.NewSharedGraph(nil) },
		),

		// Domain services
		fx.Provide(
			domain_service.NewWalletLabeler,
			func(transfers repository.TransferRepository, cfg *config.Config, log *logger.Logger) *domain_service.EvidenceEngine {
				return domain_service.NewEvidenceEngine(transfers, cfg.Evidence, log)
			},
			func(cfg *config.Config, log *logger.Logger) *domain_service.PatternDetector {
				return domain_service.NewPatternDetector(cfg.Patterns, log)
			},
		),

		// Application providers
		fx.Provide(
			newIngestionService,
			func(s *app_service.IngestionApplicationService) domain_service.IngestionService { return s },
			newGraphLoader,
			fx.Annotate(app_service.NewAnalysisApplicationService, fx.As(new(domain_service.AnalysisService))),
		),

		// Lifecycle hooks
		fx.Invoke(startIngestion),
		fx.Invoke(startGraphRefresher),
		fx.Invoke(startHealthServer),

		// Configure logging
		fx.WithLogger(func() fxevent.Logger {
			return fxevent.NopLogger
		}),
	)

	// Start the application
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start application", zap.Error(err))
		os.Exit(1)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down application...")

	// Stop the application
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Stop(stopCtx); err != nil {
		log.Error("Failed to stop application gracefully", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Application stopped successfully")
}

func newIngestionService(
	transfers repository.TransferRepository,
	relationships repository.RelationshipRepository,
	source repository.TransferSource,
	network *graph.SharedGraph,
	cfg *config.Config,
	log *logger.Logger,
) *app_service.IngestionApplicationService {
	return app_service.NewIngestionApplicationService(transfers, relationships, source, network, cfg.Ingestion, log)
}

func newGraphLoader(
	relationships repository.RelationshipRepository,
	labeler *domain_service.WalletLabeler,
	ingestion *app_service.IngestionApplicationService,
	cfg *config.Config,
	log *logger.Logger,
) *app_service.GraphLoader {
	return app_service.NewGraphLoader(relationships, labeler, ingestion, cfg.Risk, app_service.LoaderConfigFrom(cfg), log)
}

// startIngestion connects the transfer consumer and feeds its events to the
// ingestion workers
func startIngestion(
	lifecycle fx.Lifecycle,
	consumer *messaging.NATSConsumer,
	ingestion domain_service.IngestionService,
	log *logger.Logger,
	cfg *config.Config,
) {
	log = log.WithComponent("ingestion")
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting ingestion...",
				zap.String("url", cfg.NATS.URL),
				zap.String("stream_name", cfg.NATS.StreamName),
				zap.String("subject", consumer.Subject()),
				zap.Bool("enabled", cfg.NATS.Enabled),
			)

			if err := consumer.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}

			go func() {
				defer close(done)
				processMessages(runCtx, consumer.GetMessageChannel(), ingestion, log, cfg.Ingestion)
			}()

			log.Info("Ingestion started successfully")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Stopping ingestion...")
			err := consumer.Disconnect()
			select {
			case <-done:
			case <-ctx.Done():
				cancel()
				return ctx.Err()
			}
			cancel()
			return err
		},
	})
}

// startGraphRefresher keeps the cached network view fresh and logs an anomaly
// scan of the first hydration
func startGraphRefresher(
	lifecycle fx.Lifecycle,
	loader *app_service.GraphLoader,
	analysis domain_service.AnalysisService,
	network *graph.SharedGraph,
	cfg *config.Config,
	log *logger.Logger,
) {
	runCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := loader.RefreshNetwork(runCtx, network); err != nil && runCtx.Err() == nil {
					log.Warn("Initial network refresh failed", zap.Error(err))
				} else if anomalies, err := analysis.DetectNetworkAnomalies(runCtx); err == nil {
					log.Info("Initial network scan",
						zap.Int("clusters", len(anomalies.Clusters)),
						zap.Int("hubs", len(anomalies.Hubs)),
						zap.Int("high_risk_wallets", len(anomalies.HighRiskWallets)),
						zap.String("risk_level", string(anomalies.Patterns.OverallRiskLevel)))
				}
				loader.RunRefreshLoop(runCtx, network, cfg.Analysis.GraphRefreshInterval)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			wg.Wait()
			return nil
		},
	})
}

// ingestBatch is the set of deliveries handed to one worker
type ingestBatch []*messaging.Delivery

func (b ingestBatch) events() []*entity.TransferEvent {
	var events []*entity.TransferEvent
	for _, d := range b {
		events = append(events, d.Events...)
	}
	return events
}

// processMessages batches consumed deliveries and hands the batches to a pool
// of workers. A batch is flushed once it holds batch size events, on every
// flush tick, and when the consumer channel closes. Deliveries are acked only
// after their batch is stored and naked otherwise, so a failed batch is
// redelivered.
func processMessages(
	ctx context.Context,
	deliveries <-chan *messaging.Delivery,
	ingestion domain_service.IngestionService,
	log *logger.Logger,
	cfg config.IngestionConfig,
) {
	batchSize := max(cfg.BatchSize, 1)
	workers := max(cfg.Concurrency, 1)
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}

	var batch ingestBatch
	pending := 0
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	jobChan := make(chan ingestBatch, workers)
	var wg sync.WaitGroup

	// Start worker pool
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobChan {
				events := job.events()
				if err := ingestion.ProcessTransferBatch(ctx, events); err != nil {
					log.Error("Failed to process transfer batch, requesting redelivery",
						zap.Error(err),
						zap.Int("worker_id", workerID),
						zap.Int("messages", len(job)),
						zap.Int("batch_size", len(events)))
					for _, d := range job {
						d.Nak()
					}
					continue
				}
				for _, d := range job {
					d.Ack()
				}
			}
		}(i)
	}

	flush := func() {
		if len(batch) == 0 {
			return
		}
		jobChan <- batch
		batch = nil
		pending = 0
	}
	stop := func() {
		flush()
		close(jobChan)
		wg.Wait()
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return

		case d, ok := <-deliveries:
			if !ok {
				stop()
				return
			}
			batch = append(batch, d)
			pending += len(d.Events)
			if pending >= batchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}
