package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"wallet-cluster-analyzer/internal/domain/graph"
	"wallet-cluster-analyzer/internal/infrastructure/config"
	"wallet-cluster-analyzer/internal/infrastructure/logger"
	"wallet-cluster-analyzer/internal/infrastructure/messaging"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// healthStatus is the body served on /health
type healthStatus struct {
	Status           string            `json:"status"`
	Components       map[string]string `json:"components"`
	GraphRefreshedAt *time.Time        `json:"graph_refreshed_at,omitempty"`
	CheckedAt        time.Time         `json:"checked_at"`
}

// healthChecker checks the stores and NATS on an interval and keeps the last result
type healthChecker struct {
	store    *storage
	consumer *messaging.NATSConsumer
	network  *graph.SharedGraph
	natsOn   bool
	timeout  time.Duration

	mu   sync.RWMutex
	last healthStatus
}

func (h *healthChecker) check(ctx context.Context) healthStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	status := healthStatus{
		Status:     "ok",
		Components: map[string]string{"storage": "ok"},
		CheckedAt:  time.Now().UTC(),
	}
	if err := h.store.Ping(ctx); err != nil {
		status.Status = "degraded"
		status.Components["storage"] = err.Error()
	}
	switch {
	case !h.natsOn:
		status.Components["nats"] = "disabled"
	case h.consumer.IsConnected():
		status.Components["nats"] = "ok"
	default:
		status.Status = "degraded"
		status.Components["nats"] = "disconnected"
	}
	if refreshed := h.network.RefreshedAt(); !refreshed.IsZero() {
		status.GraphRefreshedAt = &refreshed
	}

	h.mu.Lock()
	h.last = status
	h.mu.Unlock()
	return status
}

func (h *healthChecker) status() healthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

func (h *healthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.status()
	if status.CheckedAt.IsZero() {
		status = h.check(r.Context())
	}

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// startHealthServer starts the health check server
func startHealthServer(
	lifecycle fx.Lifecycle,
	cfg *config.Config,
	store *storage,
	consumer *messaging.NATSConsumer,
	network *graph.SharedGraph,
	log *logger.Logger,
) {
	log = log.WithComponent("health")
	timeout := cfg.Health.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	checker := &healthChecker{
		store:    store,
		consumer: consumer,
		network:  network,
		natsOn:   cfg.NATS.Enabled,
		timeout:  timeout,
	}

	mux := http.NewServeMux()
	mux.Handle("/health", checker)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runCtx, cancel := context.WithCancel(context.Background())

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting health server...", zap.Int("port", cfg.App.HTTPPort))

			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("Health server error", zap.Error(err))
				}
			}()

			if cfg.Health.Interval > 0 {
				go func() {
					ticker := time.NewTicker(cfg.Health.Interval)
					defer ticker.Stop()
					for {
						select {
						case <-runCtx.Done():
							return
						case <-ticker.C:
							if status := checker.check(runCtx); status.Status != "ok" && runCtx.Err() == nil {
								log.Warn("Health check degraded", zap.Any("components", status.Components))
							}
						}
					}
				}()
			}

			log.Info("Health server started successfully")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Stopping health server...")
			cancel()
			return server.Shutdown(ctx)
		},
	})
}
