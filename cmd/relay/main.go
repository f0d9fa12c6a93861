// Package main is the entrypoint for the dispatch relay. The relay consumes
// the Redis dispatch stream and delivers each job to the job service. Jobs it
// gives up on are marked failed in Postgres.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harishm17/study-buddy/internal/cache"
	"github.com/harishm17/study-buddy/internal/config"
	"github.com/harishm17/study-buddy/internal/dispatch"
	"github.com/harishm17/study-buddy/internal/logging"
	"github.com/harishm17/study-buddy/internal/metrics"
	"github.com/harishm17/study-buddy/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("relay failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(logging.NewHandler(os.Stdout, cfg.Server.LogLevel, cfg.Dispatch.InternalToken)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewClient(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis client: %w", err)
	}
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	m := metrics.New()
	if cfg.Dispatch.RelayMetricsPort > 0 {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Dispatch.RelayMetricsPort),
			Handler:           metricsMux(m),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("metrics listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	target := dispatch.NewHTTPDispatcher(cfg.Dispatch.ServiceURL, cfg.Dispatch.InternalToken, cfg.Pipeline.StageTimeout+time.Minute)
	relay := dispatch.NewRelay(client, target, store.NewPostgresStore(pool), relayConfig(cfg.Dispatch, consumerName()), m)

	if err := relay.Run(ctx); err != nil {
		return fmt.Errorf("run relay: %w", err)
	}
	return nil
}

func relayConfig(cfg config.DispatchConfig, consumer string) dispatch.RelayConfig {
	return dispatch.RelayConfig{
		Stream:            cfg.Stream,
		Group:             cfg.Group,
		Consumer:          consumer,
		MaxDeliveries:     int64(cfg.MaxDeliveries),
		VisibilityTimeout: cfg.VisibilityTime,
	}
}

// consumerName identifies this relay within the consumer group. Each replica
// needs a distinct name so pending entries can be reclaimed from dead ones.
func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "relay"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
