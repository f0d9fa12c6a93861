// Package main is the entrypoint for the StudyBuddy job service.
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

	"github.com/harishm17/study-buddy/internal/ai"
	"github.com/harishm17/study-buddy/internal/api"
	"github.com/harishm17/study-buddy/internal/api/handler"
	mw "github.com/harishm17/study-buddy/internal/api/middleware"
	"github.com/harishm17/study-buddy/internal/blob"
	"github.com/harishm17/study-buddy/internal/cache"
	"github.com/harishm17/study-buddy/internal/config"
	"github.com/harishm17/study-buddy/internal/dispatch"
	"github.com/harishm17/study-buddy/internal/extract"
	"github.com/harishm17/study-buddy/internal/logging"
	"github.com/harishm17/study-buddy/internal/metrics"
	"github.com/harishm17/study-buddy/internal/pipeline"
	"github.com/harishm17/study-buddy/internal/store"
	"github.com/harishm17/study-buddy/pkg/models"
)

const (
	shutdownTimeout   = 30 * time.Second
	embeddingCacheTTL = 7 * 24 * time.Hour
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		slog.SetDefault(slog.New(logging.NewHandler(os.Stdout, "info")))
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(logging.NewHandler(os.Stdout, cfg.Server.LogLevel, secrets(cfg)...)))
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"dispatch_mode", cfg.Dispatch.Mode,
		"env", cfg.Server.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Connect to Redis
	redisClient, err := cache.NewClient(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis client: %w", err)
	}
	defer redisClient.Close()

	redisCache := cache.NewRedisCache(redisClient)
	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create AI provider
	aiProvider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	if !cfg.AI.HasCredentials() {
		slog.Warn("AI provider has no credentials; AI stages will fail", "provider", aiProvider.Name())
	}
	slog.Info("AI provider initialized", "provider", aiProvider.Name())
	embedder := ai.NewCachingEmbedder(aiProvider, redisCache, embeddingModel(cfg.AI), embeddingCacheTTL)

	// 6. Material storage and text extraction
	blobs, err := blob.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("create blob store: %w", err)
	}
	defer blobs.Close()

	var processor extract.Processor
	if cfg.Storage.DocumentAIEnabled() {
		docAI, err := extract.NewDocumentAI(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("create document ai client: %w", err)
		}
		defer docAI.Close()
		processor = docAI
		slog.Info("document ai enabled", "location", cfg.Storage.DocumentAILocation)
	} else {
		slog.Warn("document ai not configured; only text and markdown materials are supported")
	}

	// 7. Dispatcher, metrics and pipeline
	pgStore := store.NewPostgresStore(pool)
	dispatcher, err := dispatch.New(cfg.Dispatch, redisClient, pgStore)
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	m := metrics.New()

	runner, err := pipeline.NewRunner(pipeline.Deps{
		Store:          pgStore,
		Extractor:      extract.NewService(blobs, processor),
		Generator:      aiProvider,
		Embedder:       embedder,
		Dispatcher:     dispatcher,
		Cache:          redisCache,
		Metrics:        m,
		Config:         cfg.Pipeline,
		StatusTTL:      cfg.Redis.JobStatusTTL,
		HasCredentials: cfg.AI.HasCredentials(),
	})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	defer runner.Close()

	// 8. Build router with dependencies
	auth := mw.NewInternalAuth(cfg.Server.InternalTokenHash)
	if !auth.Enabled() {
		slog.Warn("internal auth disabled; job endpoints accept unauthenticated requests")
	}
	router := newRouter(runner, pgStore, redisCache, auth, m)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Stage requests hold the connection for the whole stage.
		WriteTimeout: cfg.Pipeline.StageTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if w, ok := dispatcher.(interface{ Wait(context.Context) error }); ok {
		if err := w.Wait(shutdownCtx); err != nil {
			slog.Warn("in-flight dispatches abandoned", "error", err)
		}
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newRouter wires one job handler per job type plus health and polling.
func newRouter(runner handler.Runner, s store.Store, c cache.Cache, auth *mw.InternalAuth, m *metrics.Metrics) http.Handler {
	jobHandlers := make(map[models.JobType]http.HandlerFunc, len(models.JobTypes))
	for _, jobType := range models.JobTypes {
		jobHandlers[jobType] = handler.NewJobHandler(runner, jobType)
	}

	return api.NewRouter(api.Dependencies{
		Auth:          auth,
		Metrics:       m,
		HealthHandler: handler.NewHealthHandler(s, c),
		GetJobHandler: handler.NewGetJobHandler(s, c),
		JobHandlers:   jobHandlers,
	})
}

// embeddingModel names the model whose vectors the embedding cache holds.
func embeddingModel(cfg config.AIConfig) string {
	if cfg.Provider == "ollama" {
		return cfg.Ollama.EmbeddingModel
	}
	return cfg.OpenAI.EmbeddingModel
}

// secrets lists configured credentials the log handler masks.
func secrets(cfg *config.Config) []string {
	return []string{
		cfg.AI.OpenAI.APIKey,
		cfg.AI.Anthropic.APIKey,
		cfg.Dispatch.InternalToken,
	}
}
