package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/zhouzirui/jelajah/backend/internal/config"
	"github.com/zhouzirui/jelajah/backend/internal/handler"
	"github.com/zhouzirui/jelajah/backend/internal/logging"
	"github.com/zhouzirui/jelajah/backend/internal/metrics"
	"github.com/zhouzirui/jelajah/backend/internal/model/chat"
	"github.com/zhouzirui/jelajah/backend/internal/service/ai"
	chatService "github.com/zhouzirui/jelajah/backend/internal/service/chat"
	"github.com/zhouzirui/jelajah/backend/internal/service/history"
	"github.com/zhouzirui/jelajah/backend/internal/service/retry"
	"github.com/zhouzirui/jelajah/backend/internal/storage/gormstore"
)

func main() {
	startedAt := time.Now()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialise logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if envErr != nil {
		logger.Info("no .env file loaded, using system environment only", zap.Error(envErr))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	store, closeStore, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to open message store", zap.Error(err))
	}
	defer closeStore()

	backend, err := newBackend(ctx, cfg.AI, logger)
	if err != nil {
		logger.Fatal("failed to initialise generation backend", zap.Error(err))
	}

	client := ai.NewClient(backend,
		ai.WithPolicy(retry.Policy{
			MaxAttempts: cfg.AI.RetryMaxAttempts,
			BaseDelay:   cfg.AI.RetryBaseDelay,
			MaxDelay:    cfg.AI.RetryMaxDelay,
			Multiplier:  2,
			Jitter:      cfg.AI.RetryJitter,
		}),
		ai.WithTimeout(cfg.AI.Timeout),
		ai.WithMaxLength(cfg.Chat.MaxMessageLength),
		ai.WithLogger(logger),
		ai.WithMetrics(m),
	)

	assembler := history.NewAssembler(store, cfg.Chat.HistoryLimit, logger)
	orchestrator := chatService.NewOrchestrator(store, assembler, client,
		chatService.WithLogger(logger),
		chatService.WithMetrics(m),
	)
	lifecycle := chatService.NewLifecycle(store, client, logger, startedAt)

	router := handler.NewRouter(handler.Dependencies{
		Config:       cfg,
		Orchestrator: orchestrator,
		Lifecycle:    lifecycle,
		Logger:       logger,
		Metrics:      m,
		Gatherer:     registry,
	})

	startServer(ctx, cfg.Server, router, logger)
}

// openStore 根据 DB_DRIVER 选择内存或 gorm 存储。
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (chat.Store, func(), error) {
	if cfg.Driver == config.DriverMemory {
		logger.Warn("using in-memory message store; history is lost on restart")
		return chat.NewMemoryStore(), func() {}, nil
	}

	db, err := gormstore.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("message store ready", zap.String("driver", cfg.Driver))

	closeFn := func() {
		if err := gormstore.Close(db); err != nil {
			logger.Warn("failed to close database", zap.Error(err))
		}
	}
	return gormstore.New(db), closeFn, nil
}

// newBackend 按 AI_PROVIDER 选择生成后端；auto 模式下初始化失败会回退到关键词回复。
func newBackend(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (ai.Backend, error) {
	backend, err := ai.NewBackend(ctx, cfg, ai.DefaultPrompt)
	if err != nil {
		if cfg.Provider != config.ProviderAuto {
			return nil, err
		}
		logger.Warn("generation backend unavailable, falling back to keyword replies",
			zap.String("provider", cfg.ResolveProvider()),
			zap.Error(err),
		)
		backend = ai.NewFallbackBackend()
	}

	logger.Info("generation backend selected", zap.String("backend", backend.Name()))
	return backend, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: serverCfg.ReadHeaderTimeout,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("jelajah chat backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv, serverCfg.ShutdownTimeout); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
