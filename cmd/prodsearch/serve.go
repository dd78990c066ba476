package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/prodsearch/internal/catalog"
	"github.com/kailas-cloud/prodsearch/internal/config"
	"github.com/kailas-cloud/prodsearch/internal/db"
	dbRedis "github.com/kailas-cloud/prodsearch/internal/db/redis"
	"github.com/kailas-cloud/prodsearch/internal/domain"
	"github.com/kailas-cloud/prodsearch/internal/engine"
	logpkg "github.com/kailas-cloud/prodsearch/internal/logger"
	"github.com/kailas-cloud/prodsearch/internal/metrics"
	"github.com/kailas-cloud/prodsearch/internal/provider"
	budgetrepo "github.com/kailas-cloud/prodsearch/internal/repository/budget"
	chiTransport "github.com/kailas-cloud/prodsearch/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/prodsearch/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/prodsearch/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/prodsearch/internal/usecase/health"
	recommenduc "github.com/kailas-cloud/prodsearch/internal/usecase/recommend"
	usageuc "github.com/kailas-cloud/prodsearch/internal/usecase/usage"
	"github.com/kailas-cloud/prodsearch/internal/version"
)

const (
	budgetDailyTTL   = 48 * time.Hour
	budgetMonthlyTTL = 62 * 24 * time.Hour
)

func serveCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Load the catalog, start listening and embed every variant in the background.
Search endpoints answer 503 until the index is built.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, env, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			return runServe(cfg, env)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "path to a .env file loaded before the config")

	return cmd
}

func runServe(cfg config.Config, env string) error {
	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	build := version.Get()
	logger.Info("Starting prodsearch API server",
		zap.String("version", build.Version),
		zap.String("commit", build.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("catalog", cfg.Catalog.Path),
		zap.String("provider", cfg.Embedding.Provider),
	)

	// Explicit registration, no init()
	metrics.RegisterAll()

	// Cancelled on SIGINT/SIGTERM; the index build and the server both stop with it.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Optional Redis store for budget counters
	var store db.Store
	if cfg.BudgetStore.Enabled() {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.BudgetStore.Addrs,
			Username: cfg.BudgetStore.Username,
			Password: cfg.BudgetStore.Password,
			DB:       cfg.BudgetStore.DB,
		})
		if err != nil {
			return fmt.Errorf("create budget store: %w", err)
		}
		defer store.Close()

		timeout := time.Duration(cfg.BudgetStore.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, timeout); err != nil {
			return fmt.Errorf("budget store not ready: %w", err)
		}
		logger.Info("Connected to budget store", zap.Strings("addrs", cfg.BudgetStore.Addrs))
	}

	budget, err := newBudget(ctx, cfg, store, logger)
	if err != nil {
		return err
	}

	// Pass nil interface (not typed nil pointer) if budget is not configured.
	var budgetChecker embeddinguc.BudgetChecker
	var budgetReader usageuc.BudgetReader
	if budget != nil {
		budgetChecker = budget
		budgetReader = budget
	}

	prov, err := provider.New(ctx, cfg.Embedding, budgetChecker, logger)
	if err != nil {
		return fmt.Errorf("create embedding provider: %w", err)
	}
	defer closeProvider(prov, logger)

	variants, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	logger.Info("Catalog loaded", zap.Int("variants", len(variants)))

	eng := engine.New(variants, prov, logger)

	// Listen right away; /ready flips once the index is published.
	buildErr := make(chan error, 1)
	go func() {
		logger.Info("Building index", zap.String("model", prov.ModelID()))
		buildErr <- eng.BuildIndex(ctx, cfg.Embedding.BatchSize)
	}()

	recommendSvc := recommenduc.New(eng, newCompleter(cfg.LLM, logger), recommenduc.Options{
		SystemPrompt: cfg.LLM.SystemPrompt,
		Currency:     cfg.LLM.Currency,
	}, logger)
	usageSvc := usageuc.New(budgetReader)

	var pinger healthuc.StorePinger
	if store != nil {
		pinger = store
	}
	var embChecker healthuc.EmbeddingChecker
	if hc, ok := prov.(domain.HealthChecker); ok {
		embChecker = hc
	}
	healthSvc := healthuc.New(eng, pinger, embChecker)

	server := chiTransport.NewServer(eng, recommendSvc, usageSvc, healthSvc, chiTransport.Options{
		Provider:     cfg.Embedding.Provider,
		DefaultTopK:  cfg.Search.DefaultTopK,
		MaxTopK:      cfg.Search.MaxTopK,
		QueryTimeout: time.Duration(cfg.Embedding.QueryTimeoutSec) * time.Second,
	}, logger)

	handler := chiTransport.NewRouter(server, chiTransport.RouterConfig{
		APIKeys:     cfg.Auth.APIKeys,
		CORSOrigins: cfg.HTTP.CORSOrigins,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	runErr := awaitShutdown(ctx, buildErr, serveErr, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	if runErr != nil {
		logger.Error("Server stopped", zap.Error(runErr))
		return runErr
	}
	logger.Info("Server stopped gracefully")
	return nil
}

// awaitShutdown blocks until ctx is cancelled, the index build fails or the listener dies.
// A build that ends because ctx was cancelled counts as a normal shutdown.
func awaitShutdown(ctx context.Context, build, serve <-chan error, logger *zap.Logger) error {
	for {
		select {
		case <-ctx.Done():
			logger.Info("Received shutdown signal")
			return nil
		case err := <-build:
			build = nil
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("build index: %w", err)
		case err := <-serve:
			return fmt.Errorf("http server: %w", err)
		}
	}
}

// newBudget returns nil when no limit is configured. Counters persist to store when one is given.
func newBudget(
	ctx context.Context, cfg config.Config, store db.Store, logger *zap.Logger,
) (*embeddinguc.BudgetTracker, error) {
	b := cfg.Embedding.Budget
	if !b.Enabled() {
		return nil, nil
	}
	action, err := embeddinguc.ParseBudgetAction(b.Action)
	if err != nil {
		return nil, fmt.Errorf("budget action: %w", err)
	}
	tracker := embeddinguc.NewBudgetTracker(cfg.Embedding.Provider, b.DailyTokenLimit, b.MonthlyTokenLimit, action, logger)
	if store != nil {
		tracker.WithStore(ctx, budgetrepo.New(store, budgetDailyTTL, budgetMonthlyTTL))
	}
	logger.Info("Embedding budget enabled",
		zap.Int64("daily_limit", b.DailyTokenLimit),
		zap.Int64("monthly_limit", b.MonthlyTokenLimit),
		zap.String("action", string(action)),
		zap.Bool("persistent", store != nil),
	)
	return tracker, nil
}

// newCompleter returns nil (recommendations disabled) unless llm.enabled is set and a key exists.
func newCompleter(cfg config.LLMConfig, logger *zap.Logger) recommenduc.Completer {
	if !cfg.Enabled {
		logger.Info("Recommendations disabled by config")
		return nil
	}
	chat, err := openaiTransport.NewChatClient(&openaiTransport.ChatConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
		Logger:      logger,
	})
	if err != nil {
		logger.Warn("Recommendations disabled", zap.Error(err))
		return nil
	}
	logger.Info("Recommendations enabled", zap.String("model", chat.Model()))
	return chat
}

func closeProvider(p domain.Provider, logger *zap.Logger) {
	c, ok := p.(interface{ Close() error })
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn("Failed to close embedding provider", zap.Error(err))
	}
}
