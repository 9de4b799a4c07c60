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
	"golang.org/x/crypto/bcrypt"

	"storefront/backend/internal/cache"
	"storefront/backend/internal/config"
	"storefront/backend/internal/domain"
	"storefront/backend/internal/httpapi"
	"storefront/backend/internal/logging"
	"storefront/backend/internal/recommendation"
	"storefront/backend/internal/service"
	"storefront/backend/internal/store"
	"storefront/backend/internal/store/memory"
	pgstore "storefront/backend/internal/store/postgres"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serveCmd := newServeCmd()
	root := &cobra.Command{
		Use:          "server",
		Short:        "Storefront backend",
		SilenceUsage: true,
		RunE:         serveCmd.RunE,
	}
	root.AddCommand(serveCmd, newReportCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger, err := logging.New(cfg.Env)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			if err := validateSecurityConfig(cfg); err != nil {
				logger.Error("invalid security configuration", zap.Error(err))
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

type closer func() error

// openRepository picks postgres when DATABASE_URL is set and the seeded
// in-memory store otherwise.
func openRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Repository, []closer, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("repository: in-memory")
		return memory.NewSeeded(logger), nil, nil
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing in-memory fallback: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := seedAdmin(ctx, pg, cfg.SeedAdminPassword); err != nil {
		_ = pg.Close()
		return nil, nil, err
	}
	logger.Info("repository: postgres")
	return pg, []closer{pg.Close}, nil
}

func seedAdmin(ctx context.Context, repo store.Repository, password string) error {
	if password == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	err = repo.CreateUser(ctx, domain.UserAccount{
		Username:  "admin",
		Password:  string(hash),
		Role:      domain.RoleAdmin,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil && !errors.Is(err, store.ErrDuplicateUser) {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}

func newRecommender(ctx context.Context, cfg config.Config, logger *zap.Logger) (*recommendation.Engine, []closer) {
	var closers []closer

	cacheStore := cache.RecommendationCache(cache.NoopRecommendationCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisRecommendationCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop cache", zap.Error(err))
			_ = redisCache.Close()
		} else {
			cacheStore = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		logger.Info("cache: noop")
	}

	var suggester recommendation.Suggester
	if cfg.GeminiAPIKey != "" {
		gemini, err := recommendation.NewGeminiSuggester(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("gemini unavailable, using category suggester", zap.Error(err))
		} else {
			suggester = gemini
			logger.Info("suggester: gemini", zap.String("model", cfg.GeminiModel))
		}
	}

	engine := recommendation.NewEngine(
		suggester,
		cacheStore,
		time.Duration(cfg.RecommendationTTLSeconds)*time.Second,
		time.Duration(cfg.RecommendationTimeoutSeconds)*time.Second,
		logger,
	)
	return engine, closers
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	repo, closers, err := openRepository(startCtx, cfg, logger)
	if err != nil {
		logger.Error("open repository", zap.Error(err))
		return err
	}
	recommender, cacheClosers := newRecommender(startCtx, cfg, logger)
	closers = append(closers, cacheClosers...)

	svc := service.New(repo, recommender, logger)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("storefront backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	var runErr error
	select {
	case <-sig:
	case err, ok := <-serverErr:
		if ok {
			logger.Error("server error", zap.Error(err))
			runErr = err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
	return runErr
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
