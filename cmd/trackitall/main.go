package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"

	"trackitall/internal/auth"
	"trackitall/internal/backend"
	"trackitall/internal/blob"
	"trackitall/internal/cache"
	"trackitall/internal/cli"
	"trackitall/internal/config"
	"trackitall/internal/core"
	apphttp "trackitall/internal/http"
	applog "trackitall/internal/log"
	"trackitall/internal/metrics"
	"trackitall/internal/services"
	"trackitall/internal/storage"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig((*config.Config).Validate)
	if err != nil {
		cli.Fatal(applog.New(applog.DefaultConfig()), "Configuration validation failed", err)
	}
	logger := cli.NewLogger(cfg)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		cli.Fatal(logger, "Server failed", err)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	clk := clock.WallClock
	m := metrics.NewCollector()
	reg, err := cli.NewRegistry(m)
	if err != nil {
		return err
	}

	db, err := storage.Open(ctx, cfg.SQLiteDBPath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.SQLiteDBPath, err)
	}
	defer db.Close()

	backendCfg, err := backend.FromAppConfig(cfg, db)
	if err != nil {
		return err
	}
	source, err := backend.NewFactory(logger).CreateCategorySource(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("create category source: %w", err)
	}
	if source.Cleanup != nil {
		defer func() {
			if err := source.Cleanup(); err != nil {
				logger.Warn("Category source cleanup failed", applog.FieldError, err)
			}
		}()
	}

	caches := cache.NewManager(clk, logger)
	categoryCache := cache.NewLRUCache[[]core.Category](1, cfg.CategoryCacheTTL(), clk)
	urlCache := cache.NewLRUCache[string](cfg.CacheMaxEntries, cfg.ReceiptURLCacheTTL, clk)
	caches.Register(categoryCache)
	caches.Register(urlCache)
	caches.StartCleanup(cfg.CacheCleanupInterval)
	defer caches.Stop()

	categories := services.NewCategoryProvider(source.Source, categoryCache, clk, services.CategoryProviderConfig{
		RefreshInterval: cfg.CategoryRefreshInterval,
		CacheMargin:     cfg.CategoryCacheMargin,
	}, m, logger)
	if err := categories.Start(ctx); err != nil {
		return fmt.Errorf("start category provider: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := categories.Stop(stopCtx); err != nil {
			logger.Warn("Category provider did not stop cleanly", applog.FieldError, err)
		}
	}()

	blobs, err := blob.New(ctx, blob.Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		UsePathStyle:    cfg.S3UsePathStyle,
	}, logger)
	if err != nil {
		return fmt.Errorf("create blob store: %w", err)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		return err
	}

	queue, err := cli.ConnectAMQP(cfg, logger)
	if err != nil {
		return err
	}
	defer queue.Close()

	resolver, err := newResolver(ctx, cfg, clk, logger)
	if err != nil {
		return err
	}

	expenses := services.NewExpenseService(storage.NewExpenseRepository(db), categories, clk, m, logger)
	receipts := services.NewReceiptService(blobs, urlCache, services.ReceiptConfig{
		URLValidity: cfg.ReceiptURLValidity,
		CacheTTL:    cfg.ReceiptURLCacheTTL,
	}, m, logger)
	accounts := services.NewAccountService(storage.NewOnboardingRepository(db), queue, services.AccountQueues{
		Signup: cfg.SignupQueue,
		Report: cfg.ReportQueue,
	}, m, logger)

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Expenses: expenses,
		Receipts: receipts,
		Accounts: accounts,
		Auth:     resolver,
		Readiness: map[string]apphttp.Checker{
			"storage": db.Ping,
			"amqp":    func(context.Context) error { return queue.Ping() },
			"categories": func(context.Context) error {
				if len(categories.Categories()) == 0 {
					return errors.New("category cache is empty")
				}
				return nil
			},
		},
		Gatherer:           reg,
		Metrics:            m,
		TrustedProxies:     cfg.TrustedProxies,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		MaxUploadSize:      cfg.ReceiptMaxUploadSize,
		Clock:              clk,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	logger.Info("Starting trackitall server",
		"port", cfg.Port,
		"category_source", cfg.CategorySource,
		applog.FieldOperation, applog.OpStartup)
	return cli.ServeUntilDone(ctx, &srv.Server, srv.Shutdown, shutdownTimeout)
}

// newResolver verifies bearer tokens against the JWKS. The header resolver
// is only used when AUTH_MODE=dev was set explicitly.
func newResolver(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *applog.Logger) (auth.RequestResolver, error) {
	if cfg.AuthMode == config.AuthModeDev {
		logger.WithComponent(applog.ComponentAuth).Warn("AUTH_MODE=dev, trusting X-Principal-* headers; do not expose this instance")
		return auth.HeaderResolver{AdminRole: cfg.AdminRole}, nil
	}
	v, err := auth.NewJWKSVerifier(ctx, auth.Config{
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		JWKSURL:    cfg.JWKSURL,
		AdminRole:  cfg.AdminRole,
		RolesClaim: cfg.RolesClaim,
	}, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("create token verifier: %w", err)
	}
	return auth.Bearer(v), nil
}
