package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"mail-market/internal/alert"
	"mail-market/internal/auth"
	"mail-market/internal/config"
	"mail-market/internal/events"
	apphttp "mail-market/internal/http"
	"mail-market/internal/inventory"
	"mail-market/internal/jobs"
	"mail-market/internal/payment"
	"mail-market/internal/ratelimit"
	"mail-market/internal/repository"
	"mail-market/internal/repository/postgres"
	"mail-market/internal/repository/sqlite"
	"mail-market/internal/service"
	"mail-market/internal/storage"
)

type repositories struct {
	users     repository.UserRepository
	deposits  repository.DepositRepository
	purchases repository.PurchaseRepository
	settings  repository.SettingsRepository
	close     func()
}

// initSchema creates tables in dependency order; deposits and purchases
// reference users.
func (r *repositories) initSchema(ctx context.Context) error {
	steps := []struct {
		name string
		repo interface{ Init(context.Context) error }
	}{
		{"user", r.users},
		{"deposit", r.deposits},
		{"purchase", r.purchases},
		{"settings", r.settings},
	}
	for _, step := range steps {
		if err := step.repo.Init(ctx); err != nil {
			return fmt.Errorf("init %s repository: %w", step.name, err)
		}
	}
	return nil
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	prices, _ := cfg.PriceList()
	minAmount, methodMinimums, _ := cfg.DepositMinimums()
	if len(prices) == 0 {
		logger.Warn("price list is empty, every purchase will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer repos.close()

	if err := repos.initSchema(ctx); err != nil {
		logger.Fatalf("%v", err)
	}

	archive, err := buildArchive(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}
	publisher := buildPublisher(cfg, logger)
	defer publisher.Close()

	provider := inventory.NewClient(inventory.Config{
		BaseURL:      cfg.Inventory.BaseURL,
		ClientKey:    cfg.Inventory.ClientKey,
		StockPath:    cfg.Inventory.StockPath,
		AllocatePath: cfg.Inventory.AllocatePath,
		Timeout:      cfg.Inventory.Timeout,
		Logger:       logger,
	})

	var gateway payment.Gateway
	if cfg.Payment.APIKey != "" {
		gateway = payment.NewClient(cfg.Payment.BaseURL, cfg.Payment.APIKey, 30*time.Second)
	} else {
		logger.Warn("payment.api_key not set, automatic checkout disabled")
	}

	alerts := alert.NewNotifier(logger, publisher, archive)
	userService := service.NewUserService(repos.users)
	purchaseService := service.NewPurchaseService(service.PurchaseDeps{
		Users:     repos.users,
		Purchases: repos.purchases,
		Inventory: provider,
		Prices:    prices,
		Alerts:    alerts,
		Events:    publisher,
		Archive:   archive,
		Logger:    logger,
	})
	depositService := service.NewDepositService(repos.deposits, repos.users, service.DepositPolicy{
		MinAmount:       minAmount,
		MethodMinimums:  methodMinimums,
		ReferenceExempt: cfg.Deposit.ReferenceExemptMethods,
	}, publisher, logger)
	paymentService := service.NewPaymentService(repos.settings, repos.users, depositService, gateway, alerts, cfg.Payment.AppBaseURL, logger)

	limiter, closeLimiter := buildLimiter(ctx, cfg, logger)
	defer closeLimiter()

	scheduler := jobs.NewScheduler(jobs.NewJobs(depositService, cfg.Jobs.CheckoutTTL, logger), logger, cfg.Jobs.ExpirySchedule)
	if err := scheduler.Start(); err != nil {
		logger.Fatalf("start scheduler: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(apphttp.Deps{
		Users:      userService,
		Purchases:  purchaseService,
		Deposits:   depositService,
		Payments:   paymentService,
		Tokens:     auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Limiter:    limiter,
		Archive:    archive,
		AdminKey:   cfg.Auth.AdminKey,
		CORSOrigin: cfg.Server.CORSOrigin,
		Logger:     logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("scheduled jobs still running at shutdown")
	}

	logger.Info("bye")
}

func openRepositories(ctx context.Context, cfg config.Config) (*repositories, error) {
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		return &repositories{
			users:     postgres.NewUserRepository(pool),
			deposits:  postgres.NewDepositRepository(pool),
			purchases: postgres.NewPurchaseRepository(pool),
			settings:  postgres.NewSettingsRepository(pool),
			close:     pool.Close,
		}, nil
	default:
		if dir := filepath.Dir(cfg.Database.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		return &repositories{
			users:     sqlite.NewUserRepository(db),
			deposits:  sqlite.NewDepositRepository(db),
			purchases: sqlite.NewPurchaseRepository(db),
			settings:  sqlite.NewSettingsRepository(db),
			close:     func() { db.Close() },
		}, nil
	}
}

func buildArchive(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Archive, error) {
	if cfg.Storage.Bucket == "" {
		logger.Warn("storage.bucket not set, receipts and orphaned allocations are kept in memory only")
		return storage.NewMemoryArchive(), nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Archive(client, cfg.Storage.Bucket, cfg.Storage.KeyPrefix)
}

func buildPublisher(cfg config.Config, logger *logrus.Logger) events.Publisher {
	if cfg.RabbitMQ.URL == "" {
		return &events.LogPublisher{Logger: logger}
	}
	p, err := events.NewAMQPPublisher(cfg.RabbitMQ.URL, events.Exchange)
	if err != nil {
		logger.WithError(err).Warn("rabbitmq unavailable, events will only be logged")
		return &events.LogPublisher{Logger: logger}
	}
	logger.Infof("publishing events to exchange %s", events.Exchange)
	return p
}

func buildLimiter(ctx context.Context, cfg config.Config, logger *logrus.Logger) (ratelimit.Limiter, func()) {
	perMinute := cfg.RateLimit.PurchasePerMinute
	if perMinute <= 0 {
		return nil, func() {}
	}
	if cfg.Redis.URL == "" {
		return ratelimit.NewMemoryLimiter(perMinute), func() {}
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.WithError(err).Warn("invalid redis url, using in-process rate limiting")
		return ratelimit.NewMemoryLimiter(perMinute), func() {}
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).Warn("redis unreachable, using in-process rate limiting")
		client.Close()
		return ratelimit.NewMemoryLimiter(perMinute), func() {}
	}
	return ratelimit.NewRedisLimiter(client, "mail_market:rate_limit", perMinute, time.Minute), func() { client.Close() }
}
