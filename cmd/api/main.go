package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/kursadbilgin/quota-dispatch/internal/config"
	"github.com/kursadbilgin/quota-dispatch/internal/domain"
	"github.com/kursadbilgin/quota-dispatch/internal/handler"
	"github.com/kursadbilgin/quota-dispatch/internal/infra/postgresql"
	"github.com/kursadbilgin/quota-dispatch/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/quota-dispatch/internal/infra/redis"
	"github.com/kursadbilgin/quota-dispatch/internal/ledger"
	"github.com/kursadbilgin/quota-dispatch/internal/observability"
	"github.com/kursadbilgin/quota-dispatch/internal/queue"
	"github.com/kursadbilgin/quota-dispatch/internal/ratelimit"
	"github.com/kursadbilgin/quota-dispatch/internal/registry"
	"github.com/kursadbilgin/quota-dispatch/internal/repository"
	"github.com/kursadbilgin/quota-dispatch/internal/service"
	"github.com/kursadbilgin/quota-dispatch/internal/transport"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var channels = []domain.Channel{domain.ChannelSMS, domain.ChannelVoice, domain.ChannelEmail}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("quota-dispatch api stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics := observability.NewMetrics()
	var checks []handler.ReadinessCheck

	var db *gorm.DB
	if strings.TrimSpace(cfg.DatabaseDSN) != "" {
		var err error
		db, err = postgresql.NewPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
		if err := migrations.Migrate(db); err != nil {
			return fmt.Errorf("database migrations failed: %w", err)
		}

		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("postgres underlying db init failed: %w", err)
		}
		defer sqlDB.Close()
		checks = append(checks, handler.SQLCheck("postgres", sqlDB))
	}

	var rdb *goredis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		var err error
		rdb, err = infraredis.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()
		checks = append(checks, handler.RedisCheck("redis", rdb))
	}

	usage, err := newLedger(cfg, db, rdb)
	if err != nil {
		return err
	}

	providers, err := cfg.Providers()
	if err != nil {
		return fmt.Errorf("failed to load providers: %w", err)
	}

	reg, err := registry.New(providers, usage, logger)
	if err != nil {
		return fmt.Errorf("failed to build provider registry: %w", err)
	}
	reg.SetMetrics(metrics)
	if err := reg.Restore(ctx); err != nil {
		return err
	}
	checks = append(checks, handler.ReadinessCheck{
		Name: "providers",
		Ping: func(context.Context) error {
			if len(reg.ListEnabled()) == 0 {
				return errors.New("no enabled providers")
			}
			return nil
		},
	})

	adapters, err := buildAdapters(cfg, providers)
	if err != nil {
		return err
	}

	var rateLimiter ratelimit.RateLimiter = ratelimit.NewLocalRateLimiter(cfg.RateLimitPerSec)
	if rdb != nil {
		rateLimiter, err = infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
		if err != nil {
			return fmt.Errorf("redis rate limiter init failed: %w", err)
		}
	}

	var jobs service.JobStore = service.NewMemoryJobStore(0)
	if db != nil {
		jobs = repository.NewGormJobRepo(db)
	}

	dispatchers := make([]*service.Dispatcher, 0, len(channels))
	for _, channel := range channels {
		d, err := service.NewDispatcher(reg, adapters, rateLimiter, service.DispatcherConfig{
			Channel:            channel,
			StrictPreferred:    cfg.StrictPreferredProvider,
			ProviderTimeout:    cfg.ProviderTimeout(),
			DefaultConcurrency: cfg.BulkConcurrency,
			DefaultDelay:       cfg.BulkDelay(),
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to build %s dispatcher: %w", channel, err)
		}
		d.SetMetrics(metrics)
		d.SetJobStore(jobs)
		dispatchers = append(dispatchers, d)
	}

	reporter, err := service.NewReporter(reg)
	if err != nil {
		return err
	}

	var bulkQueue *service.BulkQueue
	queueDone := make(chan error, 1)
	if strings.TrimSpace(cfg.RabbitMQURL) != "" {
		rmq, err := queue.NewRabbitMQ(ctx, cfg.RabbitMQURL, logger)
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		defer rmq.Close()
		checks = append(checks, handler.ReadinessCheck{Name: "rabbitmq", Ping: rmq.Ping})

		bulkQueue, err = service.NewBulkQueue(queue.NewRabbitMQPublisher(rmq), dispatchers, logger)
		if err != nil {
			return err
		}
		consumer := queue.NewRabbitMQConsumer(rmq, cfg.BulkQueuePrefetch, logger)
		go func() {
			queueDone <- bulkQueue.Run(ctx, consumer)
		}()
	} else {
		queueDone <- nil
	}

	routeDispatchers := make([]handler.MessageDispatcher, 0, len(dispatchers))
	for _, d := range dispatchers {
		routeDispatchers = append(routeDispatchers, d)
	}
	deps := handler.DispatchDeps{
		Dispatchers: routeDispatchers,
		Reporter:    reporter,
		Providers:   reg,
		Jobs:        jobs,
	}
	if bulkQueue != nil {
		deps.Queue = bulkQueue
	}

	app := fiber.New(fiber.Config{
		AppName:      "quota-dispatch",
		ErrorHandler: transport.ErrorHandler(logger),
		BodyLimit:    8 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(handler.CorrelationID())
	app.Use(metrics.HTTPMiddleware())

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, checks...)
	if err := handler.RegisterDispatchRoutes(app, deps); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(cfg.APIPort)
		logger.Info("quota-dispatch api started",
			zap.String("addr", addr),
			zap.String("ledger", cfg.LedgerBackend),
			zap.Int("providers", len(providers)),
			zap.Int("adapters", len(adapters)),
		)
		if err := app.Listen(addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("failed to shutdown gracefully: %w", err)
	}
	if err := <-queueDone; err != nil {
		logger.Error("bulk queue consumer stopped with error", zap.Error(err))
	}

	logger.Info("quota-dispatch api stopped")
	return nil
}

func newLedger(cfg *config.Config, db *gorm.DB, rdb *goredis.Client) (ledger.Ledger, error) {
	switch cfg.LedgerBackend {
	case config.LedgerBackendFile:
		return ledger.NewFileLedger(cfg.LedgerFile)
	case config.LedgerBackendRedis:
		return ledger.NewRedisLedger(rdb, "")
	case config.LedgerBackendPostgres:
		return repository.NewGormUsageRepo(db), nil
	case config.LedgerBackendMemory:
		return ledger.NewMemoryLedger(), nil
	default:
		return nil, fmt.Errorf("%w: unknown LEDGER_BACKEND %q", domain.ErrValidation, cfg.LedgerBackend)
	}
}
