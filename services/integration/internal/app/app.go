package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/raqmix/kippis-possync/pkg/database"
	"github.com/raqmix/kippis-possync/pkg/health"
	pkgkafka "github.com/raqmix/kippis-possync/pkg/kafka"
	"github.com/raqmix/kippis-possync/pkg/tracing"
	"github.com/raqmix/kippis-possync/services/integration/internal/config"
	"github.com/raqmix/kippis-possync/services/integration/internal/credential"
	"github.com/raqmix/kippis-possync/services/integration/internal/event"
	handler "github.com/raqmix/kippis-possync/services/integration/internal/handler/http"
	"github.com/raqmix/kippis-possync/services/integration/internal/provider"
	"github.com/raqmix/kippis-possync/services/integration/internal/repository/postgres"
	rediscache "github.com/raqmix/kippis-possync/services/integration/internal/repository/redis"
	"github.com/raqmix/kippis-possync/services/integration/internal/service"
	"github.com/raqmix/kippis-possync/services/integration/migrations"
)

const (
	serviceName       = "integration"
	consumerGroup     = "integration-service-sync-requested"
	idempotencyPrefix = "possync:idempotency:integration:"
)

// App wires together all dependencies and runs the integration service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	syncRequested  *pkgkafka.Consumer
	scheduler      *scheduler
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	// background counts scheduler loops and HTTP-triggered runs; stopRuns
	// cancels the latter.
	background *sync.WaitGroup
	stopRuns   context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracingCfg := cfg.Tracing
	tracingCfg.ServiceName = serviceName
	tracerShutdown, err := tracing.InitTracer(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pool, err := database.NewPostgresPool(ctx, &cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.Postgres.Host),
		slog.Int("port", cfg.Postgres.Port),
		slog.String("database", cfg.Postgres.DBName),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	// Redis is optional: without it credentials are read from PostgreSQL and
	// Kafka idempotency keys are kept in memory.
	var rdb *goredis.Client
	if cfg.Redis.Enabled() {
		rdb, err = database.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache",
				slog.String("addr", cfg.Redis.Addr()),
				slog.String("error", err.Error()),
			)
			rdb = nil
		} else {
			logger.Info("connected to Redis", slog.String("addr", cfg.Redis.Addr()))
		}
	}

	// Credential store and provider client.
	var storeOpts []credential.Option
	if rdb != nil {
		storeOpts = append(storeOpts, credential.WithCache(rediscache.NewCredentialCache(rdb)))
	}
	credentials := credential.NewStore(postgres.NewCredentialRepository(pool), logger, storeOpts...)

	client, err := provider.NewClient(cfg.Provider, credentials, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create provider client: %w", err)
	}
	logger.Info("provider client initialized",
		slog.String("mode", string(client.Mode())),
		slog.String("base_url", cfg.Provider.Active().BaseURL),
	)

	// Kafka is optional as well.
	var (
		producer *pkgkafka.Producer
		syncOpts []service.SyncOption
	)
	if cfg.KafkaEnabled() {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
			logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
		syncOpts = append(syncOpts, service.WithPublisher(event.NewProducer(producer, logger)))
	}

	// Build the dependency graph.
	branchRepo := postgres.NewBranchRepository(pool)
	reconciler := service.NewBranchReconciler(branchRepo, logger)
	syncService := service.NewSyncService(client, reconciler, postgres.NewSyncRunRepository(pool), logger, syncOpts...)
	branchService := service.NewBranchService(branchRepo, logger)

	for _, et := range cfg.ScheduledEntityTypes() {
		if !slices.Contains(syncService.EntityTypes(), et) {
			pool.Close()
			return nil, fmt.Errorf("SYNC_ENTITY_TYPES: unknown entity type %q", et)
		}
	}
	bounded := boundedSyncer{next: syncService, timeout: cfg.SyncRunTimeout()}

	// Set up the Kafka consumer for sync requests.
	var syncRequested *pkgkafka.Consumer
	if cfg.KafkaEnabled() {
		var idempotencyStore pkgkafka.IdempotencyStore
		if rdb != nil {
			idempotencyStore = pkgkafka.NewRedisIdempotencyStore(rdb, idempotencyPrefix, cfg.IdempotencyTTL())
		} else {
			idempotencyStore = pkgkafka.NewMemoryIdempotencyStore(cfg.IdempotencyTTL())
		}
		eventConsumer := event.NewConsumer(bounded, logger)
		syncRequested = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:   cfg.KafkaBrokers,
			GroupID:   consumerGroup,
			Topic:     event.TopicSyncRequested,
			MinBytes:  1,
			MaxBytes:  10e6,
			EnableDLQ: true,
		}, pkgkafka.IdempotentHandler(idempotencyStore, eventConsumer.HandleSyncRequested, logger), logger)
	}

	var sched *scheduler
	if interval := cfg.SyncInterval(); interval > 0 {
		sched = &scheduler{
			syncer:      bounded,
			entityTypes: cfg.ScheduledEntityTypes(),
			interval:    interval,
			logger:      logger,
		}
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if rdb != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	if producer != nil {
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return producer.Ping(ctx)
		})
	}

	healthHandler.RegisterNonCritical("provider", client.CheckCircuit)

	// HTTP router.
	background := &sync.WaitGroup{}
	runsLifetime, stopRuns := context.WithCancel(context.Background())
	router := handler.NewRouter(syncService, branchService, healthHandler,
		handler.RouterConfig{APIToken: cfg.APIToken, PprofAllowedCIDRs: cfg.PprofAllowedCIDRs},
		logger,
		handler.WithRunTimeout(cfg.SyncRunTimeout()),
		handler.WithRunLifetime(runsLifetime, background))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.SyncRunTimeout() + 30*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          rdb,
		producer:       producer,
		syncRequested:  syncRequested,
		scheduler:      sched,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
		background:     background,
		stopRuns:       stopRuns,
	}, nil
}

// Run starts the HTTP server, the Kafka consumer and the scheduler, then
// blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Start Kafka consumer.
	if a.syncRequested != nil {
		go func() {
			if err := a.syncRequested.Start(ctx); err != nil {
				errCh <- fmt.Errorf("sync requested consumer: %w", err)
			}
		}()
	}

	// Start scheduled syncs.
	if a.scheduler != nil {
		a.background.Add(1)
		go func() {
			defer a.background.Done()
			a.scheduler.Run(ctx)
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		cancel()
		a.logger.Error("component failed, shutting down", slog.String("error", err.Error()))
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Scheduled and HTTP-triggered syncs (cancel, then wait for them to record their result)
// 3. Tracer (flush pending spans)
// 4. Kafka consumer and producer
// 5. Redis client
// 6. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. A cancelled run stops at its next provider call and still finishes
	// its sync_runs row, so storage must stay open until it returns.
	a.stopRuns()
	a.background.Wait()

	// 3. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Close Kafka consumer and producer.
	if a.syncRequested != nil {
		if err := a.syncRequested.Close(); err != nil {
			a.logger.Error("sync requested consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 5. Close Redis.
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 6. Close PostgreSQL pool.
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		err := producer.Ping(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < 2 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
			wait := base + jitter
			logger.Warn("kafka producer ping failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", 3),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
