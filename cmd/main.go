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

	"github.com/redis/go-redis/v9"

	"github.com/okian/frameit/internal/adapters/http/api"
	"github.com/okian/frameit/internal/adapters/http/swagger"
	eventqueue "github.com/okian/frameit/internal/adapters/mq/queue"
	"github.com/okian/frameit/internal/adapters/repository"
	service "github.com/okian/frameit/internal/app"
	"github.com/okian/frameit/internal/config"
	"github.com/okian/frameit/internal/domain/progression"
	"github.com/okian/frameit/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	serviceMetricsInterval = 5 * time.Second
	postgresConnLifetime   = 30 * time.Minute
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		os.Stderr.WriteString("frameit: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.WithLevel(cfg.LogLevel), logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}

	q, closeQueue := buildQueue(cfg)
	defer closeQueue()

	svc := service.New(serviceOptions(cfg, store, q, log)...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startServiceMetricsUpdater(ctx, svc)

	apiServer := api.NewServer(svc,
		api.WithMaxLimit(cfg.MaxLeaderboardLimit),
		api.WithLogger(log.Named("http")),
		api.WithRoutes(swagger.Register),
	)
	srv := newHTTPServer(cfg.Addr, apiServer.Router())

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store", cfg.Store),
			logger.String("queue", cfg.QueueBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// buildStore opens the configured persistence backend. The postgres schema
// is migrated before the store is handed out.
func buildStore(ctx context.Context, cfg *config.Config) (repository.Gateway, error) {
	if cfg.Store != config.BackendPostgres {
		return nil, nil
	}
	pool, err := repository.NewPool(ctx, cfg.PostgresDSN, repository.PoolConfig{
		MaxConns:        cfg.PostgresMaxConns,
		MaxConnLifetime: postgresConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store := repository.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return store, nil
}

// buildQueue returns the configured event queue and a func releasing what
// the queue does not own. A nil queue selects the in-memory default.
func buildQueue(cfg *config.Config) (eventqueue.Queue, func()) {
	if cfg.QueueBackend != config.BackendRedis {
		return nil, func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	q := eventqueue.NewRedisQueue(rdb,
		eventqueue.WithRedisKey(cfg.RedisQueueKey),
		eventqueue.WithRedisCapacity(cfg.QueueSize),
	)
	return q, func() { _ = rdb.Close() }
}

// serviceOptions translates configuration into service options.
func serviceOptions(cfg *config.Config, store repository.Gateway, q eventqueue.Queue, log logger.Logger) []service.Option {
	curve := progression.NewCurve(
		progression.WithBaseXP(cfg.BaseXP),
		progression.WithGrowth(cfg.GrowthFactor),
		progression.WithMilestones(cfg.LevelMilestones...),
	)
	opts := []service.Option{
		service.WithLogger(log.Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithCurve(curve),
		service.WithUpvoteReward(cfg.UpvoteXPReward),
		service.WithRepairInterval(cfg.RepairInterval),
		service.WithMaxTeamMembers(cfg.MaxTeamMembers),
	}
	if store != nil {
		opts = append(opts, service.WithGateway(store))
	}
	if q != nil {
		opts = append(opts, service.WithQueue(q))
	}
	return opts
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// startServiceMetricsUpdater refreshes service gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats updates the gauges as a side effect.
			_ = svc.GetStats()
		}
	}
}
