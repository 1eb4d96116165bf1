// bulksub-api — HTTP сервер, supervisor воркеров и планировщик сброса квоты.
//
// Использование:
//
//	bulksub-api [-config config.yaml]
//
// Без DB_URL данные хранятся в памяти процесса. REDIS_URL включает аренду
// runs между процессами, RABBITMQ_URL — события и очередь команд.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Bulksub/internal/api"
	"github.com/shaiso/Bulksub/internal/auth"
	"github.com/shaiso/Bulksub/internal/config"
	"github.com/shaiso/Bulksub/internal/domain"
	"github.com/shaiso/Bulksub/internal/lease"
	"github.com/shaiso/Bulksub/internal/mq"
	"github.com/shaiso/Bulksub/internal/orchestrator"
	"github.com/shaiso/Bulksub/internal/repo"
	"github.com/shaiso/Bulksub/internal/scheduler"
	"github.com/shaiso/Bulksub/internal/telemetry"
	"github.com/shaiso/Bulksub/internal/worker"
	"github.com/shaiso/Bulksub/internal/youtube"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulksub_api_health_requests_total",
		Help: "Total health check requests handled by bulksub-api",
	})
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config")
	flag.Parse()

	// .env опционален
	_ = godotenv.Load()

	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting bulksub-api")

	if err := run(*configPath, logger); err != nil {
		logger.Error("bulksub-api failed", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Хранилище
	store, pool, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	// OAuth и YouTube клиент
	provider := auth.New(auth.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
		Store:        store,
		Logger:       logger,
	})
	yt := youtube.New(youtube.Config{})

	// Аренда runs (Redis)
	var locker orchestrator.Locker
	if cfg.Redis.URL != "" {
		rdb, err := lease.NewClient(ctx, cfg.Redis.URL, cfg.Redis.Password)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = orchestrator.RedisLocker(newLocker(rdb, cfg, logger))
		logger.Info("connected to redis")
	}

	// События и команды (RabbitMQ)
	var (
		conn     *mq.Connection
		notifier worker.Notifier
	)
	if cfg.RabbitMQ.URL != "" {
		conn, err = mq.NewConnection(cfg.RabbitMQ.URL, logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := mq.SetupTopology(ctx, conn); err != nil {
			return err
		}
		notifier = mq.NewRunNotifier(mq.NewPublisher(conn, logger), logger)
	}

	supervisor := orchestrator.New(orchestrator.Config{
		Store: store,
		Worker: worker.Config{
			Credentials:   provider,
			Client:        yt,
			Notifier:      notifier,
			MinDelay:      cfg.Worker.MinDelay,
			DefaultDelay:  cfg.Worker.DefaultDelay,
			QuotaRecheck:  cfg.Worker.QuotaRecheck,
			CoolDown:      cfg.Worker.CoolDown,
			SuccessWindow: cfg.Worker.SuccessWindow,
		},
		Locker:  locker,
		Control: conn,
		Logger:  logger,
	})
	defer supervisor.Stop()

	var leader scheduler.Leader
	if pool != nil {
		lock := repo.NewAdvisoryLock(pool, repo.SweepLockKey)
		defer lock.Release(context.Background())
		leader = lock
	}
	sched, err := scheduler.New(scheduler.Config{
		Sweeper:  supervisor,
		Leader:   leader,
		CronExpr: cfg.Quota.ResetCron,
		Timezone: cfg.Quota.Timezone,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	reportOrphans(ctx, store, logger)

	// HTTP
	var authenticator api.Authenticator
	if cfg.HasGoogle() {
		authenticator = provider
	} else {
		logger.Warn("google oauth client is not configured, /auth is disabled")
	}
	handler := api.NewHandler(api.Config{
		Store:      store,
		Controller: supervisor,
		Auth:       authenticator,
		Logger:     logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return supervisor.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// Graceful shutdown с таймаутом
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// --- Helpers ---

// openStore подключает Postgres и применяет миграции. Без DB_URL — MemoryStore.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repo.Repository, *pgxpool.Pool, error) {
	if cfg.Database.URL == "" {
		logger.Warn("DB_URL is not set, using in-memory store")
		return repo.NewMemoryStore(), nil, nil
	}

	pool, err := repo.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := repo.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("connected to database")

	return repo.NewStore(pool), pool, nil
}

func newLocker(rdb *redis.Client, cfg *config.Config, logger *slog.Logger) *lease.Locker {
	return lease.New(rdb, lease.Config{
		TTL:    cfg.Redis.LeaseTTL,
		Logger: logger,
	})
}

// reportOrphans логирует RUNNING runs без воркера.
// Воркеры не восстанавливаются автоматически, их нужно перезапустить через start.
func reportOrphans(ctx context.Context, store repo.Repository, logger *slog.Logger) {
	runs, err := store.ListRuns(ctx, repo.RunFilter{Status: domain.RunStatusRunning, Limit: 100})
	if err != nil {
		logger.Warn("failed to list running imports", "error", err)
		return
	}
	for _, r := range runs {
		logger.Warn("import is RUNNING without a worker, restart it with start",
			"run_id", r.ID,
			"pending", r.Pending(),
		)
	}
}
