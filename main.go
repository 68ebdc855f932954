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

	"taskhub/backend/internal/config"
	"taskhub/backend/internal/database"
	"taskhub/backend/internal/monitoring"
	"taskhub/backend/internal/notify"
	"taskhub/backend/internal/router"
	"taskhub/backend/internal/services"
	"taskhub/backend/internal/storage"
	"taskhub/backend/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm/logger"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "optional YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadConfigFile(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := mustMakeLogger(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	log.Info("starting taskhub backend", "environment", cfg.Server.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.worker != nil {
		app.worker.Start(cfg.Worker.Concurrency)
	}

	server := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      app.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		log.Debug("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown", "error", err)
		}
	}()

	log.Info("http server is running", "address", server.Addr, "storage", app.storage.Name(), "redis", app.redis != nil)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

type application struct {
	handler http.Handler
	db      *database.DatabasePool
	redis   *redis.Client
	storage storage.Backend
	worker  *worker.Worker
	log     *slog.Logger
}

// buildApp wires every component from cfg. Redis is optional: without it
// notifications are disabled and attachments are released inline.
func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	app := &application{log: log}

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.GetDatabaseDSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		LogLevel:        gormLogLevel(cfg.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	app.db = pool

	if err := pool.Migrate(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}

	backend, err := storage.New(ctx, cfg, log)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	app.storage = backend

	monitor := monitoring.NewMonitor()
	monitor.RegisterHealthCheck("database", pool.Ping)
	monitor.RegisterStats("database", pool.Stats)

	inline := worker.NewInlineReleaser(backend, log)
	var releaser services.AttachmentReleaser = inline
	var publisher notify.Publisher = notify.Noop{}
	var subscriber notify.Subscriber

	if cfg.RedisEnabled() {
		client, err := database.NewRedisClient(ctx, cfg)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.redis = client
		monitor.RegisterHealthCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})

		notifier := notify.NewRedisNotifier(client, nil, log)
		publisher, subscriber = notifier, notifier
		monitor.RegisterStats("notifications", notifier.Breaker().Stats)
		monitor.RegisterHealthCheck("notifications", func(context.Context) error {
			if state := notifier.Breaker().State(); state == notify.BreakerOpen {
				return fmt.Errorf("publish circuit is %s", state)
			}
			return nil
		})

		queue := worker.NewJobQueue(client, cfg.Worker.MaxTries)
		releaser = worker.NewQueueReleaser(queue, inline, log)

		app.worker = worker.NewWorker(worker.WorkerConfig{
			RedisClient:  client,
			Queues:       cfg.Worker.Queues,
			PollInterval: cfg.Worker.PollInterval,
			Logger:       log,
		})
		app.worker.RegisterHandler(worker.JobReleaseAttachment, worker.ReleaseHandler(backend))
	}

	tokens := services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL)
	deps := router.Dependencies{
		Config: cfg,
		Logger: log,
		Tokens: tokens,
		Auth: services.NewAuthService(pool.DB, tokens, services.AuthOptions{
			BCryptCost:      cfg.Auth.BCryptCost,
			AllowRoleSignup: cfg.Auth.AllowRoleSignup,
		}, log),
		Tasks:      services.NewTaskService(pool.DB, backend, releaser, log),
		Groups:     services.NewGroupService(pool.DB, publisher, log),
		Monitor:    monitor,
		Subscriber: subscriber,
	}
	if local, ok := backend.(*storage.LocalBackend); ok {
		deps.UploadDir = local.Dir()
	}

	app.handler = router.New(deps)
	return app, nil
}

func (a *application) Close() {
	if a.worker != nil {
		a.worker.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("failed to close redis connection", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error("failed to close db connection", "error", err)
		}
	}
}

func gormLogLevel(levelStr string) logger.LogLevel {
	switch levelStr {
	case "DEBUG":
		return logger.Info
	case "ERROR":
		return logger.Error
	default:
		return logger.Warn
	}
}

func mustMakeLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
