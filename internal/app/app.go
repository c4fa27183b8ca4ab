// Package app wires configuration, storage, messaging and HTTP into a
// runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"flowtrack/backend/internal/cache"
	"flowtrack/backend/internal/config"
	"flowtrack/backend/internal/database"
	"flowtrack/backend/internal/eventbus"
	"flowtrack/backend/internal/handlers"
	"flowtrack/backend/internal/logging"
	"flowtrack/backend/internal/middleware"
	"flowtrack/backend/internal/monitoring"
	"flowtrack/backend/internal/realtime"
	"flowtrack/backend/internal/repositories"
	"flowtrack/backend/internal/services"
	"flowtrack/backend/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	healthTimeout   = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

type App struct {
	cfg     *config.Config
	pool    *database.DatabasePool
	redis   *redis.Client
	worker  *worker.Worker
	limiter *middleware.RateLimiter
	router  *gin.Engine

	// cancel ends every open notification socket.
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New connects to PostgreSQL and Redis, migrates the schema and builds the
// application on top of those connections.
func New(cfg *config.Config) (*App, error) {
	logging.Init(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Timestamp: true,
	})
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	pool, err := database.NewDatabasePool(database.FromConfig(cfg))
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(pool.DB); err != nil {
		pool.Close()
		return nil, err
	}

	client := cache.NewRedisClient(cache.FromConfig(cfg))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		pool.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	a, err := Build(cfg, pool, client)
	if err != nil {
		client.Close()
		pool.Close()
		return nil, err
	}
	return a, nil
}

// Build assembles services and routes over already open connections. The
// schema must exist.
func Build(cfg *config.Config, pool *database.DatabasePool, client *redis.Client) (*App, error) {
	store := repositories.NewGormStore(pool.DB)

	bus := eventbus.NewRedisBus(client)
	publisher := eventbus.NewPublisher(bus, eventbus.DefaultBreakerConfig())
	progress := cache.NewProgressCache(cache.NewRedisCache(client), cache.DefaultProgressTTL)
	reminders := worker.NewReminderScheduler(worker.NewJobQueue(client), cfg.Worker.ReminderLead)

	authSvc := services.NewAuthService(store, cfg.Auth)
	users := services.NewUserService(store, cfg.Auth.BCryptCost)
	projects := services.NewProjectService(store, publisher, progress)
	tasks := services.NewTaskService(store, publisher, reminders, progress)

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	if err := users.EnsureAdmin(ctx, cfg.Auth.AdminName, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	w := worker.NewWorker(worker.WorkerConfig{
		RedisClient:  client,
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: cfg.Worker.PollInterval,
		Queues:       cfg.Worker.Queues,
	})
	w.RegisterHandler(worker.JobTypeDeadlineReminder, worker.NewDeadlineReminderHandler(store.Tasks(), publisher))

	health := monitoring.NewHealthChecker(healthTimeout)
	health.Register("database", pool.HealthContext)
	health.Register("redis", bus.Ping)

	baseCtx, stopSockets := context.WithCancel(context.Background())
	bridge := realtime.NewBridge(bus, realtime.NewRegistry(), realtime.BridgeConfig{
		PollTimeout:  cfg.Realtime.PollTimeout,
		PollInterval: cfg.Realtime.PollInterval,
	})

	routes := handlers.Routes{
		Auth:      handlers.NewAuthHandler(authSvc, cfg.Auth.SecureCookies),
		Users:     handlers.NewUserHandler(users),
		Projects:  handlers.NewProjectHandler(projects),
		Tasks:     handlers.NewTaskHandler(tasks),
		Reports:   handlers.NewReportHandler(services.NewDashboardService(store, projects, tasks), services.NewReportService(store, projects)),
		WebSocket: handlers.NewWebSocketHandler(baseCtx, bridge, authSvc, cfg.Server.AllowedOrigins, cfg.Realtime.WriteTimeout),
	}

	rateLimit, limiter := middleware.RateLimit(cfg.RateLimit)
	router := newRouter(cfg, health, routes, middleware.Authenticate(authSvc), rateLimit)

	return &App{
		cfg:     cfg,
		pool:    pool,
		redis:   client,
		worker:  w,
		limiter: limiter,
		router:  router,
		cancel:  stopSockets,
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// Run starts the reminder worker and the HTTP server and blocks until ctx
// ends or the server fails. Resources are released before it returns.
func (a *App) Run(ctx context.Context) error {
	a.worker.Start(ctx, a.cfg.Worker.Concurrency)

	server := &http.Server{
		Addr:         a.cfg.GetServerAddr(),
		Handler:      a.router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Str("environment", a.cfg.Server.Environment).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutting down server")
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
			logging.Error().Err(err).Msg("HTTP server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown.
	a.cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := a.Close(); err != nil && runErr == nil {
		runErr = err
	}
	logging.Info().Msg("Server stopped")
	return runErr
}

// Close stops background work and closes connections. Safe to call more
// than once.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.cancel()
		a.worker.Stop()
		if a.limiter != nil {
			a.limiter.Stop()
		}
		err = errors.Join(a.redis.Close(), a.pool.Close())
	})
	return err
}
