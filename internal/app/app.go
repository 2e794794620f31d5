package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirinyoku/busline/internal/catalog"
	"github.com/kirinyoku/busline/internal/config"
	"github.com/kirinyoku/busline/internal/gateway"
	"github.com/kirinyoku/busline/internal/ledger"
	"github.com/kirinyoku/busline/internal/mysql"
	"github.com/kirinyoku/busline/internal/postgres"
	"github.com/kirinyoku/busline/internal/redis"
	"github.com/kirinyoku/busline/internal/repository"
	"github.com/kirinyoku/busline/internal/repository/memory"
	mysqlrepo "github.com/kirinyoku/busline/internal/repository/mysql"
	postgresrepo "github.com/kirinyoku/busline/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/busline/internal/repository/redis"
	"github.com/kirinyoku/busline/internal/service"
	"github.com/kirinyoku/busline/internal/service/query"
	"github.com/kirinyoku/busline/internal/service/reservation"
	"github.com/kirinyoku/busline/internal/service/users"
	httpgin "github.com/kirinyoku/busline/internal/transport/http/gin"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	catalog    *catalog.Catalog
	pubsub     *redisrepo.CatalogPubSub
	closers    []func()
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	// Initialize dependencies
	var rdb *goredis.Client
	if cfg.Redis.Enabled() {
		var err error
		rdb, err = redis.New(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	}

	kv, err := a.openStorage(ctx, rdb)
	if err != nil {
		a.Close()
		return nil, err
	}

	// Initialize repositories
	gw := gateway.New(kv, logger)
	if err := gw.Seed(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to seed storage: %w", err)
	}

	cat, err := catalog.Load(ctx, gw, nil)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	a.catalog = cat

	deps := service.Deps{
		Gateway: gw,
		Catalog: cat,
		Ledger:  ledger.New(gw, ledger.DefaultMaxRetries),
		Logger:  logger,
	}

	var idempotencyStore *redisrepo.IdempotencyStore
	if rdb != nil {
		deps.Cache = redisrepo.New(rdb)
		deps.PubSub = redisrepo.NewCatalogPubSub(rdb)
		deps.Limiter = redisrepo.NewSlidingWindowLimiter(rdb, "booking", cfg.Booking.RateLimitPerMinute, time.Minute)
		idempotencyStore = redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)
		a.pubsub = deps.PubSub
	}

	// Initialize services
	services := service.NewServices(deps, service.Config{
		Reservation: reservation.Config{Location: cfg.Booking.Location},
		Query:       query.Config{},
		Users: users.Config{
			Secret:   []byte(cfg.Auth.JWTSecret),
			TokenTTL: cfg.Auth.TokenTTL,
		},
	})

	// Initialize Gin router
	router := httpgin.NewRouter(services, idempotencyStore, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openStorage connects the configured key-value backend and prepares its
// schema.
func (a *App) openStorage(ctx context.Context, rdb *goredis.Client) (repository.KV, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendRedis:
		return redisrepo.NewKV(rdb), nil

	case config.BackendPostgres:
		pool, err := postgres.New(ctx, postgres.Config{
			DSN:      a.cfg.Postgres.DSN(),
			MaxConns: a.cfg.Postgres.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		store := postgresrepo.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare postgres schema: %w", err)
		}
		return store.KV(), nil

	case config.BackendMySQL:
		db, err := mysql.New(ctx, mysql.Config{
			User:     a.cfg.MySQL.User,
			Password: a.cfg.MySQL.Password,
			Addr:     a.cfg.MySQL.Addr(),
			Name:     a.cfg.MySQL.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize mysql: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })

		repo := mysqlrepo.NewKVRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare mysql schema: %w", err)
		}
		return repo, nil

	default:
		a.logger.Warn("using in-memory storage, data is lost on restart")
		return memory.New(), nil
	}
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.Close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening",
			"host", a.cfg.Server.Host,
			"port", a.cfg.Server.Port,
			"storage", a.cfg.Storage.Backend,
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Reload the catalog when another instance adds a route or bus
	if a.pubsub != nil {
		g.Go(func() error {
			err := a.pubsub.Subscribe(gCtx, func(ctx context.Context, kind, id string) {
				if err := a.catalog.Reload(ctx); err != nil {
					a.logger.Error("catalog reload failed", "kind", kind, "id", id, "error", err)
					return
				}
				a.logger.Info("catalog reloaded", "kind", kind, "id", id)
			})
			if err != nil && gCtx.Err() == nil {
				return fmt.Errorf("catalog subscription stopped: %w", err)
			}
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

// Close releases storage connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
