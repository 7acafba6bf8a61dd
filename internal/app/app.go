package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Katia-D15/book-my-table/internal/config"
	"github.com/Katia-D15/book-my-table/internal/postgres"
	redisx "github.com/Katia-D15/book-my-table/internal/redis"
	postgresrepo "github.com/Katia-D15/book-my-table/internal/repository/postgres"
	redisrepo "github.com/Katia-D15/book-my-table/internal/repository/redis"
	"github.com/Katia-D15/book-my-table/internal/service"
	"github.com/Katia-D15/book-my-table/internal/service/booking"
	httpgin "github.com/Katia-D15/book-my-table/internal/transport/http/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	rdb        *goredis.Client
	pubsub     *redisrepo.BookingsPubSub
	httpServer *http.Server
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	pgxPool, err := postgres.New(ctx, postgres.Config{DSN: cfg.Postgres.DSN(), MaxConns: cfg.Postgres.MaxConns})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redisx.New(ctx, redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisrepo.NewBookingsPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "bookings", cfg.Booking.RateLimit, time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 24*time.Hour, time.Minute)

	// Initialize services
	services := service.NewServices(store, cache, pubsub, limiter, logger, service.Config{
		Booking: booking.Config{
			Location:    cfg.Booking.Location,
			OpeningTime: cfg.Booking.OpeningTime,
			LastTime:    cfg.Booking.LastTime,
			TxAttempts:  cfg.Booking.TxAttempts,
			Retryable:   postgresrepo.IsRetryable,
		},
	})

	// Initialize Gin router
	router := httpgin.NewRouter(services, idempotencyStore, logger,
		httpgin.TimeoutMiddleware(cfg.Server.RequestTimeout))

	return &App{
		cfg:    cfg,
		logger: logger,
		pool:   pgxPool,
		rdb:    rdb,
		pubsub: pubsub,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Run serves HTTP and follows booking changes until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Booking change feed
	g.Go(func() error {
		err := a.pubsub.Subscribe(gCtx, func(ctx context.Context, ch redisrepo.BookingChange) {
			a.logger.Info("booking changed",
				slog.String("booking_id", ch.BookingID.String()),
				slog.String("date", ch.Date),
				slog.Int64("ts_unix", ch.TsUnix),
			)
		})
		if err != nil && gCtx.Err() == nil {
			return fmt.Errorf("booking change subscription: %w", err)
		}
		return nil
	})

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

func (a *App) close() {
	if err := a.rdb.Close(); err != nil {
		a.logger.Warn("closing redis", slog.Any("error", err))
	}
	a.pool.Close()
}
