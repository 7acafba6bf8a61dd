package service

import (
	"log/slog"

	"github.com/Katia-D15/book-my-table/internal/repository"
	redisrepo "github.com/Katia-D15/book-my-table/internal/repository/redis"
	"github.com/Katia-D15/book-my-table/internal/service/admin"
	"github.com/Katia-D15/book-my-table/internal/service/booking"
	"github.com/Katia-D15/book-my-table/internal/uow"
)

type Services struct {
	Booking *booking.Service
	Admin   *admin.Service
}

type Config struct {
	Booking booking.Config
}

// NewServices wires the services over one store. cache, pubsub and limiter
// may be nil, which disables caching, change events and rate limiting.
func NewServices(
	store repository.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.BookingsPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	logger *slog.Logger,
	cfg Config,
) *Services {
	var (
		events booking.Publisher
		rl     booking.RateLimiter
	)

	// keep typed nils out of the interfaces
	if pubsub != nil {
		events = pubsub
	}
	if limiter != nil {
		rl = limiter
	}

	return &Services{
		Booking: booking.New(store, cache, events, rl, logger, cfg.Booking),
		Admin: admin.New(store, cache, events, logger,
			uow.WithRetry(cfg.Booking.TxAttempts, cfg.Booking.TxBackoff, cfg.Booking.Retryable)),
	}
}
