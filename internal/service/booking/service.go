package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Katia-D15/book-my-table/internal/allocation"
	"github.com/Katia-D15/book-my-table/internal/domain"
	"github.com/Katia-D15/book-my-table/internal/repository"
	redisrepo "github.com/Katia-D15/book-my-table/internal/repository/redis"
	"github.com/Katia-D15/book-my-table/internal/uow"
	"github.com/google/uuid"
)

type Config struct {
	Location        *time.Location
	OpeningTime     domain.TimeOfDay
	LastTime        domain.TimeOfDay
	AvailabilityTTL time.Duration
	TxAttempts      int
	TxBackoff       time.Duration
	// Retryable classifies transaction errors worth another attempt.
	Retryable func(error) bool
	Now       func() time.Time
}

// Publisher announces committed booking changes.
type Publisher interface {
	PublishBookingChanged(ctx context.Context, id uuid.UUID, date time.Time) error
}

type RateLimiter interface {
	Allow(ctx context.Context, id string) (bool, time.Duration, error)
}

type Service struct {
	store   repository.Store
	cache   *redisrepo.Cache
	events  Publisher
	limiter RateLimiter
	uow     *uow.UoW
	logger  *slog.Logger
	cfg     Config
}

// New builds the booking service. cache, events and limiter may be nil.
func New(
	store repository.Store,
	cache *redisrepo.Cache,
	events Publisher,
	limiter RateLimiter,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	if cfg.OpeningTime == 0 && cfg.LastTime == 0 {
		cfg.OpeningTime = domain.NewTimeOfDay(11, 0)
		cfg.LastTime = domain.NewTimeOfDay(22, 0)
	}

	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 15 * time.Second
	}

	if cfg.TxAttempts <= 0 {
		cfg.TxAttempts = 3
	}

	if cfg.TxBackoff <= 0 {
		cfg.TxBackoff = 20 * time.Millisecond
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:   store,
		cache:   cache,
		events:  events,
		limiter: limiter,
		uow:     uow.NewUoW(store, uow.WithRetry(cfg.TxAttempts, cfg.TxBackoff, cfg.Retryable)),
		logger:  logger.With("service", "booking"),
		cfg:     cfg,
	}
}

// Create books tables for a new party.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: ID of the user making the booking.
//   - date, at: requested slot; the service window is one hour from at.
//   - guests: party size.
//
// Returns:
//   - *domain.Booking: the pending booking with its tables.
//   - error: *booking.ValidationError for bad input.
//   - error: booking.ErrRateLimited when the user books too often.
//   - error: booking.ErrSchedulingConflict if the user already has an overlapping booking.
//   - error: booking.ErrNoTableAvailable if no combination of free tables seats the party.
func (s *Service) Create(
	ctx context.Context,
	userID int64,
	date time.Time,
	at domain.TimeOfDay,
	guests int,
) (*domain.Booking, error) {
	const op = "service.booking.Create"

	date = domain.DateOf(date)

	if err := s.validateSlot(date, at); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if err := validateGuests(guests); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if err := s.allow(ctx, userID); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var created *domain.Booking

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		repos repository.Repos,
		after func(uow.AfterCommit),
	) error {
		conflict, err := allocation.NewDetector(repos.Bookings()).
			HasOverlappingBooking(ctx, userID, date, at, uuid.Nil)
		if err != nil {
			return err
		}

		if conflict {
			return ErrSchedulingConflict
		}

		tables, err := allocation.NewAllocator(repos.Tables(), repos.Bookings()).
			Allocate(ctx, allocation.Request{Date: date, Time: at, Guests: guests})
		if err != nil {
			return err
		}

		if len(tables) == 0 {
			return ErrNoTableAvailable
		}

		b := &domain.Booking{
			ID:        uuid.New(),
			UserID:    userID,
			Guests:    guests,
			Date:      date,
			Time:      at,
			Status:    domain.BookingPending,
			Tables:    tables,
			CreatedAt: s.cfg.Now().UTC().Truncate(time.Microsecond),
		}

		if err := repos.Bookings().Create(ctx, b); err != nil {
			return err
		}

		created = b
		after(s.changed(b.ID, date))

		return nil
	})
	if err != nil {
		s.rejected(ctx, op, err, slog.Int64("user_id", userID), slog.String("date", repository.DateKey(date)))
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.logger.InfoContext(ctx, "booking created",
		slog.String("op", op),
		slog.String("booking_id", created.ID.String()),
		slog.String("date", repository.DateKey(date)),
		slog.Int("guests", guests),
		slog.Int("tables", len(created.Tables)),
	)

	return created, nil
}

// EditGuests changes the party size of a pending booking and re-allocates
// its tables. On any failure the booking is left untouched.
//
// Returns:
//   - error: booking.ErrBookingNotFound if there is no such booking for userID.
//   - error: booking.ErrNotEditable unless the booking is pending and at least a day ahead.
//   - error: booking.ErrSchedulingConflict, booking.ErrNoTableAvailable as for Create.
func (s *Service) EditGuests(
	ctx context.Context,
	userID int64,
	id uuid.UUID,
	guests int,
) (*domain.Booking, error) {
	const op = "service.booking.EditGuests"

	if err := validateGuests(guests); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var updated *domain.Booking

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		repos repository.Repos,
		after func(uow.AfterCommit),
	) error {
		b, err := s.owned(ctx, repos, userID, id)
		if err != nil {
			return err
		}

		if b.Status != domain.BookingPending || !s.inAdvance(b.Date) {
			return ErrNotEditable
		}

		conflict, err := allocation.NewDetector(repos.Bookings()).
			HasOverlappingBooking(ctx, userID, b.Date, b.Time, b.ID)
		if err != nil {
			return err
		}

		if conflict {
			return ErrSchedulingConflict
		}

		tables, err := allocation.NewAllocator(repos.Tables(), repos.Bookings()).
			Allocate(ctx, allocation.Request{Date: b.Date, Time: b.Time, Guests: guests, Exclude: b.ID})
		if err != nil {
			return err
		}

		if len(tables) == 0 {
			return ErrNoTableAvailable
		}

		if err := repos.Bookings().ReplaceTables(ctx, b.ID, guests, tables); err != nil {
			return err
		}

		b.Guests = guests
		b.Tables = tables
		updated = b
		after(s.changed(b.ID, b.Date))

		return nil
	})
	if err != nil {
		s.rejected(ctx, op, err, slog.String("booking_id", id.String()))
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.logger.InfoContext(ctx, "booking guests updated",
		slog.String("op", op),
		slog.String("booking_id", id.String()),
		slog.Int("guests", guests),
		slog.Int("tables", len(updated.Tables)),
	)

	return updated, nil
}

// Cancel marks a booking cancelled. Its tables stay recorded but no longer
// block other bookings.
//
// Returns:
//   - error: booking.ErrBookingNotFound if there is no such booking for userID.
//   - error: booking.ErrNotCancellable if the booking is already cancelled or completed.
func (s *Service) Cancel(ctx context.Context, userID int64, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.Cancel"

	var cancelled *domain.Booking

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		repos repository.Repos,
		after func(uow.AfterCommit),
	) error {
		b, err := s.owned(ctx, repos, userID, id)
		if err != nil {
			return err
		}

		if b.Status == domain.BookingCancelled || b.Status == domain.BookingCompleted {
			return ErrNotCancellable
		}

		if err := repos.Bookings().SetStatus(ctx, b.ID, domain.BookingCancelled); err != nil {
			return err
		}

		b.Status = domain.BookingCancelled
		cancelled = b
		after(s.changed(b.ID, b.Date))

		return nil
	})
	if err != nil {
		s.rejected(ctx, op, err, slog.String("booking_id", id.String()))
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.logger.InfoContext(ctx, "booking cancelled",
		slog.String("op", op),
		slog.String("booking_id", id.String()),
		slog.String("date", repository.DateKey(cancelled.Date)),
	)

	return cancelled, nil
}

// Get returns one of the user's bookings.
func (s *Service) Get(ctx context.Context, userID int64, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.Get"

	b, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrBookingNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if b.UserID != userID {
		return nil, fmt.Errorf("%s:%w", op, ErrBookingNotFound)
	}

	return b, nil
}

// ListForUser returns all of the user's bookings, latest date first.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	const op = "service.booking.ListForUser"

	bookings, err := s.store.Bookings().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if bookings == nil {
		bookings = []domain.Booking{}
	}

	return bookings, nil
}

// Availability is the answer to "could this party be seated now".
type Availability struct {
	Date      string           `json:"date"`
	Time      domain.TimeOfDay `json:"time"`
	Guests    int              `json:"guests"`
	Available bool             `json:"available"`
	Tables    []domain.Table   `json:"tables"`
}

// Availability runs the allocator for a slot without booking anything. The
// answer is cached per slot until a booking on that date changes.
func (s *Service) Availability(
	ctx context.Context,
	date time.Time,
	at domain.TimeOfDay,
	guests int,
) (*Availability, error) {
	const op = "service.booking.Availability"

	date = domain.DateOf(date)

	if err := s.validateSlot(date, at); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if err := validateGuests(guests); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	cache := s.cache
	key, ok := cache.AvailabilityKey(ctx, date, at, guests)
	if !ok {
		cache = nil
	}

	out, err := redisrepo.GetOrSetJSON(
		ctx,
		cache,
		key,
		s.cfg.AvailabilityTTL,
		func(ctx context.Context) (Availability, error) {
			tables, err := allocation.NewAllocator(s.store.Tables(), s.store.Bookings()).
				Allocate(ctx, allocation.Request{Date: date, Time: at, Guests: guests})
			if err != nil {
				return Availability{}, err
			}

			if tables == nil {
				tables = []domain.Table{}
			}

			return Availability{
				Date:      repository.DateKey(date),
				Time:      at,
				Guests:    guests,
				Available: len(tables) > 0,
				Tables:    tables,
			}, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &out, nil
}

// owned loads a booking for update and hides bookings of other users.
func (s *Service) owned(
	ctx context.Context,
	repos repository.Repos,
	userID int64,
	id uuid.UUID,
) (*domain.Booking, error) {
	b, err := repos.Bookings().GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	if b.UserID != userID {
		return nil, ErrBookingNotFound
	}

	return b, nil
}

func (s *Service) allow(ctx context.Context, userID int64) error {
	if s.limiter == nil {
		return nil
	}

	ok, retry, err := s.limiter.Allow(ctx, fmt.Sprintf("user:%d", userID))
	if err != nil {
		return err
	}

	if !ok {
		return &RateLimitedError{RetryAfter: retry}
	}

	return nil
}

// changed returns the after-commit hook shared by every write.
func (s *Service) changed(id uuid.UUID, date time.Time) uow.AfterCommit {
	return func(ctx context.Context) {
		if err := s.cache.InvalidateDate(ctx, date); err != nil {
			s.logger.WarnContext(ctx, "availability cache invalidation failed", slog.Any("error", err))
		}

		if s.events != nil {
			if err := s.events.PublishBookingChanged(ctx, id, date); err != nil {
				s.logger.WarnContext(ctx, "booking change publish failed", slog.Any("error", err))
			}
		}
	}
}

func (s *Service) rejected(ctx context.Context, op string, err error, attrs ...any) {
	level := slog.LevelDebug
	if !isDomainErr(err) {
		level = slog.LevelError
	}

	attrs = append(attrs, slog.String("op", op), slog.Any("error", err))
	s.logger.Log(ctx, level, "booking rejected", attrs...)
}

func isDomainErr(err error) bool {
	var verr *ValidationError

	return errors.As(err, &verr) ||
		errors.Is(err, ErrSchedulingConflict) ||
		errors.Is(err, ErrNoTableAvailable) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrNotEditable) ||
		errors.Is(err, ErrNotCancellable) ||
		errors.Is(err, ErrRateLimited)
}
