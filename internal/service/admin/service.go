package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Katia-D15/book-my-table/internal/domain"
	"github.com/Katia-D15/book-my-table/internal/repository"
	redisrepo "github.com/Katia-D15/book-my-table/internal/repository/redis"
	"github.com/Katia-D15/book-my-table/internal/uow"
	"github.com/google/uuid"
)

// Publisher announces committed booking changes.
type Publisher interface {
	PublishBookingChanged(ctx context.Context, id uuid.UUID, date time.Time) error
}

type Service struct {
	store     repository.Store
	cache     *redisrepo.Cache
	events    Publisher
	uow       *uow.UoW
	logger    *slog.Logger
	tablesTTL time.Duration
}

// New builds the admin service. cache and events may be nil.
func New(
	store repository.Store,
	cache *redisrepo.Cache,
	events Publisher,
	logger *slog.Logger,
	opts ...uow.Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:     store,
		cache:     cache,
		events:    events,
		uow:       uow.NewUoW(store, opts...),
		logger:    logger.With("service", "admin"),
		tablesTTL: 60 * time.Second,
	}
}

// CreateTables adds tables to the inventory in one transaction.
//
// Parameters:
//   - ctx: request-scoped context.
//   - tables: tables to create; ID is assigned by the store.
//
// Returns:
//   - []domain.Table: the created tables with their IDs.
//   - error: admin.ErrInvalidTable if a number or seat count is not positive.
//   - error: admin.ErrTablesConflict if a table number is already taken.
func (s *Service) CreateTables(ctx context.Context, tables []domain.Table) ([]domain.Table, error) {
	const op = "service.admin.CreateTables"

	for _, t := range tables {
		if t.Number <= 0 || t.Seats <= 0 {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidTable)
		}
	}

	var created []domain.Table

	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repos, after func(uow.AfterCommit)) error {
		var err error
		created, err = repos.Tables().BatchCreate(ctx, tables)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%s: %w", op, ErrTablesConflict)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		after(func(ctx context.Context) {
			if err := s.cache.InvalidateTables(ctx); err != nil {
				s.logger.WarnContext(ctx, "tables cache invalidation failed", slog.Any("error", err))
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tables created", slog.String("op", op), slog.Int("count", len(created)))

	return created, nil
}

// ListTables returns the inventory, smallest table first.
func (s *Service) ListTables(ctx context.Context) ([]domain.Table, error) {
	const op = "service.admin.ListTables"

	tables, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyTables(),
		s.tablesTTL,
		func(ctx context.Context) ([]domain.Table, error) {
			tables, err := s.store.Tables().ListTables(ctx)
			if err != nil {
				return nil, err
			}
			if tables == nil {
				tables = []domain.Table{}
			}
			return tables, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tables, nil
}

// CanTransition reports whether a booking may move from one status to another.
// Pending may become anything; confirmed may still end as completed, no-show
// or cancelled; the other statuses are final.
func CanTransition(from, to domain.BookingStatus) bool {
	if from == to {
		return false
	}

	switch from {
	case domain.BookingPending:
		return true
	case domain.BookingConfirmed:
		return to == domain.BookingCompleted || to == domain.BookingNoShow || to == domain.BookingCancelled
	default:
		return false
	}
}

// SetStatus moves a booking to a new status.
//
// Returns:
//   - error: admin.ErrInvalidStatus for an unknown status or pending.
//   - error: admin.ErrBookingNotFound if there is no such booking.
//   - error: admin.ErrStatusTransition if the move is not allowed.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) (*domain.Booking, error) {
	const op = "service.admin.SetStatus"

	if !status.Valid() || status == domain.BookingPending {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidStatus)
	}

	var updated *domain.Booking

	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repos, after func(uow.AfterCommit)) error {
		b, err := repos.Bookings().GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, ErrBookingNotFound)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		if !CanTransition(b.Status, status) {
			return fmt.Errorf("%s: %w", op, ErrStatusTransition)
		}

		if err := repos.Bookings().SetStatus(ctx, id, status); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		b.Status = status
		updated = b

		after(func(ctx context.Context) {
			if err := s.cache.InvalidateDate(ctx, b.Date); err != nil {
				s.logger.WarnContext(ctx, "availability cache invalidation failed", slog.Any("error", err))
			}
			if s.events != nil {
				if err := s.events.PublishBookingChanged(ctx, b.ID, b.Date); err != nil {
					s.logger.WarnContext(ctx, "booking change publish failed", slog.Any("error", err))
				}
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "booking status changed",
		slog.String("op", op),
		slog.String("booking_id", id.String()),
		slog.String("status", string(status)),
	)

	return updated, nil
}
