package repository

import (
	"context"
	"time"

	"github.com/Katia-D15/book-my-table/internal/allocation"
	"github.com/Katia-D15/book-my-table/internal/domain"
	"github.com/google/uuid"
)

type Tables interface {
	allocation.TableReader
	BatchCreate(ctx context.Context, tables []domain.Table) ([]domain.Table, error)
}

type Bookings interface {
	allocation.BookingReader

	Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	// GetForUpdate reads the booking and locks it until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error)

	// Create stores b together with its tables.
	Create(ctx context.Context, b *domain.Booking) error
	// ReplaceTables sets guests and swaps the whole table set of a booking.
	ReplaceTables(ctx context.Context, id uuid.UUID, guests int, tables []domain.Table) error
	SetStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) error
}

// Repos groups the repositories bound to one connection or transaction.
type Repos interface {
	Tables() Tables
	Bookings() Bookings
}

// DateKey formats a booking date the way stores and caches key it.
func DateKey(date time.Time) string {
	return domain.DateOf(date).Format(domain.DateLayout)
}

// Store is a Repos that can also open a transaction.
type Store interface {
	Repos
	InTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error
}
