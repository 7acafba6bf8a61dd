package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Katia-D15/book-my-table/internal/domain"
	"github.com/Katia-D15/book-my-table/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dec20 = time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T) (*Store, []domain.Table) {
	t.Helper()

	s := NewStore()
	tables, err := s.Tables().BatchCreate(context.Background(), []domain.Table{
		{Number: 3, Seats: 6},
		{Number: 1, Seats: 2},
		{Number: 2, Seats: 4},
	})
	require.NoError(t, err)
	return s, tables
}

func newBooking(userID int64, date time.Time, h int, status domain.BookingStatus, tables ...domain.Table) *domain.Booking {
	return &domain.Booking{
		ID:        uuid.New(),
		UserID:    userID,
		Guests:    2,
		Date:      date,
		Time:      domain.NewTimeOfDay(h, 0),
		Status:    status,
		Tables:    tables,
		CreatedAt: time.Now().UTC(),
	}
}

func TestTables(t *testing.T) {
	s, created := seed(t)
	ctx := context.Background()

	assert.Equal(t, int64(1), created[0].ID)
	assert.Equal(t, int64(3), created[2].ID)

	listed, err := s.Tables().ListTables(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{listed[0].Number, listed[1].Number, listed[2].Number})

	_, err = s.Tables().BatchCreate(ctx, []domain.Table{{Number: 2, Seats: 2}})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestBookingQueries(t *testing.T) {
	s, tables := seed(t)
	ctx := context.Background()

	early := newBooking(1, dec20, 12, domain.BookingPending, tables[1])
	late := newBooking(1, dec20, 19, domain.BookingConfirmed, tables[2], tables[0])
	gone := newBooking(1, dec20, 14, domain.BookingCancelled, tables[1])
	other := newBooking(2, dec20, 13, domain.BookingPending, tables[2])
	nextDay := newBooking(1, dec20.AddDate(0, 0, 1), 12, domain.BookingPending, tables[1])

	for _, b := range []*domain.Booking{late, early, gone, other, nextDay} {
		require.NoError(t, s.Bookings().Create(ctx, b))
	}

	active, err := s.Bookings().ActiveOnDate(ctx, dec20)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, []uuid.UUID{early.ID, other.ID, late.ID}, []uuid.UUID{active[0].ID, active[1].ID, active[2].ID})

	mine, err := s.Bookings().ActiveForUserOnDate(ctx, 1, dec20)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := s.Bookings().ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, nextDay.ID, all[0].ID)

	got, err := s.Bookings().Get(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 6}, []int{got.Tables[0].Seats, got.Tables[1].Seats}, "tables come back smallest first")

	_, err = s.Bookings().Get(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBookingWrites(t *testing.T) {
	s, tables := seed(t)
	ctx := context.Background()

	b := newBooking(1, dec20, 18, domain.BookingPending, tables[1])
	require.NoError(t, s.Bookings().Create(ctx, b))
	assert.ErrorIs(t, s.Bookings().Create(ctx, b), repository.ErrConflict)

	// the caller's slice is not shared with the store
	b.Tables[0] = tables[0]
	got, err := s.Bookings().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Tables[0].Number)

	require.NoError(t, s.Bookings().ReplaceTables(ctx, b.ID, 6, []domain.Table{tables[0]}))
	got, err = s.Bookings().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Guests)
	assert.Equal(t, 3, got.Tables[0].Number)

	require.NoError(t, s.Bookings().SetStatus(ctx, b.ID, domain.BookingCancelled))
	got, err = s.Bookings().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, got.Status)
	assert.Len(t, got.Tables, 1)

	missing := uuid.New()
	assert.ErrorIs(t, s.Bookings().SetStatus(ctx, missing, domain.BookingConfirmed), repository.ErrNotFound)
	assert.ErrorIs(t, s.Bookings().ReplaceTables(ctx, missing, 2, nil), repository.ErrNotFound)
	assert.ErrorIs(t,
		s.Bookings().ReplaceTables(ctx, b.ID, 2, []domain.Table{{ID: 99}}),
		repository.ErrNotFound,
	)
	assert.ErrorIs(t,
		s.Bookings().Create(ctx, newBooking(1, dec20, 12, domain.BookingPending, domain.Table{ID: 99})),
		repository.ErrNotFound,
	)
}

func TestInTxCommitsOnlyOnSuccess(t *testing.T) {
	s, tables := seed(t)
	ctx := context.Background()
	boom := errors.New("boom")

	b := newBooking(1, dec20, 18, domain.BookingPending, tables[0])

	err := s.InTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		if err := repos.Bookings().Create(ctx, b); err != nil {
			return err
		}
		inside, err := repos.Bookings().Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b.ID, inside.ID, "writes are visible inside the transaction")
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Bookings().Get(ctx, b.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		return repos.Bookings().Create(ctx, b)
	}))

	_, err = s.Bookings().Get(ctx, b.ID)
	assert.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, s.InTx(cancelled, func(context.Context, repository.Repos) error { return nil }), context.Canceled)
}

func TestInTxSerialisesReadThenWrite(t *testing.T) {
	s, tables := seed(t)
	ctx := context.Background()
	errFull := errors.New("full")

	claim := func(ctx context.Context, repos repository.Repos) error {
		active, err := repos.Bookings().ActiveOnDate(ctx, dec20)
		if err != nil {
			return err
		}
		used := make(map[int64]bool)
		for _, b := range active {
			for _, tbl := range b.Tables {
				used[tbl.ID] = true
			}
		}
		for _, tbl := range tables {
			if !used[tbl.ID] {
				return repos.Bookings().Create(ctx, newBooking(1, dec20, 18, domain.BookingPending, tbl))
			}
		}
		return errFull
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		full int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, claim)
			if errors.Is(err, errFull) {
				mu.Lock()
				full++
				mu.Unlock()
				return
			}
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 17, full)

	active, err := s.Bookings().ActiveOnDate(ctx, dec20)
	require.NoError(t, err)
	usage := make(map[int64]int)
	for _, b := range active {
		for _, tbl := range b.Tables {
			usage[tbl.ID]++
		}
	}
	assert.Equal(t, map[int64]int{1: 1, 2: 1, 3: 1}, usage)
}
