// Package memory keeps tables and bookings in process memory. It implements
// the same repository interfaces as the PostgreSQL store and serialises
// transactions with a mutex, which makes it suitable for tests and for
// running the service without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Katia-D15/book-my-table/internal/domain"
	"github.com/Katia-D15/book-my-table/internal/repository"
	"github.com/google/uuid"
)

type state struct {
	nextTableID int64
	tables      map[int64]domain.Table
	bookings    map[uuid.UUID]domain.Booking
}

func (s *state) clone() *state {
	cp := &state{
		nextTableID: s.nextTableID,
		tables:      make(map[int64]domain.Table, len(s.tables)),
		bookings:    make(map[uuid.UUID]domain.Booking, len(s.bookings)),
	}
	for id, t := range s.tables {
		cp.tables[id] = t
	}
	for id, b := range s.bookings {
		cp.bookings[id] = copyBooking(b)
	}
	return cp
}

type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{
		state: &state{
			nextTableID: 1,
			tables:      make(map[int64]domain.Table),
			bookings:    make(map[uuid.UUID]domain.Booking),
		},
	}
}

// InTx runs fn against a private copy of the data and publishes the copy
// only when fn succeeds. Transactions never interleave.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(ctx, view{st: work}); err != nil {
		return err
	}

	s.state = work
	return nil
}

func (s *Store) Tables() repository.Tables     { return locked{s: s} }
func (s *Store) Bookings() repository.Bookings { return locked{s: s} }

// locked runs one statement at a time against the committed state.
type locked struct {
	s *Store
}

func (l locked) do(fn func(v view) error) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return fn(view{st: l.s.state})
}

func (l locked) ListTables(ctx context.Context) (out []domain.Table, err error) {
	err = l.do(func(v view) error { out, err = v.ListTables(ctx); return err })
	return out, err
}

func (l locked) BatchCreate(ctx context.Context, tables []domain.Table) (out []domain.Table, err error) {
	err = l.do(func(v view) error { out, err = v.BatchCreate(ctx, tables); return err })
	return out, err
}

func (l locked) ActiveOnDate(ctx context.Context, date time.Time) (out []domain.Booking, err error) {
	err = l.do(func(v view) error { out, err = v.ActiveOnDate(ctx, date); return err })
	return out, err
}

func (l locked) ActiveForUserOnDate(ctx context.Context, userID int64, date time.Time) (out []domain.Booking, err error) {
	err = l.do(func(v view) error { out, err = v.ActiveForUserOnDate(ctx, userID, date); return err })
	return out, err
}

func (l locked) Get(ctx context.Context, id uuid.UUID) (out *domain.Booking, err error) {
	err = l.do(func(v view) error { out, err = v.Get(ctx, id); return err })
	return out, err
}

func (l locked) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return l.Get(ctx, id)
}

func (l locked) ListByUser(ctx context.Context, userID int64) (out []domain.Booking, err error) {
	err = l.do(func(v view) error { out, err = v.ListByUser(ctx, userID); return err })
	return out, err
}

func (l locked) Create(ctx context.Context, b *domain.Booking) error {
	return l.do(func(v view) error { return v.Create(ctx, b) })
}

func (l locked) ReplaceTables(ctx context.Context, id uuid.UUID, guests int, tables []domain.Table) error {
	return l.do(func(v view) error { return v.ReplaceTables(ctx, id, guests, tables) })
}

func (l locked) SetStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) error {
	return l.do(func(v view) error { return v.SetStatus(ctx, id, status) })
}

// view implements the repositories over a state the caller already owns.
type view struct {
	st *state
}

func (v view) Tables() repository.Tables     { return v }
func (v view) Bookings() repository.Bookings { return v }

func (v view) ListTables(context.Context) ([]domain.Table, error) {
	out := make([]domain.Table, 0, len(v.st.tables))
	for _, t := range v.st.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seats == out[j].Seats {
			return out[i].Number < out[j].Number
		}
		return out[i].Seats < out[j].Seats
	})
	return out, nil
}

func (v view) BatchCreate(_ context.Context, tables []domain.Table) ([]domain.Table, error) {
	numbers := make(map[int]struct{}, len(v.st.tables)+len(tables))
	for _, t := range v.st.tables {
		numbers[t.Number] = struct{}{}
	}
	for _, t := range tables {
		if _, dup := numbers[t.Number]; dup {
			return nil, repository.ErrConflict
		}
		numbers[t.Number] = struct{}{}
	}

	created := make([]domain.Table, len(tables))
	for i, t := range tables {
		t.ID = v.st.nextTableID
		v.st.nextTableID++
		v.st.tables[t.ID] = t
		created[i] = t
	}
	return created, nil
}

func (v view) ActiveOnDate(_ context.Context, date time.Time) ([]domain.Booking, error) {
	return v.filter(func(b domain.Booking) bool {
		return b.Status.Active() && domain.SameDate(b.Date, date)
	}, byStart), nil
}

func (v view) ActiveForUserOnDate(_ context.Context, userID int64, date time.Time) ([]domain.Booking, error) {
	return v.filter(func(b domain.Booking) bool {
		return b.UserID == userID && b.Status.Active() && domain.SameDate(b.Date, date)
	}, byStart), nil
}

func (v view) ListByUser(_ context.Context, userID int64) ([]domain.Booking, error) {
	return v.filter(func(b domain.Booking) bool {
		return b.UserID == userID
	}, latestFirst), nil
}

func (v view) Get(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	b, ok := v.st.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := v.resolve(b)
	return &out, nil
}

func (v view) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return v.Get(ctx, id)
}

func (v view) Create(_ context.Context, b *domain.Booking) error {
	if _, ok := v.st.bookings[b.ID]; ok {
		return repository.ErrConflict
	}
	for _, t := range b.Tables {
		if _, ok := v.st.tables[t.ID]; !ok {
			return repository.ErrNotFound
		}
	}
	v.st.bookings[b.ID] = copyBooking(*b)
	return nil
}

func (v view) ReplaceTables(_ context.Context, id uuid.UUID, guests int, tables []domain.Table) error {
	b, ok := v.st.bookings[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, t := range tables {
		if _, ok := v.st.tables[t.ID]; !ok {
			return repository.ErrNotFound
		}
	}
	b.Guests = guests
	b.Tables = append([]domain.Table(nil), tables...)
	v.st.bookings[id] = b
	return nil
}

func (v view) SetStatus(_ context.Context, id uuid.UUID, status domain.BookingStatus) error {
	b, ok := v.st.bookings[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Status = status
	v.st.bookings[id] = b
	return nil
}

// resolve refreshes table details from the inventory, the way a join would.
func (v view) resolve(b domain.Booking) domain.Booking {
	out := copyBooking(b)
	out.Tables = out.Tables[:0]
	for _, t := range b.Tables {
		if cur, ok := v.st.tables[t.ID]; ok {
			out.Tables = append(out.Tables, cur)
		}
	}
	sort.Slice(out.Tables, func(i, j int) bool {
		if out.Tables[i].Seats == out.Tables[j].Seats {
			return out.Tables[i].Number < out.Tables[j].Number
		}
		return out.Tables[i].Seats < out.Tables[j].Seats
	})
	return out
}

func (v view) filter(keep func(domain.Booking) bool, less func(a, b domain.Booking) bool) []domain.Booking {
	var out []domain.Booking
	for _, b := range v.st.bookings {
		if keep(b) {
			out = append(out, v.resolve(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byStart(a, b domain.Booking) bool {
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func latestFirst(a, b domain.Booking) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	if a.Time != b.Time {
		return a.Time > b.Time
	}
	return a.ID.String() < b.ID.String()
}

func copyBooking(b domain.Booking) domain.Booking {
	b.Tables = append([]domain.Table{}, b.Tables...)
	return b
}
