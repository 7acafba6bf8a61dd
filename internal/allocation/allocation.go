// Package allocation decides which tables can seat a party and whether a user
// already holds an overlapping booking. The functions in this package work on
// snapshots and never mutate state; Allocator and Detector load those
// snapshots through the reader interfaces.
package allocation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Katia-D15/book-my-table/internal/domain"
	"github.com/google/uuid"
)

// Request describes the slot a party wants. Exclude is uuid.Nil unless an
// existing booking is being edited.
type Request struct {
	Date    time.Time
	Time    domain.TimeOfDay
	Guests  int
	Exclude uuid.UUID
}

type TableReader interface {
	ListTables(ctx context.Context) ([]domain.Table, error)
}

// BookingReader returns bookings with their assigned tables. Implementations
// may return a superset; the engine filters by date, status and exclusion.
type BookingReader interface {
	ActiveOnDate(ctx context.Context, date time.Time) ([]domain.Booking, error)
	ActiveForUserOnDate(ctx context.Context, userID int64, date time.Time) ([]domain.Booking, error)
}

// competing yields the active bookings on date other than exclude whose
// window overlaps w.
func competing(bookings []domain.Booking, date time.Time, w Window, exclude uuid.UUID) []domain.Booking {
	var out []domain.Booking
	for _, b := range bookings {
		if !b.Status.Active() || !domain.SameDate(b.Date, date) {
			continue
		}
		if exclude != uuid.Nil && b.ID == exclude {
			continue
		}
		if WindowAt(b.Time).Overlaps(w) {
			out = append(out, b)
		}
	}
	return out
}

// HasOverlappingBooking reports whether userID holds an active booking on
// date whose window overlaps the one starting at t.
func HasOverlappingBooking(
	bookings []domain.Booking,
	userID int64,
	date time.Time,
	t domain.TimeOfDay,
	exclude uuid.UUID,
) bool {
	for _, b := range competing(bookings, date, WindowAt(t), exclude) {
		if b.UserID == userID {
			return true
		}
	}
	return false
}

// UnavailableTables returns the ids of tables held by bookings that overlap
// the requested slot.
func UnavailableTables(bookings []domain.Booking, req Request) map[int64]struct{} {
	out := make(map[int64]struct{})
	for _, b := range competing(bookings, req.Date, WindowAt(req.Time), req.Exclude) {
		for _, t := range b.Tables {
			out[t.ID] = struct{}{}
		}
	}
	return out
}

// AvailableTables returns the free tables for the slot, smallest first. Ties
// are ordered by table number.
func AvailableTables(tables []domain.Table, bookings []domain.Booking, req Request) []domain.Table {
	taken := UnavailableTables(bookings, req)

	free := make([]domain.Table, 0, len(tables))
	for _, t := range tables {
		if _, ok := taken[t.ID]; ok {
			continue
		}
		free = append(free, t)
	}

	sort.SliceStable(free, func(i, j int) bool {
		if free[i].Seats == free[j].Seats {
			return free[i].Number < free[j].Number
		}
		return free[i].Seats < free[j].Seats
	})

	return free
}

// AllocateTables picks the tables for req, or returns nil when the party
// cannot be seated.
func AllocateTables(tables []domain.Table, bookings []domain.Booking, req Request) []domain.Table {
	if req.Guests < 1 {
		return nil
	}
	return FirstFit(AvailableTables(tables, bookings, req), req.Guests)
}

// FirstFit searches combinations of size 1, 2, ... over available (which must
// be sorted smallest first) and returns the first one, in lexicographic
// order, whose seats add up to at least guests.
func FirstFit(available []domain.Table, guests int) []domain.Table {
	n := len(available)
	if n == 0 {
		return nil
	}

	// suffix[i] is the seat count of available[i:].
	suffix := make([]int, n+1)
	for i := n - 1; i >= 0; i-- {
		suffix[i] = suffix[i+1] + available[i].Seats
	}

	for k := 1; k <= n; k++ {
		// the k largest tables are the last k
		if suffix[n-k] < guests {
			continue
		}

		s := search{available: available, suffix: suffix, guests: guests, k: k, picked: make([]int, 0, k)}
		if !s.from(0, 0) {
			continue
		}

		out := make([]domain.Table, k)
		for i, j := range s.picked {
			out[i] = available[j]
		}
		return out
	}

	return nil
}

// search walks k-combinations depth first in lexicographic order.
type search struct {
	available []domain.Table
	suffix    []int
	guests    int
	k         int
	picked    []int
}

// from extends picked with indexes >= start. seats is the total of picked.
// On success picked holds the combination.
func (s *search) from(start, seats int) bool {
	n := len(s.available)
	open := s.k - len(s.picked)
	if open == 0 {
		return seats >= s.guests
	}

	// best case for the slots left after this one: the largest tables
	rest := s.suffix[n-(open-1)]

	for i := start; i <= n-open; i++ {
		cur := s.available[i].Seats
		// an equal table right before i was already tried with a superset
		// of the tables that follow i
		if i > start && cur == s.available[i-1].Seats {
			continue
		}
		if seats+cur+rest < s.guests {
			continue
		}

		s.picked = append(s.picked, i)
		if s.from(i+1, seats+cur) {
			return true
		}
		s.picked = s.picked[:len(s.picked)-1]
	}

	return false
}

type Allocator struct {
	tables   TableReader
	bookings BookingReader
}

func NewAllocator(tables TableReader, bookings BookingReader) *Allocator {
	return &Allocator{tables: tables, bookings: bookings}
}

// Allocate loads the inventory and the bookings for req.Date and runs
// AllocateTables. A nil slice with a nil error means no table is available.
func (a *Allocator) Allocate(ctx context.Context, req Request) ([]domain.Table, error) {
	const op = "allocation.Allocator.Allocate"

	tables, err := a.tables.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if len(tables) == 0 {
		return nil, nil
	}

	bookings, err := a.bookings.ActiveOnDate(ctx, req.Date)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return AllocateTables(tables, bookings, req), nil
}

type Detector struct {
	bookings BookingReader
}

func NewDetector(bookings BookingReader) *Detector {
	return &Detector{bookings: bookings}
}

func (d *Detector) HasOverlappingBooking(
	ctx context.Context,
	userID int64,
	date time.Time,
	t domain.TimeOfDay,
	exclude uuid.UUID,
) (bool, error) {
	const op = "allocation.Detector.HasOverlappingBooking"

	bookings, err := d.bookings.ActiveForUserOnDate(ctx, userID, date)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, err)
	}

	return HasOverlappingBooking(bookings, userID, date, t, exclude), nil
}
