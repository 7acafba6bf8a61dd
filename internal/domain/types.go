package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingNoShow    BookingStatus = "no-show"
	BookingCompleted BookingStatus = "completed"
)

// ServiceWindow is how long a booking occupies its tables.
const ServiceWindow = time.Hour

const DateLayout = "2006-01-02"

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingNoShow, BookingCompleted:
		return true
	}
	return false
}

// Active reports whether the booking still holds its tables.
func (s BookingStatus) Active() bool {
	return s != BookingCancelled
}

type Table struct {
	ID     int64 `json:"id"`
	Number int   `json:"number"`
	Seats  int   `json:"seats"`
}

func (t Table) String() string {
	return fmt.Sprintf("Table %d (%d seats)", t.Number, t.Seats)
}

type Booking struct {
	ID        uuid.UUID     `json:"id"`
	UserID    int64         `json:"user_id"`
	Guests    int           `json:"guests"`
	Date      time.Time     `json:"date"`
	Time      TimeOfDay     `json:"time"`
	Status    BookingStatus `json:"status"`
	Tables    []Table       `json:"tables"`
	CreatedAt time.Time     `json:"created_at"`
}

func (b Booking) String() string {
	return fmt.Sprintf(
		"Booking by %d on %s at %s | created at: %s",
		b.UserID,
		b.Date.Format(DateLayout),
		b.Time,
		b.CreatedAt.Format(time.RFC3339),
	)
}

// Seats is the combined capacity of the assigned tables.
func (b Booking) Seats() int {
	total := 0
	for _, t := range b.Tables {
		total += t.Seats
	}
	return total
}

func (b Booking) TableIDs() []int64 {
	ids := make([]int64, 0, len(b.Tables))
	for _, t := range b.Tables {
		ids = append(ids, t.ID)
	}
	return ids
}

// ParseDate parses a YYYY-MM-DD calendar date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// DateOf truncates t to its calendar date in t's location, expressed as midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func SameDate(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}
