package httpgin

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/Katia-D15/book-my-table/internal/domain"
	"github.com/Katia-D15/book-my-table/internal/repository"
	"github.com/Katia-D15/book-my-table/internal/service/booking"
)

// GuestsInput accepts the party size as a JSON number or string so that
// malformed form input reaches booking.ParseGuests unchanged.
type GuestsInput string

func (g *GuestsInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*g = GuestsInput(s)
		return nil
	}

	if bytes.Equal(b, []byte("null")) {
		*g = ""
		return nil
	}

	*g = GuestsInput(b)
	return nil
}

type CreateBookingRequest struct {
	Date   string      `json:"date" binding:"required" example:"2025-12-20"`
	Time   string      `json:"time" binding:"required" example:"18:00"`
	Guests GuestsInput `json:"guests" swaggertype:"string" example:"4"`
}

type EditGuestsRequest struct {
	Guests GuestsInput `json:"guests" swaggertype:"string" example:"6"`
}

type CreateTablesRequest struct {
	Tables []TableInput `json:"tables" binding:"required,min=1,dive"`
}

type TableInput struct {
	Number int `json:"number" binding:"required,gt=0"`
	Seats  int `json:"seats" binding:"required,gt=0"`
}

type SetStatusRequest struct {
	Status string `json:"status" binding:"required" example:"confirmed"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type BookingResponse struct {
	ID        string         `json:"id"`
	UserID    int64          `json:"user_id"`
	Guests    int            `json:"guests"`
	Date      string         `json:"date"`
	Time      string         `json:"time"`
	Status    string         `json:"status"`
	Tables    []domain.Table `json:"tables"`
	Seats     int            `json:"seats"`
	Summary   string         `json:"summary"`
	CreatedAt time.Time      `json:"created_at"`
}

type EditGuestsResponse struct {
	Message string          `json:"message"`
	Booking BookingResponse `json:"booking"`
}

type TablesResponse struct {
	Tables []TableResponse `json:"tables"`
}

type TableResponse struct {
	ID     int64  `json:"id"`
	Number int    `json:"number"`
	Seats  int    `json:"seats"`
	Label  string `json:"label"`
}

func toBookingResponse(b *domain.Booking) BookingResponse {
	tables := b.Tables
	if tables == nil {
		tables = []domain.Table{}
	}

	return BookingResponse{
		ID:        b.ID.String(),
		UserID:    b.UserID,
		Guests:    b.Guests,
		Date:      repository.DateKey(b.Date),
		Time:      b.Time.String(),
		Status:    string(b.Status),
		Tables:    tables,
		Seats:     b.Seats(),
		Summary:   b.String(),
		CreatedAt: b.CreatedAt,
	}
}

func toBookingResponses(bookings []domain.Booking) []BookingResponse {
	out := make([]BookingResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, toBookingResponse(&bookings[i]))
	}
	return out
}

func toTablesResponse(tables []domain.Table) TablesResponse {
	out := TablesResponse{Tables: make([]TableResponse, 0, len(tables))}
	for _, t := range tables {
		out.Tables = append(out.Tables, TableResponse{
			ID:     t.ID,
			Number: t.Number,
			Seats:  t.Seats,
			Label:  t.String(),
		})
	}
	return out
}

// parseSlot reads the date and time of a booking request, reporting the
// first bad field the way the booking service does.
func parseSlot(date, at string) (time.Time, domain.TimeOfDay, error) {
	d, err := domain.ParseDate(date)
	if err != nil {
		return time.Time{}, 0, &booking.ValidationError{Field: "date", Message: "Please enter a valid date (YYYY-MM-DD)"}
	}

	t, err := domain.ParseTimeOfDay(at)
	if err != nil {
		return time.Time{}, 0, &booking.ValidationError{Field: "time", Message: booking.MsgTimeRange}
	}

	return d, t, nil
}
