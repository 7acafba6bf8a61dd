package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableString(t *testing.T) {
	assert.Equal(t, "Table 2 (4 seats)", Table{Number: 2, Seats: 4}.String())
}

func TestBookingString(t *testing.T) {
	created := time.Date(2025, 12, 1, 9, 30, 0, 0, time.UTC)
	b := Booking{
		UserID:    7,
		Date:      time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC),
		Time:      NewTimeOfDay(18, 0),
		CreatedAt: created,
	}

	assert.Equal(t, "Booking by 7 on 2025-12-15 at 18:00 | created at: 2025-12-01T09:30:00Z", b.String())
}

func TestBookingStatus(t *testing.T) {
	tests := []struct {
		status BookingStatus
		valid  bool
		active bool
	}{
		{BookingPending, true, true},
		{BookingConfirmed, true, true},
		{BookingCancelled, true, false},
		{BookingNoShow, true, true},
		{BookingCompleted, true, true},
		{BookingStatus("seated"), false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.Valid())
			assert.Equal(t, tt.active, tt.status.Active())
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{name: "hours and minutes", in: "18:30", want: NewTimeOfDay(18, 30)},
		{name: "with seconds", in: "11:00:00", want: NewTimeOfDay(11, 0)},
		{name: "surrounding spaces", in: " 22:00 ", want: NewTimeOfDay(22, 0)},
		{name: "garbage", in: "evening", wantErr: true},
		{name: "out of range", in: "25:00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeOfDayJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Time TimeOfDay `json:"time"`
	}{Time: NewTimeOfDay(9, 5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":"09:05"}`, string(b))

	var out struct {
		Time TimeOfDay `json:"time"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"time":"19:45"}`), &out))
	assert.Equal(t, NewTimeOfDay(19, 45), out.Time)
}

func TestTimeOfDayOn(t *testing.T) {
	loc := time.FixedZone("BST", 3600)
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	got := NewTimeOfDay(18, 0).On(date, loc)

	assert.Equal(t, time.Date(2025, 6, 1, 18, 0, 0, 0, loc), got)
}

func TestBookingSeats(t *testing.T) {
	b := Booking{Tables: []Table{{ID: 1, Seats: 2}, {ID: 5, Seats: 6}}}

	assert.Equal(t, 8, b.Seats())
	assert.Equal(t, []int64{1, 5}, b.TableIDs())
}
