package redisrepo

import (
	"context"
	"encoding/json"
	"path"
	"testing"
	"time"

	"github.com/Katia-D15/book-my-table/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	date := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "booktable:v1:tables", KeyTables())
	assert.Equal(t,
		"booktable:v1:availability:2025-12-20:g1:v3:18:00:4",
		KeyAvailability(date, 1, 3, domain.NewTimeOfDay(18, 0), 4),
	)
	assert.Equal(t, "booktable:v1:availability-ver:2025-12-20", KeyAvailabilityVersion(date))
	assert.Equal(t, "booktable:v1:availability-gen", KeyAvailabilityGeneration())
	assert.Equal(t, "booktable:v1:availability:2025-12-20:*", PatternAvailability(date))
	assert.Equal(t, "booktable:v1:idem:bookings:7:abc", KeyIdemBooking(7, "abc"))
	assert.Equal(t, "booktable:v1:rl:bookings:user:7", KeyRateLimit("bookings", "user:7"))
}

func TestNilCacheLoadsThrough(t *testing.T) {
	var c *Cache
	calls := 0

	v, err := GetOrSetJSON(context.Background(), c, KeyTables(), time.Minute, func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)

	assert.NoError(t, c.InvalidateDate(context.Background(), time.Now()))
	assert.NoError(t, c.InvalidateTables(context.Background()))

	_, ok := c.AvailabilityKey(context.Background(), time.Now(), domain.NewTimeOfDay(18, 0), 2)
	assert.False(t, ok)
}

func TestAvailabilityKeyVersions(t *testing.T) {
	date := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)
	at := domain.NewTimeOfDay(18, 0)

	before := KeyAvailability(date, 0, 0, at, 2)
	afterBooking := KeyAvailability(date, 0, 1, at, 2)
	afterTables := KeyAvailability(date, 1, 0, at, 2)

	assert.NotEqual(t, before, afterBooking, "a booking change must move readers to a new key")
	assert.NotEqual(t, before, afterTables, "an inventory change must move readers to a new key")

	for _, key := range []string{before, afterBooking, afterTables} {
		ok, err := path.Match(PatternAvailability(date), key)
		require.NoError(t, err)
		assert.True(t, ok, "%s is removed with its date", key)
	}

	for _, key := range []string{KeyAvailabilityVersion(date), KeyAvailabilityGeneration()} {
		ok, err := path.Match(PatternAllAvailability(), key)
		require.NoError(t, err)
		assert.False(t, ok, "%s must survive invalidation", key)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    int64
		wantErr bool
	}{
		{name: "missing key", in: nil, want: 0},
		{name: "counter", in: "12", want: 12},
		{name: "garbage", in: "x", wantErr: true},
		{name: "wrong type", in: int64(3), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVersion(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWindowResult(t *testing.T) {
	tests := []struct {
		name    string
		res     any
		allowed bool
		retry   time.Duration
		wantErr bool
	}{
		{name: "allowed", res: []any{int64(1), int64(3), int64(0)}, allowed: true},
		{name: "rejected", res: []any{int64(0), int64(10), int64(1500)}, retry: 1500 * time.Millisecond},
		{name: "string values", res: []any{"1", "2", "0"}, allowed: true},
		{name: "wrong shape", res: []any{int64(1)}, wantErr: true},
		{name: "not a list", res: "OK", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, retry, err := parseWindowResult(tt.res)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, allowed)
			assert.Equal(t, tt.retry, retry)
		})
	}
}

func TestResolveClaim(t *testing.T) {
	body := json.RawMessage(`{"id":"x"}`)
	stored, err := json.Marshal(StoredResponse{Fingerprint: "fp1", Status: 201, Body: body})
	require.NoError(t, err)

	got, err := resolveClaim(idemResult+string(stored), "fp1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 201, got.Status)
	assert.JSONEq(t, string(body), string(got.Body))

	_, err = resolveClaim(idemResult+string(stored), "fp2")
	assert.ErrorIs(t, err, ErrIdempotencyKeyReused)

	_, err = resolveClaim(idemLock+"fp1", "fp1")
	assert.ErrorIs(t, err, ErrIdempotencyInProgress)

	_, err = resolveClaim(idemLock+"fp1", "fp2")
	assert.ErrorIs(t, err, ErrIdempotencyKeyReused)

	_, err = resolveClaim(idemResult+"{", "fp1")
	assert.Error(t, err)

	_, err = resolveClaim("garbage", "fp1")
	assert.Error(t, err)
}

func TestDecodeBookingChange(t *testing.T) {
	id := uuid.New()
	b, err := json.Marshal(BookingChange{Type: msgBookingChanged, BookingID: id, Date: "2025-12-20", TsUnix: 1})
	require.NoError(t, err)

	ch, ok := decodeBookingChange(string(b))
	require.True(t, ok)
	assert.Equal(t, id, ch.BookingID)
	assert.Equal(t, "2025-12-20", ch.Date)

	_, ok = decodeBookingChange(`{"type":"event_changed","booking_id":"` + id.String() + `"}`)
	assert.False(t, ok)

	_, ok = decodeBookingChange("not json")
	assert.False(t, ok)
}
