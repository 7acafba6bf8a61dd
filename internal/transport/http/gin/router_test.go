package httpgin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Katia-D15/book-my-table/internal/domain"
	"github.com/Katia-D15/book-my-table/internal/repository/memory"
	redisrepo "github.com/Katia-D15/book-my-table/internal/repository/redis"
	"github.com/Katia-D15/book-my-table/internal/service"
	"github.com/Katia-D15/book-my-table/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	return newTestRouterWithIdempotency(t, nil)
}

func newTestRouterWithIdempotency(t *testing.T, idem Idempotency) *gin.Engine {
	t.Helper()

	now := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svcs := service.NewServices(memory.NewStore(), nil, nil, nil, logger, service.Config{
		Booking: booking.Config{Now: func() time.Time { return now }},
	})

	r := NewRouter(svcs, idem, logger, TimeoutMiddleware(time.Second))

	w := do(t, r, http.MethodPost, "/admin/tables", 0, `{"tables":[
		{"number":1,"seats":2},
		{"number":2,"seats":4},
		{"number":3,"seats":6}
	]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	return r
}

func do(t *testing.T, r http.Handler, method, path string, user int64, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}

	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != 0 {
		req.Header.Set(HeaderUserID, strconv.FormatInt(user, 10))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func tableNumbers(resp BookingResponse) []int {
	out := make([]int, 0, len(resp.Tables))
	for _, t := range resp.Tables {
		out = append(out, t.Number)
	}
	return out
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/healthz", 0, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestListTablesWithETag(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/tables", 0, "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[TablesResponse](t, w)
	require.Len(t, resp.Tables, 3)
	assert.Equal(t, "Table 1 (2 seats)", resp.Tables[0].Label)

	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)

	w = do(t, r, http.MethodGet, "/tables", 0, "", "If-None-Match", tag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestCreateTablesConflict(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/admin/tables", 0, `{"tables":[{"number":2,"seats":2}]}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPost, "/admin/tables", 0, `{"tables":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBookingsRequireUser(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/bookings", 0, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, http.MethodGet, "/bookings", 0, "", HeaderUserID, "abc")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateBookingValidation(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name    string
		body    string
		field   string
		message string
	}{
		{name: "guests not a number", body: `{"date":"2025-12-20","time":"18:00","guests":"abc"}`, field: "guests", message: booking.MsgGuestsInvalid},
		{name: "guests missing", body: `{"date":"2025-12-20","time":"18:00"}`, field: "guests", message: booking.MsgGuestsInvalid},
		{name: "zero guests", body: `{"date":"2025-12-20","time":"18:00","guests":0}`, field: "guests", message: booking.MsgGuestsMin},
		{name: "today", body: `{"date":"2025-12-01","time":"18:00","guests":2}`, field: "date", message: booking.MsgDateAdvance},
		{name: "too late", body: `{"date":"2025-12-20","time":"22:30","guests":2}`, field: "time", message: booking.MsgTimeRange},
		{name: "bad time", body: `{"date":"2025-12-20","time":"6pm","guests":2}`, field: "time", message: booking.MsgTimeRange},
		{name: "bad date", body: `{"date":"20/12/2025","time":"18:00","guests":2}`, field: "date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/bookings", 1, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			resp := decode[ErrorResponse](t, w)
			assert.Equal(t, tt.field, resp.Field)
			if tt.message != "" {
				assert.Equal(t, tt.message, resp.Error)
			}
		})
	}
}

type claim struct {
	fingerprint string
	resp        *redisrepo.StoredResponse
}

// memIdempotency mirrors the redis store's claim rules in process.
type memIdempotency struct {
	mu     sync.Mutex
	claims map[string]claim
}

func (m *memIdempotency) Begin(_ context.Context, key, fingerprint string) (*redisrepo.StoredResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cl, ok := m.claims[key]
	if !ok {
		m.claims[key] = claim{fingerprint: fingerprint}
		return nil, nil
	}
	if cl.fingerprint != fingerprint {
		return nil, redisrepo.ErrIdempotencyKeyReused
	}
	if cl.resp == nil {
		return nil, redisrepo.ErrIdempotencyInProgress
	}
	return cl.resp, nil
}

func (m *memIdempotency) Save(_ context.Context, key string, resp redisrepo.StoredResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims[key] = claim{fingerprint: resp.Fingerprint, resp: &resp}
	return nil
}

func (m *memIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, key)
	return nil
}

func TestCreateBookingIdempotencyKey(t *testing.T) {
	r := newTestRouterWithIdempotency(t, &memIdempotency{claims: make(map[string]claim)})

	w := do(t, r, http.MethodPost, "/bookings", 1, `{"date":"2025-12-20","time":"18:00","guests":2}`, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[BookingResponse](t, w)
	assert.Equal(t, "k1", w.Header().Get("Idempotency-Key"))

	// same request, different spelling of guests: replayed
	w = do(t, r, http.MethodPost, "/bookings", 1, `{"date":"2025-12-20","time":"18:00","guests":"2"}`, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, first.ID, decode[BookingResponse](t, w).ID)

	// same key, different party size
	w = do(t, r, http.MethodPost, "/bookings", 1, `{"date":"2025-12-20","time":"18:00","guests":4}`, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, redisrepo.ErrIdempotencyKeyReused.Error(), decode[ErrorResponse](t, w).Error)

	// same key, different date
	w = do(t, r, http.MethodPost, "/bookings", 1, `{"date":"2025-12-21","time":"18:00","guests":2}`, "Idempotency-Key", "k1")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	// keys are per user
	w = do(t, r, http.MethodPost, "/bookings", 2, `{"date":"2025-12-21","time":"18:00","guests":2}`, "Idempotency-Key", "k1")
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/bookings", 1, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]BookingResponse](t, w), 1)
}

func TestCreateFingerprint(t *testing.T) {
	date := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)
	at := domain.NewTimeOfDay(18, 0)

	assert.Equal(t, createFingerprint(date, at, 2), createFingerprint(date.Add(20*time.Hour), at, 2))
	assert.NotEqual(t, createFingerprint(date, at, 2), createFingerprint(date, at, 3))
	assert.NotEqual(t, createFingerprint(date, at, 2), createFingerprint(date, domain.NewTimeOfDay(18, 30), 2))
	assert.NotEqual(t, createFingerprint(date, at, 2), createFingerprint(date.AddDate(0, 0, 1), at, 2))
}

func TestBookingLifecycle(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/bookings", 1, `{"date":"2025-12-20","time":"18:00","guests":4}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decode[BookingResponse](t, w)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "2025-12-20", created.Date)
	assert.Equal(t, "18:00", created.Time)
	assert.Equal(t, []int{2}, tableNumbers(created))
	assert.Equal(t, 4, created.Seats)

	// same user, overlapping slot
	w = do(t, r, http.MethodPost, "/bookings", 1, `{"date":"2025-12-20","time":"18:30","guests":"2"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, booking.MsgConflict, decode[ErrorResponse](t, w).Error)

	// nine guests do not fit in what is left at 18:00
	w = do(t, r, http.MethodPost, "/bookings", 2, `{"date":"2025-12-20","time":"18:00","guests":"9"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, booking.MsgNoTables, decode[ErrorResponse](t, w).Error)

	w = do(t, r, http.MethodGet, "/bookings", 1, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]BookingResponse](t, w), 1)

	w = do(t, r, http.MethodGet, "/bookings/"+created.ID, 2, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodGet, "/bookings/not-a-uuid", 1, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPatch, "/bookings/"+created.ID+"/guests", 1, `{"guests":"6"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	edited := decode[EditGuestsResponse](t, w)
	assert.Equal(t, booking.MsgUpdated, edited.Message)
	assert.Equal(t, 6, edited.Booking.Guests)
	assert.Equal(t, []int{3}, tableNumbers(edited.Booking))

	w = do(t, r, http.MethodPatch, "/bookings/"+created.ID+"/guests", 1, `{"guests":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/bookings/"+created.ID+"/cancel", 1, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", decode[BookingResponse](t, w).Status)

	w = do(t, r, http.MethodPost, "/bookings/"+created.ID+"/cancel", 1, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPatch, "/bookings/"+created.ID+"/guests", 1, `{"guests":2}`)
	assert.Equal(t, http.StatusConflict, w.Code, "cancelled bookings are not editable")
}

func TestAvailabilityEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/bookings", 1, `{"date":"2025-12-20","time":"18:00","guests":10}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/availability?date=2025-12-20&time=20:00&guests=4", 0, "")
	require.Equal(t, http.StatusOK, w.Code)
	free := decode[booking.Availability](t, w)
	assert.True(t, free.Available)
	require.Len(t, free.Tables, 1)
	assert.Equal(t, 2, free.Tables[0].Number)

	w = do(t, r, http.MethodGet, "/availability?date=2025-12-20&time=18:00&guests=4", 0, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[booking.Availability](t, w).Available)

	w = do(t, r, http.MethodGet, "/availability?date=2025-12-20&time=18:00&guests=none", 0, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminSetStatus(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/bookings", 1, `{"date":"2025-12-20","time":"18:00","guests":2}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[BookingResponse](t, w).ID

	w = do(t, r, http.MethodPatch, "/admin/bookings/"+id+"/status", 0, `{"status":"seated"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPatch, "/admin/bookings/"+id+"/status", 0, `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", decode[BookingResponse](t, w).Status)

	w = do(t, r, http.MethodPatch, "/admin/bookings/"+id+"/status", 0, `{"status":"cancelled"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPost, "/bookings/"+id+"/cancel", 1, "")
	assert.Equal(t, http.StatusConflict, w.Code, "completed bookings cannot be cancelled")
}

func TestGuestsInputUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want GuestsInput
	}{
		{in: `{"guests":4}`, want: "4"},
		{in: `{"guests":"4"}`, want: "4"},
		{in: `{"guests":" 3 "}`, want: " 3 "},
		{in: `{"guests":null}`, want: ""},
		{in: `{}`, want: ""},
		{in: `{"guests":2.5}`, want: "2.5"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var req EditGuestsRequest
			require.NoError(t, json.Unmarshal([]byte(tt.in), &req))
			assert.Equal(t, tt.want, req.Guests)
		})
	}
}

func TestETagMatches(t *testing.T) {
	tag := etagOf([]byte(`{"a":1}`))

	assert.True(t, etagMatches(tag, tag))
	assert.True(t, etagMatches(`"x", `+tag, tag))
	assert.True(t, etagMatches("*", tag))
	assert.False(t, etagMatches("", tag))
	assert.False(t, etagMatches(`"other"`, tag))
}
