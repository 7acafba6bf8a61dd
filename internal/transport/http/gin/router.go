package httpgin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Katia-D15/book-my-table/internal/domain"
	"github.com/Katia-D15/book-my-table/internal/repository"
	redisrepo "github.com/Katia-D15/book-my-table/internal/repository/redis"
	"github.com/Katia-D15/book-my-table/internal/service"
	"github.com/Katia-D15/book-my-table/internal/service/admin"
	"github.com/Katia-D15/book-my-table/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Idempotency replays booking creation for a repeated Idempotency-Key.
// *redisrepo.IdempotencyStore implements it.
type Idempotency interface {
	Begin(ctx context.Context, key, fingerprint string) (*redisrepo.StoredResponse, error)
	Save(ctx context.Context, key string, resp redisrepo.StoredResponse) error
	Release(ctx context.Context, key string) error
}

// NewRouter builds the HTTP API. idem may be nil, which disables
// Idempotency-Key handling.
func NewRouter(
	svcs *service.Services,
	idem Idempotency,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(logger), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/tables", handleListTables(svcs))
	r.GET("/availability", handleAvailability(svcs))

	bookings := r.Group("/bookings", IdentityMiddleware())
	{
		bookings.POST("", handleCreateBooking(svcs, idem))
		bookings.GET("", handleListBookings(svcs))
		bookings.GET("/:id", handleGetBooking(svcs))
		bookings.PATCH("/:id/guests", handleEditGuests(svcs))
		bookings.POST("/:id/cancel", handleCancelBooking(svcs))
	}

	// Admin API, protected by the proxy in front of the service
	adm := r.Group("/admin")
	{
		adm.POST("/tables", handleCreateTables(svcs))
		adm.PATCH("/bookings/:id/status", handleSetStatus(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  List tables
// @Tags     tables
// @Produce  json
// @Success  200  {object}  TablesResponse
// @Router   /tables [get]
func handleListTables(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tables, err := svcs.Admin.ListTables(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, toTablesResponse(tables), "public, max-age=60")
	}
}

// @Summary  Check availability
// @Description Runs the table allocator for a slot without booking anything.
// @Tags     bookings
// @Produce  json
// @Param    date    query  string  true  "Date (YYYY-MM-DD)"
// @Param    time    query  string  true  "Time (HH:MM)"
// @Param    guests  query  string  true  "Party size"
// @Success  200  {object}  booking.Availability
// @Failure  400  {object}  ErrorResponse
// @Router   /availability [get]
func handleAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		date, at, err := parseSlot(c.Query("date"), c.Query("time"))
		if err != nil {
			respondErr(c, err)
			return
		}

		guests, err := booking.ParseGuests(c.Query("guests"))
		if err != nil {
			respondErr(c, err)
			return
		}

		av, err := svcs.Booking.Availability(c.Request.Context(), date, at, guests)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, av, "private, max-age=15")
	}
}

// @Summary  Create booking (idempotent)
// @Tags     bookings
// @Accept   json
// @Produce  json
// @Param    X-User-ID        header  int                   true   "User ID"
// @Param    Idempotency-Key  header  string                false  "Idempotency key"
// @Param    req              body    CreateBookingRequest  true   "payload"
// @Success  201 {object} BookingResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "scheduling conflict / no tables / idem in progress"
// @Failure  422 {object} ErrorResponse "idempotency key reused for another request"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /bookings [post]
func handleCreateBooking(svcs *service.Services, idem Idempotency) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		date, at, err := parseSlot(req.Date, req.Time)
		if err != nil {
			respondErr(c, err)
			return
		}

		guests, err := booking.ParseGuests(string(req.Guests))
		if err != nil {
			respondErr(c, err)
			return
		}

		uid := userID(c)
		ctx := c.Request.Context()

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey, fingerprint string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(uid, idemKey)
			fingerprint = createFingerprint(date, at, guests)

			stored, err := idem.Begin(ctx, idemStorageKey, fingerprint)
			if err != nil {
				switch {
				case errors.Is(err, redisrepo.ErrIdempotencyInProgress):
					c.Header("Retry-After", "1")
					c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
				case errors.Is(err, redisrepo.ErrIdempotencyKeyReused):
					c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
				default:
					respondErr(c, err)
				}
				return
			}

			if stored != nil {
				c.Header("Idempotency-Key", idemKey)
				c.Data(stored.Status, "application/json; charset=utf-8", stored.Body)
				return
			}
		}

		b, err := svcs.Booking.Create(ctx, uid, date, at, guests)
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(ctx, idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := toBookingResponse(b)

		if idemStorageKey != "" {
			body, _ := json.Marshal(resp)
			if err := idem.Save(ctx, idemStorageKey, redisrepo.StoredResponse{
				Fingerprint: fingerprint,
				Status:      http.StatusCreated,
				Body:        body,
			}); err != nil {
				_ = c.Error(err)
			}
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// createFingerprint identifies a create request by its parsed slot, so
// formatting differences in the body do not count as a different request.
func createFingerprint(date time.Time, at domain.TimeOfDay, guests int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", repository.DateKey(date), at, guests)))
	return hex.EncodeToString(sum[:])
}

// @Summary  List my bookings
// @Tags     bookings
// @Produce  json
// @Param    X-User-ID  header  int  true  "User ID"
// @Success  200 {array} BookingResponse
// @Router   /bookings [get]
func handleListBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookings, err := svcs.Booking.ListForUser(c.Request.Context(), userID(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toBookingResponses(bookings))
	}
}

// @Summary  Get booking
// @Tags     bookings
// @Produce  json
// @Param    X-User-ID  header  int     true  "User ID"
// @Param    id         path    string  true  "Booking ID (uuid)"
// @Success  200 {object} BookingResponse
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{id} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Booking.Get(c.Request.Context(), userID(c), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toBookingResponse(b))
	}
}

// @Summary  Edit guest count
// @Description Re-runs table allocation for the new party size.
// @Tags     bookings
// @Accept   json
// @Produce  json
// @Param    X-User-ID  header  int                true  "User ID"
// @Param    id         path    string             true  "Booking ID (uuid)"
// @Param    req        body    EditGuestsRequest  true  "payload"
// @Success  200 {object} EditGuestsResponse
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse
// @Router   /bookings/{id}/guests [patch]
func handleEditGuests(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req EditGuestsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		guests, err := booking.ParseGuests(string(req.Guests))
		if err != nil {
			respondErr(c, err)
			return
		}

		b, err := svcs.Booking.EditGuests(c.Request.Context(), userID(c), id, guests)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, EditGuestsResponse{
			Message: booking.MsgUpdated,
			Booking: toBookingResponse(b),
		})
	}
}

// @Summary  Cancel booking
// @Tags     bookings
// @Produce  json
// @Param    X-User-ID  header  int     true  "User ID"
// @Param    id         path    string  true  "Booking ID (uuid)"
// @Success  200 {object} BookingResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse
// @Router   /bookings/{id}/cancel [post]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Booking.Cancel(c.Request.Context(), userID(c), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toBookingResponse(b))
	}
}

// @Summary  Batch create tables
// @Tags     admin
// @Accept   json
// @Produce  json
// @Param    req body  CreateTablesRequest true "payload"
// @Success  201 {object} TablesResponse
// @Failure  409 {object} ErrorResponse
// @Router   /admin/tables [post]
func handleCreateTables(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTablesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		tables := make([]domain.Table, 0, len(req.Tables))
		for _, t := range req.Tables {
			tables = append(tables, domain.Table{Number: t.Number, Seats: t.Seats})
		}

		created, err := svcs.Admin.CreateTables(c.Request.Context(), tables)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, toTablesResponse(created))
	}
}

// @Summary  Set booking status
// @Tags     admin
// @Accept   json
// @Produce  json
// @Param    id   path  string            true  "Booking ID (uuid)"
// @Param    req  body  SetStatusRequest  true  "payload"
// @Success  200 {object} BookingResponse
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse
// @Router   /admin/bookings/{id}/status [patch]
func handleSetStatus(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req SetStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		b, err := svcs.Admin.SetStatus(c.Request.Context(), id, domain.BookingStatus(req.Status))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toBookingResponse(b))
	}
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var verr *booking.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: verr.Message, Field: verr.Field})
		return
	}

	var rl *booking.RateLimitedError
	if errors.As(err, &rl) {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many booking requests"})
		return
	}

	switch {
	// booking service
	case errors.Is(err, booking.ErrSchedulingConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: booking.MsgConflict})
	case errors.Is(err, booking.ErrNoTableAvailable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: booking.MsgNoTables})
	case errors.Is(err, booking.ErrNotEditable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: booking.ErrNotEditable.Error()})
	case errors.Is(err, booking.ErrNotCancellable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: booking.ErrNotCancellable.Error()})
	case errors.Is(err, booking.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
	case errors.Is(err, booking.ErrRateLimited):
		c.Header("Retry-After", strconv.Itoa(int(time.Minute.Seconds())))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many booking requests"})
	// admin service
	case errors.Is(err, admin.ErrTablesConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: admin.ErrTablesConflict.Error()})
	case errors.Is(err, admin.ErrInvalidTable):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: admin.ErrInvalidTable.Error()})
	case errors.Is(err, admin.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: admin.ErrInvalidStatus.Error(), Field: "status"})
	case errors.Is(err, admin.ErrStatusTransition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: admin.ErrStatusTransition.Error()})
	case errors.Is(err, admin.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
