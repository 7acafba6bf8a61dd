package postgresrepo

import (
	"context"
	"time"

	"github.com/Katia-D15/book-my-table/internal/domain"
	"github.com/Katia-D15/book-my-table/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// selectBookings joins every booking to its tables. Rows of one booking are
// adjacent as long as ORDER BY ends with b.id before the table columns.
const selectBookings = `
	SELECT b.id, b.user_id, b.guests, b.date, b.time, b.status, b.created_at,
	       t.id, t.number, t.seats
	FROM bookings b
	LEFT JOIN booking_tables bt ON bt.booking_id = b.id
	LEFT JOIN restaurant_tables t ON t.id = bt.table_id`

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// ActiveOnDate returns every non-cancelled booking on date with its tables.
func (r *BookingRepo) ActiveOnDate(ctx context.Context, date time.Time) ([]domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.ActiveOnDate"

	bookings, err := r.list(ctx,
		selectBookings+`
		WHERE b.date = $1 AND b.status <> 'cancelled'
		ORDER BY b.time, b.created_at, b.id, t.seats, t.number`,
		pgDate(date),
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return bookings, nil
}

// ActiveForUserOnDate returns the user's non-cancelled bookings on date.
func (r *BookingRepo) ActiveForUserOnDate(
	ctx context.Context,
	userID int64,
	date time.Time,
) ([]domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.ActiveForUserOnDate"

	bookings, err := r.list(ctx,
		selectBookings+`
		WHERE b.user_id = $1 AND b.date = $2 AND b.status <> 'cancelled'
		ORDER BY b.time, b.created_at, b.id, t.seats, t.number`,
		userID, pgDate(date),
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return bookings, nil
}

// ListByUser returns all bookings of a user, latest date first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.ListByUser"

	bookings, err := r.list(ctx,
		selectBookings+`
		WHERE b.user_id = $1
		ORDER BY b.date DESC, b.time DESC, b.id, t.seats, t.number`,
		userID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return bookings, nil
}

// Get retrieves a booking with its tables.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - id: booking id.
//
// Returns:
//   - *domain.Booking: the booking when found.
//   - error: repository.ErrNotFound if there is no such booking.
func (r *BookingRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.Get"

	b, err := r.one(ctx,
		selectBookings+`
		WHERE b.id = $1
		ORDER BY t.seats, t.number`,
		id,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

// GetForUpdate is Get with a row lock on the booking held until the
// transaction ends. It only makes sense on a repo bound to a transaction.
func (r *BookingRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.GetForUpdate"

	b, err := r.one(ctx,
		selectBookings+`
		WHERE b.id = $1
		ORDER BY t.seats, t.number
		FOR UPDATE OF b`,
		id,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

// Create inserts a booking and its table assignments.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - b: booking to insert; ID and CreatedAt must be set by the caller.
//
// Returns:
//   - error: repository.ErrConflict if the id is already taken.
//   - error: repository.ErrNotFound if one of the tables no longer exists.
func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	const op = "postgresrepo.BookingRepo.Create"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`INSERT INTO bookings(id, user_id, guests, date, time, status, created_at)
       	 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.UserID, b.Guests, pgDate(b.Date), pgTime(b.Time), string(b.Status), b.CreatedAt,
	); err != nil {
		return wrapDBErr(op, err)
	}

	if err := insertBookingTables(ctx, db, b.ID, b.TableIDs()); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// ReplaceTables updates the guest count and swaps the table set of a booking.
//
// Returns:
//   - error: repository.ErrNotFound if the booking does not exist.
func (r *BookingRepo) ReplaceTables(
	ctx context.Context,
	id uuid.UUID,
	guests int,
	tables []domain.Table,
) error {
	const op = "postgresrepo.BookingRepo.ReplaceTables"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE bookings SET guests = $2 WHERE id = $1`,
		id, guests,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	if _, err := db.Exec(ctx, `DELETE FROM booking_tables WHERE booking_id = $1`, id); err != nil {
		return wrapDBErr(op, err)
	}

	ids := make([]int64, 0, len(tables))
	for _, t := range tables {
		ids = append(ids, t.ID)
	}

	if err := insertBookingTables(ctx, db, id, ids); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// SetStatus changes the status of a booking.
//
// Returns:
//   - error: repository.ErrNotFound if the booking does not exist.
func (r *BookingRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) error {
	const op = "postgresrepo.BookingRepo.SetStatus"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE bookings SET status = $2 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}

func insertBookingTables(ctx context.Context, db DB, bookingID uuid.UUID, tableIDs []int64) error {
	if len(tableIDs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, tid := range tableIDs {
		batch.Queue(
			`INSERT INTO booking_tables(booking_id, table_id)
         	 VALUES ($1, $2)`,
			bookingID, tid,
		)
	}

	return db.SendBatch(ctx, batch).Close()
}

func (r *BookingRepo) one(ctx context.Context, sql string, args ...any) (*domain.Booking, error) {
	bookings, err := r.list(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	if len(bookings) == 0 {
		return nil, repository.ErrNotFound
	}

	return &bookings[0], nil
}

func (r *BookingRepo) list(ctx context.Context, sql string, args ...any) ([]domain.Booking, error) {
	db := r.handle()

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		var (
			b           domain.Booking
			status      string
			at          pgtype.Time
			tableID     *int64
			tableNumber *int
			tableSeats  *int
		)

		if err := rows.Scan(
			&b.ID, &b.UserID, &b.Guests, &b.Date, &at, &status, &b.CreatedAt,
			&tableID, &tableNumber, &tableSeats,
		); err != nil {
			return nil, err
		}

		if n := len(bookings); n == 0 || bookings[n-1].ID != b.ID {
			b.Time = fromPgTime(at)
			b.Status = domain.BookingStatus(status)
			b.Tables = []domain.Table{}
			bookings = append(bookings, b)
		}

		if tableID != nil {
			last := &bookings[len(bookings)-1]
			last.Tables = append(last.Tables, domain.Table{
				ID:     *tableID,
				Number: *tableNumber,
				Seats:  *tableSeats,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return bookings, nil
}
