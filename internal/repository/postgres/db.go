package postgresrepo

import (
	"context"
	"fmt"

	"github.com/Katia-D15/book-my-table/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (s *Store) Tables() repository.Tables     { return &TableRepo{pool: s.pool} }
func (s *Store) Bookings() repository.Bookings { return &BookingRepo{pool: s.pool} }

// Bind returns repositories that run every statement on db.
func Bind(db DB) repository.Repos {
	return bound{db: db}
}

type bound struct {
	db DB
}

func (b bound) Tables() repository.Tables     { return (&TableRepo{}).With(b.db) }
func (b bound) Bookings() repository.Bookings { return (&BookingRepo{}).With(b.db) }

// InTx runs fn in a serializable transaction with repositories bound to it.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repos) error) error {
	return s.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		return fn(ctx, Bind(tx))
	})
}
