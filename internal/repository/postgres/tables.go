package postgresrepo

import (
	"context"

	"github.com/Katia-D15/book-my-table/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TableRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *TableRepo) With(db DB) *TableRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *TableRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// ListTables returns the whole table inventory, smallest tables first.
func (r *TableRepo) ListTables(ctx context.Context) ([]domain.Table, error) {
	const op = "postgresrepo.TableRepo.ListTables"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, number, seats
       	 FROM restaurant_tables
     	 ORDER BY seats, number`,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var tables []domain.Table
	for rows.Next() {
		var t domain.Table
		if err := rows.Scan(&t.ID, &t.Number, &t.Seats); err != nil {
			return nil, wrapDBErr(op, err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return tables, nil
}

// BatchCreate inserts tables and returns them with their ids.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - tables: tables to create; ID is ignored.
//
// Returns:
//   - []domain.Table: the created tables.
//   - error: repository.ErrConflict if a table number already exists.
func (r *TableRepo) BatchCreate(ctx context.Context, tables []domain.Table) ([]domain.Table, error) {
	const op = "postgresrepo.TableRepo.BatchCreate"

	db := r.handle()

	batch := &pgx.Batch{}
	for _, t := range tables {
		batch.Queue(
			`INSERT INTO restaurant_tables(number, seats)
         	 VALUES ($1, $2)
     		 RETURNING id`,
			t.Number, t.Seats,
		)
	}

	br := db.SendBatch(ctx, batch)

	created := make([]domain.Table, len(tables))
	for i, t := range tables {
		if err := br.QueryRow().Scan(&t.ID); err != nil {
			_ = br.Close()
			return nil, wrapDBErr(op, err)
		}
		created[i] = t
	}

	if err := br.Close(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return created, nil
}
