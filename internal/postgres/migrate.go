package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the bundled schema files in name order. Every file is
// idempotent, so running it against an up to date database is a no-op.
func Migrate(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	const op = "postgres.Migrate"

	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	sort.Strings(names)

	for _, name := range names {
		sql, err := migrations.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", op, name, err)
		}

		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", op, name, err)
		}
	}

	return names, nil
}
