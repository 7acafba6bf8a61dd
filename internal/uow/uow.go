package uow

import (
	"context"
	"time"

	"github.com/Katia-D15/book-my-table/internal/repository"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// TxRunner runs fn inside one transaction and commits when fn returns nil.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repos) error) error
}

type Option func(*UoW)

// WithRetry re-runs the whole unit of work when retryable reports the error
// as transient, up to attempts runs in total, sleeping backoff*n before the
// n-th retry.
func WithRetry(attempts int, backoff time.Duration, retryable func(error) bool) Option {
	return func(u *UoW) {
		if attempts > 0 {
			u.attempts = attempts
		}
		u.backoff = backoff
		u.retryable = retryable
	}
}

// UoW represents a unit of work.
type UoW struct {
	runner    TxRunner
	attempts  int
	backoff   time.Duration
	retryable func(error) bool
}

func NewUoW(runner TxRunner, opts ...Option) *UoW {
	u := &UoW{runner: runner, attempts: 1}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Do runs fn inside the transaction. After a successful commit,
// it executes all after-commit hooks registered by the attempt that committed.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, repos repository.Repos, after func(AfterCommit)) error,
) error {
	var err error

	for attempt := 1; attempt <= u.attempts; attempt++ {
		var hooks []AfterCommit

		err = u.runner.InTx(ctx, func(ctx context.Context, repos repository.Repos) error {
			return fn(ctx, repos, func(h AfterCommit) {
				hooks = append(hooks, h)
			})
		})
		if err == nil {
			for _, h := range hooks {
				h(ctx)
			}
			return nil
		}

		if u.retryable == nil || !u.retryable(err) || attempt == u.attempts {
			return err
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(u.backoff * time.Duration(attempt)):
		}
	}

	return err
}
