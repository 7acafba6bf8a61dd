package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemLock   = "LOCK:"
	idemResult = "RES:"
)

var (
	// ErrIdempotencyInProgress is returned by Begin while another request
	// holds the same key and has not stored a result yet.
	ErrIdempotencyInProgress = errors.New("idempotency key in progress")
	// ErrIdempotencyKeyReused is returned by Begin when the key was first
	// used for a request with a different fingerprint.
	ErrIdempotencyKeyReused = errors.New("idempotency key reused with a different request")
)

// StoredResponse is the response replayed for a repeated idempotency key.
type StoredResponse struct {
	Fingerprint string          `json:"fingerprint"`
	Status      int             `json:"status"`
	Body        json.RawMessage `json:"body"`
}

// IdempotencyStore remembers the outcome of a request under a client supplied
// key. A key is either locked (request running) or holds a stored response;
// both carry the fingerprint of the request that claimed the key.
type IdempotencyStore struct {
	rdb     *redis.Client
	ttl     time.Duration
	lockTTL time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl, lockTTL time.Duration) *IdempotencyStore {
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &IdempotencyStore{rdb: rdb, ttl: ttl, lockTTL: lockTTL}
}

// Begin claims key for the request identified by fingerprint.
//
// Returns:
//   - *StoredResponse: the earlier response when the key already completed.
//   - error: ErrIdempotencyInProgress if another request holds the key,
//     ErrIdempotencyKeyReused if the key belongs to a different request.
//
// A nil response with a nil error means the caller owns the key and must
// either Save or Release it.
func (s *IdempotencyStore) Begin(ctx context.Context, key, fingerprint string) (*StoredResponse, error) {
	ok, err := s.rdb.SetNX(ctx, key, idemLock+fingerprint, s.lockTTL).Result()
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}

	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		// released or expired between SETNX and GET
		return nil, ErrIdempotencyInProgress
	}
	if err != nil {
		return nil, err
	}

	return resolveClaim(v, fingerprint)
}

// Save stores resp under key. resp.Fingerprint must be the one passed to
// Begin.
func (s *IdempotencyStore) Save(ctx context.Context, key string, resp StoredResponse) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, idemResult+string(b), s.ttl).Err()
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// resolveClaim decides what a request with fingerprint gets when the key
// already holds v.
func resolveClaim(v, fingerprint string) (*StoredResponse, error) {
	if owner, ok := strings.CutPrefix(v, idemLock); ok {
		if owner != fingerprint {
			return nil, ErrIdempotencyKeyReused
		}
		return nil, ErrIdempotencyInProgress
	}

	raw, ok := strings.CutPrefix(v, idemResult)
	if !ok {
		return nil, fmt.Errorf("unexpected idempotency value %q", v)
	}

	var out StoredResponse
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if out.Fingerprint != fingerprint {
		return nil, ErrIdempotencyKeyReused
	}

	return &out, nil
}
