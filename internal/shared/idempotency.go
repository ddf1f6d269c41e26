package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIdempotencyConflict indicates the key was already used for the operation.
var ErrIdempotencyConflict = errors.New("operation already processed")

// IdempotencyStore guards one-shot operations (shipments, returns) against
// duplicate submission. Keys are persisted per operation kind.
type IdempotencyStore struct {
	pool  *pgxpool.Pool
	clock Clock
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool, clock: SystemClock}
}

// Reserve records the key, failing with ErrIdempotencyConflict when it has
// been seen before for the same operation.
func (s *IdempotencyStore) Reserve(ctx context.Context, key, operation string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return NewValidation("idempotency key", 0, "key required")
	}
	if operation == "" {
		return NewValidation("idempotency key", 0, "operation required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO idempotency_keys (key, operation, created_at) VALUES ($1, $2, $3)`,
		key, operation, s.clock())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Release drops a key so a failed operation can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key)
	return err
}

// Purge removes keys older than the retention window.
func (s *IdempotencyStore) Purge(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	cutoff := s.clock().Add(-olderThan)
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}
