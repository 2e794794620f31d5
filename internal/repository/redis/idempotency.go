package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const idemNS = ns + ":idem"

var (
	ErrIdemInFlight = errors.New("idempotency key in progress")
	ErrIdemMismatch = errors.New("idempotency key reused with a different request")
)

// KeyIdemBooking scopes an Idempotency-Key header to the user submitting it.
func KeyIdemBooking(userID, idemKey string) string {
	return fmt.Sprintf("%s:bookings:%s:%s", idemNS, userID, idemKey)
}

// StoredResponse is the outcome of a finished request, replayed verbatim to
// retries carrying the same key.
type StoredResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type idemRecord struct {
	Fingerprint string          `json:"fingerprint"`
	Done        bool            `json:"done"`
	Response    *StoredResponse `json:"response,omitempty"`
}

// IdempotencyStore remembers the response of a booking request so a retried
// request with the same key does not book twice.
type IdempotencyStore struct {
	rdb     *redis.Client
	ttl     time.Duration
	lockTTL time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl, lockTTL: time.Minute}
}

// Begin claims key for a request identified by fingerprint.
//
// Returns:
//   - *StoredResponse, nil: the request already finished, replay it.
//   - nil, nil: the caller owns the key and must Complete or Abort it.
//   - ErrIdemInFlight: another request with the key is still running.
//   - ErrIdemMismatch: the key was used for a different request body.
func (s *IdempotencyStore) Begin(ctx context.Context, key, fingerprint string) (*StoredResponse, error) {
	const op = "redis.IdempotencyStore.Begin"

	pending, err := json.Marshal(idemRecord{Fingerprint: fingerprint})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	acquired, err := s.rdb.SetNX(ctx, key, pending, s.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	if acquired {
		return nil, nil
	}

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		// released between SETNX and GET
		return nil, ErrIdemInFlight
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var rec idemRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if rec.Fingerprint != fingerprint {
		return nil, ErrIdemMismatch
	}
	if !rec.Done || rec.Response == nil {
		return nil, ErrIdemInFlight
	}

	return rec.Response, nil
}

// Complete stores the final response under key for the store's TTL.
func (s *IdempotencyStore) Complete(ctx context.Context, key, fingerprint string, resp StoredResponse) error {
	b, err := json.Marshal(idemRecord{Fingerprint: fingerprint, Done: true, Response: &resp})
	if err != nil {
		return err
	}

	return s.rdb.Set(ctx, key, b, s.ttl).Err()
}

// Abort releases key so the request can be retried from scratch.
func (s *IdempotencyStore) Abort(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
