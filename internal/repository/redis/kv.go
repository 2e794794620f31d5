package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kirinyoku/busline/internal/repository"
	"github.com/redis/go-redis/v9"
)

const (
	fieldValue   = "value"
	fieldVersion = "version"
)

// KV keeps every collection in a hash holding the JSON document and its
// version. Writes are optimistic WATCH/MULTI transactions.
type KV struct {
	rdb *redis.Client
}

func NewKV(rdb *redis.Client) *KV {
	return &KV{rdb: rdb}
}

func (s *KV) Get(ctx context.Context, key string) (repository.Entry, error) {
	const op = "redis.KV.Get"

	vals, err := s.rdb.HMGet(ctx, key, fieldValue, fieldVersion).Result()
	if err != nil {
		return repository.Entry{}, fmt.Errorf("%s:%w", op, err)
	}

	return decodeEntry(op, vals)
}

func (s *KV) CompareAndSwap(ctx context.Context, key string, value []byte, expected int64) error {
	const op = "redis.KV.CompareAndSwap"

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, fieldVersion).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		if current != expected {
			return repository.ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldValue, value, fieldVersion, expected+1)
			return nil
		})

		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func decodeEntry(op string, vals []any) (repository.Entry, error) {
	if len(vals) != 2 || vals[0] == nil {
		return repository.Entry{}, nil
	}

	raw, ok := vals[0].(string)
	if !ok {
		return repository.Entry{}, fmt.Errorf("%s:%w", op, repository.ErrCorrupt)
	}

	verStr, _ := vals[1].(string)
	ver, err := strconv.ParseInt(verStr, 10, 64)
	if err != nil {
		return repository.Entry{}, fmt.Errorf("%s: bad version %q:%w", op, verStr, repository.ErrCorrupt)
	}

	return repository.Entry{
		Value:   []byte(raw),
		Version: ver,
		Found:   true,
	}, nil
}
