package postgresrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/busline/internal/repository"
)

// KVRepo stores gateway collections as JSONB documents in kv_store.
type KVRepo struct {
	store *Store
	pool  *pgxpool.Pool
}

// Get retrieves the document stored under key.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - key: collection key.
//
// Returns:
//   - repository.Entry: Found is false when the key does not exist.
//   - error: any database error.
func (r *KVRepo) Get(ctx context.Context, key string) (repository.Entry, error) {
	const op = "postgresrepo.KVRepo.Get"

	var e repository.Entry
	err := r.pool.QueryRow(ctx,
		`SELECT value, version
		 FROM kv_store WHERE key = $1`,
		key,
	).Scan(&e.Value, &e.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Entry{}, nil
		}

		return repository.Entry{}, wrapDBErr(op, err)
	}

	e.Found = true

	return e, nil
}

// CompareAndSwap replaces the document under key if its version is still
// expected.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - key: collection key.
//   - value: JSON document to store.
//   - expected: version read by the caller, 0 for a key that did not exist.
//
// Returns:
//   - error: repository.ErrConflict if the version moved or the transaction
//     lost a serialization race.
func (r *KVRepo) CompareAndSwap(ctx context.Context, key string, value []byte, expected int64) error {
	const op = "postgresrepo.KVRepo.CompareAndSwap"

	err := r.store.RunTx(ctx, func(ctx context.Context, tx DB) error {
		return r.casCore(ctx, tx, key, value, expected)
	})
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *KVRepo) casCore(
	ctx context.Context,
	db DB,
	key string,
	value []byte,
	expected int64,
) error {
	const op = "postgresrepo.KVRepo.casCore"

	var current int64
	err := db.QueryRow(ctx,
		`SELECT version FROM kv_store WHERE key = $1 FOR UPDATE`,
		key,
	).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if current != expected {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	if expected == 0 {
		tag, err := db.Exec(ctx,
			`INSERT INTO kv_store(key, value, version)
			 VALUES ($1, $2, 1)
			 ON CONFLICT (key) DO NOTHING`,
			key, value,
		)
		if err != nil {
			return fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}

		return nil
	}

	tag, err := db.Exec(ctx,
		`UPDATE kv_store
		 SET value = $2, version = version + 1, updated_at = now()
		 WHERE key = $1 AND version = $3`,
		key, value, expected,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	return nil
}
