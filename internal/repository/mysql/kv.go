package mysqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/kirinyoku/busline/internal/repository"
)

// KVRepo stores gateway collections in a MySQL kv_store table.
type KVRepo struct {
	db *sql.DB
}

func NewKVRepo(db *sql.DB) *KVRepo {
	return &KVRepo{db: db}
}

// EnsureSchema creates the key-value table if it does not exist yet.
func (r *KVRepo) EnsureSchema(ctx context.Context) error {
	const op = "mysqlrepo.KVRepo.EnsureSchema"

	_, err := r.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS kv_store (
			kv_key     VARCHAR(191) NOT NULL PRIMARY KEY,
			value      LONGBLOB NOT NULL,
			version    BIGINT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		)`,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *KVRepo) Get(ctx context.Context, key string) (repository.Entry, error) {
	const op = "mysqlrepo.KVRepo.Get"

	var e repository.Entry
	err := r.db.QueryRowContext(ctx,
		`SELECT value, version FROM kv_store WHERE kv_key = ?`,
		key,
	).Scan(&e.Value, &e.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.Entry{}, nil
		}
		return repository.Entry{}, wrapDBErr(op, err)
	}

	e.Found = true

	return e, nil
}

func (r *KVRepo) CompareAndSwap(ctx context.Context, key string, value []byte, expected int64) error {
	const op = "mysqlrepo.KVRepo.CompareAndSwap"

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBErr(op, err)
	}

	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM kv_store WHERE kv_key = ? FOR UPDATE`,
		key,
	).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return wrapDBErr(op, err)
	}

	if current != expected {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	if expected == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO kv_store(kv_key, value, version) VALUES (?, ?, 1)`,
			key, value,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE kv_store SET value = ?, version = version + 1 WHERE kv_key = ? AND version = ?`,
			value, key, expected,
		)
	}
	if err != nil {
		return wrapDBErr(op, err)
	}

	if err := tx.Commit(); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func wrapDBErr(op string, err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		// duplicate entry, deadlock, lock wait timeout
		case 1062, 1213, 1205:
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
	}

	return fmt.Errorf("%s:%w", op, err)
}
