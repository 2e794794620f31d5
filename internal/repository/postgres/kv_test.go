package postgresrepo

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kirinyoku/busline/internal/repository"
	"github.com/pashagolub/pgxmock/v3"
)

func newMockDB(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock init error: %v", err)
	}
	t.Cleanup(mock.Close)

	return mock
}

func TestCasCoreInsert(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectQuery("SELECT version FROM kv_store").
		WithArgs("k").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO kv_store").
		WithArgs("k", []byte(`[1]`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	var r KVRepo
	if err := r.casCore(context.Background(), mock, "k", []byte(`[1]`), 0); err != nil {
		t.Fatalf("casCore error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCasCoreUpdate(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectQuery("SELECT version FROM kv_store").
		WithArgs("k").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(2)))
	mock.ExpectExec("UPDATE kv_store").
		WithArgs("k", []byte(`[2]`), int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	var r KVRepo
	if err := r.casCore(context.Background(), mock, "k", []byte(`[2]`), 2); err != nil {
		t.Fatalf("casCore error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCasCoreConflicts(t *testing.T) {
	tests := []struct {
		name     string
		expected int64
		setup    func(mock pgxmock.PgxPoolIface)
	}{
		{
			name:     "version moved",
			expected: 2,
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT version FROM kv_store").
					WithArgs("k").
					WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(3)))
			},
		},
		{
			name:     "key created concurrently",
			expected: 0,
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT version FROM kv_store").
					WithArgs("k").
					WillReturnError(pgx.ErrNoRows)
				mock.ExpectExec("INSERT INTO kv_store").
					WithArgs("k", []byte(`[]`)).
					WillReturnResult(pgxmock.NewResult("INSERT", 0))
			},
		},
		{
			name:     "update matched no row",
			expected: 2,
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT version FROM kv_store").
					WithArgs("k").
					WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(2)))
				mock.ExpectExec("UPDATE kv_store").
					WithArgs("k", []byte(`[]`), int64(2)).
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
			},
		},
		{
			name:     "serialization failure",
			expected: 2,
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT version FROM kv_store").
					WithArgs("k").
					WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(2)))
				mock.ExpectExec("UPDATE kv_store").
					WithArgs("k", []byte(`[]`), int64(2)).
					WillReturnError(&pgconn.PgError{Code: "40001"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockDB(t)
			tt.setup(mock)

			var r KVRepo
			err := r.casCore(context.Background(), mock, "k", []byte(`[]`), tt.expected)
			if !errors.Is(err, repository.ErrConflict) {
				t.Fatalf("expected ErrConflict, got %v", err)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestCasCoreReadError(t *testing.T) {
	mock := newMockDB(t)

	boom := errors.New("connection reset")
	mock.ExpectQuery("SELECT version FROM kv_store").
		WithArgs("k").
		WillReturnError(boom)

	var r KVRepo
	err := r.casCore(context.Background(), mock, "k", []byte(`[]`), 1)
	if !errors.Is(err, boom) || errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected the driver error, got %v", err)
	}
}
