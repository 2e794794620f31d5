package repository

import "context"

// Entry is a stored value together with its version. Version is 0 when the
// key does not exist.
type Entry struct {
	Value   []byte
	Version int64
	Found   bool
}

// KV is the key-value storage the gateway persists its collections in.
//
// CompareAndSwap writes value only if the stored version still equals
// expected (0 meaning "absent") and bumps the version; otherwise it returns
// ErrConflict.
type KV interface {
	Get(ctx context.Context, key string) (Entry, error)
	CompareAndSwap(ctx context.Context, key string, value []byte, expected int64) error
}
