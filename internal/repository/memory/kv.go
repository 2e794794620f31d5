package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/kirinyoku/busline/internal/repository"
)

type item struct {
	value   []byte
	version int64
}

// KV is an in-process repository.KV. It backs tests and single-instance
// deployments that do not need durability.
type KV struct {
	mu   sync.RWMutex
	data map[string]item
}

func New() *KV {
	return &KV{data: make(map[string]item)}
}

func (s *KV) Get(ctx context.Context, key string) (repository.Entry, error) {
	if err := ctx.Err(); err != nil {
		return repository.Entry{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.data[key]
	if !ok {
		return repository.Entry{}, nil
	}

	return repository.Entry{
		Value:   append([]byte(nil), it.value...),
		Version: it.version,
		Found:   true,
	}, nil
}

func (s *KV) CompareAndSwap(ctx context.Context, key string, value []byte, expected int64) error {
	const op = "memory.KV.CompareAndSwap"

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data[key].version != expected {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	s.data[key] = item{
		value:   append([]byte(nil), value...),
		version: expected + 1,
	}

	return nil
}

// Put overwrites key regardless of its version.
func (s *KV) Put(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = item{
		value:   append([]byte(nil), value...),
		version: s.data[key].version + 1,
	}
}
