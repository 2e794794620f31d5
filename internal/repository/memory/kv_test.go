package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/kirinyoku/busline/internal/repository"
)

func TestKVCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	kv := New()

	e, err := kv.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if e.Found || e.Version != 0 {
		t.Fatalf("expected missing key, got %+v", e)
	}

	if err := kv.CompareAndSwap(ctx, "k", []byte("a"), 0); err != nil {
		t.Fatalf("first CAS error: %v", err)
	}

	if err := kv.CompareAndSwap(ctx, "k", []byte("b"), 0); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict on stale version, got %v", err)
	}

	if err := kv.CompareAndSwap(ctx, "k", []byte("c"), 1); err != nil {
		t.Fatalf("second CAS error: %v", err)
	}

	e, _ = kv.Get(ctx, "k")
	if string(e.Value) != "c" || e.Version != 2 {
		t.Fatalf("unexpected entry %q v%d", e.Value, e.Version)
	}
}

func TestKVPut(t *testing.T) {
	kv := New()
	kv.Put("k", []byte("x"))
	kv.Put("k", []byte("y"))

	e, _ := kv.Get(context.Background(), "k")
	if string(e.Value) != "y" || e.Version != 2 {
		t.Fatalf("unexpected entry %q v%d", e.Value, e.Version)
	}
}
