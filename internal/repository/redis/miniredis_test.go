package redis

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kirinyoku/busline/internal/repository"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return rdb
}

func TestKVCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	kv := NewKV(newTestClient(t))

	e, err := kv.Get(ctx, "busline:v1:bookings")
	if err != nil || e.Found {
		t.Fatalf("expected missing entry, got %+v %v", e, err)
	}

	if err := kv.CompareAndSwap(ctx, "busline:v1:bookings", []byte(`[]`), 0); err != nil {
		t.Fatalf("first write: %v", err)
	}

	// a second writer that also read version 0 loses
	if err := kv.CompareAndSwap(ctx, "busline:v1:bookings", []byte(`[1]`), 0); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("stale write: expected ErrConflict, got %v", err)
	}

	if err := kv.CompareAndSwap(ctx, "busline:v1:bookings", []byte(`[2]`), 1); err != nil {
		t.Fatalf("second write: %v", err)
	}

	e, err = kv.Get(ctx, "busline:v1:bookings")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !e.Found || e.Version != 2 || string(e.Value) != `[2]` {
		t.Fatalf("unexpected entry %+v", e)
	}
}

func TestCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	c := New(newTestClient(t))

	var calls atomic.Int32
	load := func(context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"TKT-1"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := GetOrSetJSON(ctx, c, KeyUserBookings("u1"), time.Minute, load)
		if err != nil || !slices.Equal(got, []string{"TKT-1"}) {
			t.Fatalf("GetOrSetJSON = %v, %v", got, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("loader called %d times, want 1", n)
	}

	if err := c.InvalidateBookings(ctx, "u1"); err != nil {
		t.Fatalf("InvalidateBookings error: %v", err)
	}
	if _, err := GetOrSetJSON(ctx, c, KeyUserBookings("u1"), time.Minute, load); err != nil {
		t.Fatalf("GetOrSetJSON error: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("loader called %d times after invalidation, want 2", n)
	}
}

func TestCacheInvalidationDuringLoad(t *testing.T) {
	ctx := context.Background()
	c := New(newTestClient(t))

	ledger := []string{"TKT-1"}
	read := func(context.Context) ([]string, error) {
		return slices.Clone(ledger), nil
	}

	// the load snapshots the ledger, then a cancellation commits and
	// invalidates before the load stores its result
	got, err := GetOrSetJSON(ctx, c, KeyAllBookings(), time.Minute, func(ctx context.Context) ([]string, error) {
		snapshot, _ := read(ctx)
		ledger = ledger[:0]
		if err := c.InvalidateBookings(ctx, "u1"); err != nil {
			t.Fatalf("InvalidateBookings error: %v", err)
		}
		return snapshot, nil
	})
	if err != nil || !slices.Equal(got, []string{"TKT-1"}) {
		t.Fatalf("in-flight load = %v, %v", got, err)
	}

	for _, key := range []string{KeyAllBookings(), KeyUserBookings("u1")} {
		got, err := GetOrSetJSON(ctx, c, key, time.Minute, read)
		if err != nil {
			t.Fatalf("%s: %v", key, err)
		}
		if len(got) != 0 {
			t.Fatalf("%s: cancelled booking still served: %v", key, got)
		}
	}
}

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	s := NewIdempotencyStore(newTestClient(t), time.Hour)
	key := KeyIdemBooking("u1", "k1")

	stored, err := s.Begin(ctx, key, "fp-a")
	if err != nil || stored != nil {
		t.Fatalf("first Begin = %v, %v", stored, err)
	}

	if _, err := s.Begin(ctx, key, "fp-a"); !errors.Is(err, ErrIdemInFlight) {
		t.Fatalf("concurrent retry: expected ErrIdemInFlight, got %v", err)
	}
	if _, err := s.Begin(ctx, key, "fp-b"); !errors.Is(err, ErrIdemMismatch) {
		t.Fatalf("other payload while running: expected ErrIdemMismatch, got %v", err)
	}

	resp := StoredResponse{Status: 201, Body: []byte(`{"id":"TKT-1"}`)}
	if err := s.Complete(ctx, key, "fp-a", resp); err != nil {
		t.Fatalf("Complete error: %v", err)
	}

	stored, err = s.Begin(ctx, key, "fp-a")
	if err != nil || stored == nil {
		t.Fatalf("replay Begin = %v, %v", stored, err)
	}
	if stored.Status != 201 || string(stored.Body) != `{"id":"TKT-1"}` {
		t.Fatalf("unexpected replay %+v", stored)
	}

	if _, err := s.Begin(ctx, key, "fp-b"); !errors.Is(err, ErrIdemMismatch) {
		t.Fatalf("other payload after completion: expected ErrIdemMismatch, got %v", err)
	}

	other := KeyIdemBooking("u1", "k2")
	if _, err := s.Begin(ctx, other, "fp-a"); err != nil {
		t.Fatalf("Begin error: %v", err)
	}
	if err := s.Abort(ctx, other); err != nil {
		t.Fatalf("Abort error: %v", err)
	}
	if stored, err := s.Begin(ctx, other, "fp-a"); err != nil || stored != nil {
		t.Fatalf("Begin after Abort = %v, %v", stored, err)
	}
}

func TestSlidingWindowLimiter(t *testing.T) {
	ctx := context.Background()
	l := NewSlidingWindowLimiter(newTestClient(t), "booking", 2, time.Minute)

	now := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	var allowed []bool
	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "ip:10.0.0.1")
		if err != nil {
			t.Fatalf("Allow error: %v", err)
		}
		allowed = append(allowed, d.Allowed)
		now = now.Add(10 * time.Second)
	}
	if !slices.Equal(allowed, []bool{true, true, false}) {
		t.Fatalf("allowed = %v, want [true true false]", allowed)
	}

	// other buckets are independent
	if d, err := l.Allow(ctx, "ip:10.0.0.2"); err != nil || !d.Allowed {
		t.Fatalf("other bucket = %+v, %v", d, err)
	}

	d, err := l.Allow(ctx, "ip:10.0.0.1")
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if d.Allowed || d.Hits != 2 || d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("unexpected rejection %+v", d)
	}

	// the first hit leaves the window
	now = now.Add(d.RetryAfter)
	if d, err := l.Allow(ctx, "ip:10.0.0.1"); err != nil || !d.Allowed {
		t.Fatalf("after window = %+v, %v", d, err)
	}
}
