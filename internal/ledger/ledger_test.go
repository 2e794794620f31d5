package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kirinyoku/busline/internal/domain"
	"github.com/kirinyoku/busline/internal/gateway"
	"github.com/kirinyoku/busline/internal/repository"
	"github.com/kirinyoku/busline/internal/repository/memory"
)

func newTestLedger(t *testing.T) (*Ledger, *gateway.Gateway) {
	t.Helper()

	gw := gateway.New(memory.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return New(gw, 0), gw
}

func booking(id, user string, at time.Time) domain.Booking {
	return domain.Booking{
		ID:          id,
		UserID:      user,
		BusID:       "B1",
		Date:        "2025-01-10",
		Source:      domain.Mumbai,
		Destination: domain.Pune,
		Seats:       []int{1},
		TotalFare:   1500,
		BookingTime: at,
	}
}

func TestForUserMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, b := range []domain.Booking{
		booking("t1", "u1", base),
		booking("t2", "u2", base.Add(time.Hour)),
		booking("t3", "u1", base.Add(2*time.Hour)),
		booking("t4", "u1", base.Add(30*time.Minute)),
	} {
		if err := l.Append(ctx, b); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	got, err := l.ForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ForUser error: %v", err)
	}

	want := []string{"t3", "t4", "t1"}
	if len(got) != len(want) {
		t.Fatalf("expected %d bookings, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got %s want %s", i, got[i].ID, id)
		}
	}

	all, err := l.All(ctx)
	if err != nil {
		t.Fatalf("All error: %v", err)
	}
	if len(all) != 4 || all[0].ID != "t3" || all[3].ID != "t1" {
		t.Fatalf("All not sorted most recent first: %v", ids(all))
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	now := time.Now()
	_ = l.Append(ctx, booking("t1", "u1", now))
	_ = l.Append(ctx, booking("t2", "u1", now))

	removed, err := l.Remove(ctx, "t1")
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}

	if _, ok, _ := l.Get(ctx, "t1"); ok {
		t.Fatalf("t1 still present after removal")
	}

	removed, err = l.Remove(ctx, "t1")
	if err != nil || removed {
		t.Fatalf("second Remove = %v, %v", removed, err)
	}

	left, _ := l.ForUser(ctx, "u1")
	if len(left) != 1 || left[0].ID != "t2" {
		t.Fatalf("unexpected remaining bookings %v", ids(left))
	}
}

func TestForBusDateExactMatch(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	now := time.Now()
	b1 := booking("t1", "u1", now)
	b2 := booking("t2", "u1", now)
	b2.Date = "2025-01-11"
	b3 := booking("t3", "u1", now)
	b3.BusID = "B2"

	for _, b := range []domain.Booking{b1, b2, b3} {
		_ = l.Append(ctx, b)
	}

	got, err := l.ForBusDate(ctx, "B1", "2025-01-10")
	if err != nil {
		t.Fatalf("ForBusDate error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "t1" {
		t.Fatalf("unexpected bookings %v", ids(got))
	}
}

// racingStore lets a competing writer bump the version between the
// ledger's read and write, a fixed number of times.
type racingStore struct {
	*gateway.Gateway
	races int
}

func (s *racingStore) WriteBookings(ctx context.Context, bookings []domain.Booking, version int64) error {
	if s.races > 0 {
		s.races--
		current, v, err := s.Gateway.ReadBookings(ctx)
		if err != nil {
			return err
		}
		if err := s.Gateway.WriteBookings(ctx, current, v); err != nil {
			return err
		}
	}
	return s.Gateway.WriteBookings(ctx, bookings, version)
}

func TestUpdateRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	_, gw := newTestLedger(t)

	store := &racingStore{Gateway: gw, races: 2}
	l := New(store, 5)

	calls := 0
	err := l.Update(ctx, func(bookings []domain.Booking) ([]domain.Booking, error) {
		calls++
		return append(bookings, booking("t1", "u1", time.Now())), nil
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}

	all, _ := l.All(ctx)
	if len(all) != 1 {
		t.Fatalf("expected exactly one booking, got %d", len(all))
	}
}

func TestUpdateGivesUp(t *testing.T) {
	ctx := context.Background()
	_, gw := newTestLedger(t)

	l := New(&racingStore{Gateway: gw, races: 10}, 3)

	err := l.Update(ctx, func(bookings []domain.Booking) ([]domain.Booking, error) {
		return bookings, nil
	})
	if !errors.Is(err, ErrTooManyConflicts) {
		t.Fatalf("expected ErrTooManyConflicts, got %v", err)
	}
}

func TestUpdateAbortsOnFnError(t *testing.T) {
	ctx := context.Background()
	l, gw := newTestLedger(t)

	boom := errors.New("rejected")
	if err := l.Update(ctx, func([]domain.Booking) ([]domain.Booking, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	if _, version, _ := gw.ReadBookings(ctx); version != 0 {
		t.Fatalf("ledger wrote despite fn error (version %d)", version)
	}
}

type brokenStore struct{}

func (brokenStore) ReadBookings(context.Context) ([]domain.Booking, int64, error) {
	return nil, 0, &gateway.PersistenceError{Collection: gateway.CollectionBookings, Err: repository.ErrCorrupt}
}

func (brokenStore) WriteBookings(context.Context, []domain.Booking, int64) error {
	return nil
}

func TestReadErrorsPropagate(t *testing.T) {
	l := New(brokenStore{}, 0)

	var perr *gateway.PersistenceError
	if _, err := l.All(context.Background()); !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
}

func ids(bs []domain.Booking) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.ID
	}
	return out
}
