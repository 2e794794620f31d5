package reservation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirinyoku/busline/internal/catalog"
	"github.com/kirinyoku/busline/internal/domain"
	"github.com/kirinyoku/busline/internal/gateway"
	"github.com/kirinyoku/busline/internal/ledger"
	"github.com/kirinyoku/busline/internal/repository/memory"
)

const travelDate = "2025-01-10"

// b1Departure is when B1 (08:00) leaves on travelDate.
var b1Departure = time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *ledger.Ledger) {
	t.Helper()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gw := gateway.New(memory.New(), logger)
	if err := gw.Seed(ctx); err != nil {
		t.Fatalf("Seed error: %v", err)
	}

	cat, err := catalog.Load(ctx, gw, nil)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	led := ledger.New(gw, 0)

	svc := New(cat, led, nil, nil, logger, Config{
		Location: time.UTC,
		Now:      func() time.Time { return b1Departure.Add(-72 * time.Hour) },
	})

	return svc, led
}

func book(t *testing.T, s *Service, busID string, src, dst domain.City, seats ...int) domain.Booking {
	t.Helper()

	b, err := s.BookTicket(context.Background(), BookingRequest{
		UserID:      "u1",
		BusID:       busID,
		Date:        travelDate,
		Source:      src,
		Destination: dst,
		Seats:       seats,
	}, "")
	if err != nil {
		t.Fatalf("BookTicket(%s %s→%s %v) error: %v", busID, src, dst, seats, err)
	}

	return b
}

func TestFindBuses(t *testing.T) {
	s, _ := newTestService(t)

	ids := func(bs []domain.Bus) []string {
		out := make([]string, len(bs))
		for i, b := range bs {
			out[i] = b.ID
		}
		return out
	}

	if got := ids(s.FindBuses(domain.Mumbai, domain.Bangalore)); !reflect.DeepEqual(got, []string{"B1", "B2"}) {
		t.Fatalf("Mumbai→Bangalore = %v", got)
	}

	if got := s.FindBuses(domain.Bangalore, domain.Mumbai); len(got) != 0 {
		t.Fatalf("reverse direction must not match, got %v", ids(got))
	}

	if got := ids(s.FindBuses(domain.Mumbai, domain.Goa)); !reflect.DeepEqual(got, []string{"B8", "B11"}) {
		t.Fatalf("Mumbai→Goa = %v", got)
	}

	if got := s.FindBuses(domain.Goa, domain.Goa); len(got) != 0 {
		t.Fatalf("same city must not match, got %v", ids(got))
	}
}

func TestOverlappingJourneysBlockSeats(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	// R1: Mumbai, Pune, Bangalore, Chennai
	book(t, s, "B1", domain.Mumbai, domain.Bangalore, 5)

	got, err := s.OccupiedSeats(ctx, "B1", travelDate, domain.Pune, domain.Chennai)
	if err != nil {
		t.Fatalf("OccupiedSeats error: %v", err)
	}
	if !reflect.DeepEqual(got, []int{5}) {
		t.Fatalf("overlapping journey: got %v want [5]", got)
	}

	got, err = s.OccupiedSeats(ctx, "B1", travelDate, domain.Bangalore, domain.Chennai)
	if err != nil {
		t.Fatalf("OccupiedSeats error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("adjacent journey must be free, got %v", got)
	}

	got, err = s.OccupiedSeats(ctx, "B1", "2025-01-11", domain.Mumbai, domain.Bangalore)
	if err != nil {
		t.Fatalf("OccupiedSeats error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("other date must be free, got %v", got)
	}

	// the same seat can be sold again for the non-overlapping leg
	book(t, s, "B1", domain.Bangalore, domain.Chennai, 5)

	_, err = s.BookTicket(ctx, BookingRequest{
		UserID: "u1", BusID: "B1", Date: travelDate,
		Source: domain.Pune, Destination: domain.Chennai, Seats: []int{6, 5},
	}, "")

	var unavailable SeatsUnavailableError
	if !errors.As(err, &unavailable) || !reflect.DeepEqual(unavailable.Seats, []int{5}) {
		t.Fatalf("expected SeatsUnavailableError{[5]}, got %v", err)
	}
}

func TestOccupiedSeatsSortedUnion(t *testing.T) {
	s, _ := newTestService(t)

	book(t, s, "B1", domain.Mumbai, domain.Chennai, 9, 3)
	book(t, s, "B1", domain.Pune, domain.Bangalore, 1, 7)

	got, err := s.OccupiedSeats(context.Background(), "B1", travelDate, domain.Mumbai, domain.Pune)
	if err != nil {
		t.Fatalf("OccupiedSeats error: %v", err)
	}
	if !reflect.DeepEqual(got, []int{3, 9}) {
		t.Fatalf("got %v want [3 9]", got)
	}

	got, _ = s.OccupiedSeats(context.Background(), "B1", travelDate, domain.Mumbai, domain.Chennai)
	if !reflect.DeepEqual(got, []int{1, 3, 7, 9}) {
		t.Fatalf("got %v want [1 3 7 9]", got)
	}
}

func TestOccupiedSeatsErrors(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	if _, err := s.OccupiedSeats(ctx, "B404", travelDate, domain.Mumbai, domain.Pune); !errors.Is(err, ErrBusNotFound) {
		t.Fatalf("expected ErrBusNotFound, got %v", err)
	}

	// a reversed journey is rejected whether or not the date has bookings
	if _, err := s.OccupiedSeats(ctx, "B1", travelDate, domain.Chennai, domain.Mumbai); !errors.Is(err, ErrInvalidJourney) {
		t.Fatalf("empty ledger: expected ErrInvalidJourney, got %v", err)
	}

	got, err := s.OccupiedSeats(ctx, "B1", travelDate, domain.Mumbai, domain.Pune)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty ledger: got %v, %v", got, err)
	}

	book(t, s, "B1", domain.Mumbai, domain.Pune, 1)

	if _, err := s.OccupiedSeats(ctx, "B1", travelDate, domain.Chennai, domain.Mumbai); !errors.Is(err, ErrInvalidJourney) {
		t.Fatalf("expected ErrInvalidJourney, got %v", err)
	}
}

func TestBookTicket(t *testing.T) {
	s, led := newTestService(t)

	b := book(t, s, "B8", domain.Mumbai, domain.Goa, 3, 1, 2)

	if b.TotalFare != 3000 {
		t.Fatalf("TotalFare = %v, want 3000", b.TotalFare)
	}
	if !reflect.DeepEqual(b.Seats, []int{1, 2, 3}) {
		t.Fatalf("seats not normalized: %v", b.Seats)
	}
	if !strings.HasPrefix(b.ID, "TKT-") {
		t.Fatalf("unexpected id %q", b.ID)
	}
	if !b.BookingTime.Equal(b1Departure.Add(-72 * time.Hour)) {
		t.Fatalf("BookingTime = %v", b.BookingTime)
	}

	stored, ok, err := led.Get(context.Background(), b.ID)
	if err != nil || !ok {
		t.Fatalf("booking not stored: %v, %v", ok, err)
	}
	if !stored.BookingTime.Equal(b.BookingTime) || stored.TotalFare != b.TotalFare {
		t.Fatalf("stored booking differs: %+v", stored)
	}
}

func TestBookTicketValidation(t *testing.T) {
	s, led := newTestService(t)

	base := BookingRequest{
		UserID: "u1", BusID: "B8", Date: travelDate,
		Source: domain.Mumbai, Destination: domain.Goa, Seats: []int{1},
	}

	tests := []struct {
		name   string
		mutate func(r *BookingRequest)
		want   error
	}{
		{"unknown bus", func(r *BookingRequest) { r.BusID = "B404" }, ErrBusNotFound},
		{"bad date", func(r *BookingRequest) { r.Date = "10/01/2025" }, ErrInvalidDate},
		{"reverse journey", func(r *BookingRequest) { r.Source, r.Destination = domain.Goa, domain.Mumbai }, ErrInvalidJourney},
		{"city off route", func(r *BookingRequest) { r.Destination = domain.Delhi }, ErrInvalidJourney},
		{"no seats", func(r *BookingRequest) { r.Seats = nil }, ErrNoSeats},
		{"seat zero", func(r *BookingRequest) { r.Seats = []int{0} }, ErrInvalidSeats},
		{"seat past capacity", func(r *BookingRequest) { r.Seats = []int{41} }, ErrInvalidSeats},
		{"duplicate seat", func(r *BookingRequest) { r.Seats = []int{2, 2} }, ErrInvalidSeats},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)

			if _, err := s.BookTicket(context.Background(), req, ""); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	all, _ := led.All(context.Background())
	if len(all) != 0 {
		t.Fatalf("rejected requests left %d bookings behind", len(all))
	}
}

func TestSeatMap(t *testing.T) {
	s, _ := newTestService(t)

	book(t, s, "B8", domain.Mumbai, domain.Goa, 2, 40)

	m, err := s.SeatMap(context.Background(), "B8", travelDate, domain.Mumbai, domain.Goa)
	if err != nil {
		t.Fatalf("SeatMap error: %v", err)
	}

	if m.TotalSeats != 40 || len(m.Available) != 38 {
		t.Fatalf("unexpected seat map: total=%d available=%d", m.TotalSeats, len(m.Available))
	}
	if !reflect.DeepEqual(m.Occupied, []int{2, 40}) {
		t.Fatalf("Occupied = %v", m.Occupied)
	}
	if m.Available[0] != 1 || m.Available[1] != 3 {
		t.Fatalf("Available starts %v", m.Available[:2])
	}

	if _, err := s.SeatMap(context.Background(), "B8", travelDate, domain.Goa, domain.Mumbai); !errors.Is(err, ErrInvalidJourney) {
		t.Fatalf("expected ErrInvalidJourney, got %v", err)
	}
}

func TestConcurrentBookingsSameSeat(t *testing.T) {
	s, led := newTestService(t)

	const workers = 10

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := s.BookTicket(context.Background(), BookingRequest{
				UserID: "u1", BusID: "B1", Date: travelDate,
				Source: domain.Mumbai, Destination: domain.Pune, Seats: []int{12},
			}, "")

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful booking, got %d", successes)
	}
	for _, err := range failures {
		if !errors.Is(err, ErrSeatsUnavailable) {
			t.Fatalf("unexpected failure: %v", err)
		}
	}

	all, _ := led.All(context.Background())
	if len(all) != 1 {
		t.Fatalf("expected one stored booking, got %d", len(all))
	}
}

func TestCancelBookingRefundTiers(t *testing.T) {
	tests := []struct {
		before  time.Duration
		percent int
		refund  float64
	}{
		{25 * time.Hour, 90, 2700},
		{24 * time.Hour, 50, 1500},
		{6 * time.Hour, 50, 1500},
		{5*time.Hour + 54*time.Minute, 0, 0},
		{-10 * time.Hour, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.before.String(), func(t *testing.T) {
			s, led := newTestService(t)

			b := book(t, s, "B1", domain.Mumbai, domain.Pune, 1, 2)
			if b.TotalFare != 3000 {
				t.Fatalf("TotalFare = %v", b.TotalFare)
			}

			s.cfg.Now = func() time.Time { return b1Departure.Add(-tt.before) }

			res, err := s.CancelBooking(context.Background(), b.ID)
			if err != nil {
				t.Fatalf("CancelBooking error: %v", err)
			}
			if !res.Success || res.RefundAmount != tt.refund {
				t.Fatalf("got %+v, want refund %v", res, tt.refund)
			}

			wantMsg := "Cancellation successful. " + strconv.Itoa(tt.percent) + "% refund issued."
			if res.Message != wantMsg {
				t.Fatalf("Message = %q, want %q", res.Message, wantMsg)
			}

			if _, ok, _ := led.Get(context.Background(), b.ID); ok {
				t.Fatalf("booking still present after cancel")
			}
		})
	}
}

func TestCancelBookingMissing(t *testing.T) {
	ctx := context.Background()
	s, led := newTestService(t)

	res, err := s.CancelBooking(ctx, "TKT-nope")
	if err != nil {
		t.Fatalf("CancelBooking error: %v", err)
	}
	if res.Success || res.RefundAmount != 0 || res.Message != "Booking not found." {
		t.Fatalf("unexpected result %+v", res)
	}

	orphan := domain.Booking{
		ID: "TKT-orphan", UserID: "u1", BusID: "B404", Date: travelDate,
		Source: domain.Mumbai, Destination: domain.Pune, Seats: []int{1},
		TotalFare: 100, BookingTime: time.Now(),
	}
	if err := led.Append(ctx, orphan); err != nil {
		t.Fatalf("Append error: %v", err)
	}

	res, err = s.CancelBooking(ctx, orphan.ID)
	if err != nil {
		t.Fatalf("CancelBooking error: %v", err)
	}
	if res.Success || res.Message != "Associated bus not found." {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, ok, _ := led.Get(ctx, orphan.ID); !ok {
		t.Fatalf("orphan booking must be kept")
	}
}

func TestCancelFreesSeat(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	b := book(t, s, "B1", domain.Mumbai, domain.Chennai, 4)

	if _, err := s.CancelBooking(ctx, b.ID); err != nil {
		t.Fatalf("CancelBooking error: %v", err)
	}

	got, err := s.OccupiedSeats(ctx, "B1", travelDate, domain.Mumbai, domain.Chennai)
	if err != nil || len(got) != 0 {
		t.Fatalf("seat not released: %v, %v", got, err)
	}

	book(t, s, "B1", domain.Mumbai, domain.Chennai, 4)
}
