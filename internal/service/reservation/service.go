package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/busline/internal/catalog"
	"github.com/kirinyoku/busline/internal/domain"
	"github.com/kirinyoku/busline/internal/ledger"
	redisrepo "github.com/kirinyoku/busline/internal/repository/redis"
	"github.com/kirinyoku/busline/internal/uow"
)

const (
	msgBookingNotFound = "Booking not found."
	msgBusNotFound     = "Associated bus not found."
)

type Config struct {
	// Location the HH:MM departure times are interpreted in.
	Location *time.Location
	Now      func() time.Time
}

type Service struct {
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
	uow     *uow.UoW
	cache   *redisrepo.Cache
	limiter *redisrepo.SlidingWindowLimiter
	logger  *slog.Logger
	cfg     Config
}

// BookingRequest describes the seats a user wants on one sub-journey.
type BookingRequest struct {
	UserID      string
	BusID       string
	Date        string
	Source      domain.City
	Destination domain.City
	Seats       []int
}

func New(
	cat *catalog.Catalog,
	led *ledger.Ledger,
	cache *redisrepo.Cache,
	limiter *redisrepo.SlidingWindowLimiter,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		catalog: cat,
		ledger:  led,
		uow:     uow.NewUoW(led),
		cache:   cache,
		limiter: limiter,
		logger:  logger,
		cfg:     cfg,
	}
}

// FindBuses returns the buses whose route visits source before destination,
// in catalog order. An empty result is not an error.
func (s *Service) FindBuses(source, destination domain.City) []domain.Bus {
	out := make([]domain.Bus, 0)

	for _, b := range s.catalog.Buses() {
		route, ok := s.catalog.Route(b.RouteID)
		if !ok {
			continue
		}

		if _, ok := route.Journey(source, destination); ok {
			out = append(out, b)
		}
	}

	return out
}

// OccupiedSeats returns the seats taken on busID on date by any booking
// whose sub-journey overlaps source→destination, sorted ascending.
//
// Parameters:
//   - ctx: request-scoped context.
//   - busID: bus to inspect.
//   - date: travel date, matched exactly.
//   - source, destination: the candidate journey.
//
// Returns:
//   - []int: occupied seat numbers, empty when nothing overlaps.
//   - error: reservation.ErrBusNotFound if the bus is unknown.
//   - error: reservation.ErrInvalidJourney if the journey is not on the route.
func (s *Service) OccupiedSeats(
	ctx context.Context,
	busID, date string,
	source, destination domain.City,
) ([]int, error) {
	const op = "service.reservation.OccupiedSeats"

	if _, ok := s.catalog.Bus(busID); !ok {
		return nil, fmt.Errorf("%s:%w", op, ErrBusNotFound)
	}

	// a bus whose route is gone has no comparable bookings
	route, ok := s.catalog.RouteForBus(busID)
	if !ok {
		return []int{}, nil
	}

	journey, ok := route.Journey(source, destination)
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidJourney)
	}

	bookings, err := s.ledger.ForBusDate(ctx, busID, date)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if len(bookings) == 0 {
		return []int{}, nil
	}

	return occupied(route, journey, bookings), nil
}

// SeatMap splits the seats of a bus into occupied and available for one
// sub-journey.
func (s *Service) SeatMap(
	ctx context.Context,
	busID, date string,
	source, destination domain.City,
) (domain.SeatMap, error) {
	const op = "service.reservation.SeatMap"

	bus, ok := s.catalog.Bus(busID)
	if !ok {
		return domain.SeatMap{}, fmt.Errorf("%s:%w", op, ErrBusNotFound)
	}

	route, ok := s.catalog.Route(bus.RouteID)
	if !ok {
		return domain.SeatMap{}, fmt.Errorf("%s:%w", op, ErrRouteNotFound)
	}

	if _, ok := route.Journey(source, destination); !ok {
		return domain.SeatMap{}, fmt.Errorf("%s:%w", op, ErrInvalidJourney)
	}

	taken, err := s.OccupiedSeats(ctx, busID, date, source, destination)
	if err != nil {
		return domain.SeatMap{}, fmt.Errorf("%s:%w", op, err)
	}

	available := make([]int, 0, bus.TotalSeats-len(taken))
	for n := 1; n <= bus.TotalSeats; n++ {
		if _, found := slices.BinarySearch(taken, n); !found {
			available = append(available, n)
		}
	}

	return domain.SeatMap{
		BusID:       busID,
		Date:        date,
		Source:      source,
		Destination: destination,
		TotalSeats:  bus.TotalSeats,
		Occupied:    taken,
		Available:   available,
	}, nil
}

// BookTicket reserves seats for a user and appends the booking to the ledger.
// Occupancy is recomputed against the snapshot being written, so two
// concurrent requests for the same seat cannot both succeed.
//
// Parameters:
//   - ctx: request-scoped context.
//   - req: who books which seats on which journey.
//   - rlKey: rate-limit bucket, empty to skip limiting.
//
// Returns:
//   - domain.Booking: the stored booking.
//   - error: reservation.ErrBusNotFound if the bus is unknown.
//   - error: reservation.ErrInvalidSeats / ErrNoSeats for bad seat numbers.
//   - error: reservation.ErrSeatsUnavailable if a seat is taken on an overlapping journey.
//   - error: reservation.ErrRateLimited if rlKey exceeded its budget.
func (s *Service) BookTicket(ctx context.Context, req BookingRequest, rlKey string) (domain.Booking, error) {
	const op = "service.reservation.BookTicket"

	bus, ok := s.catalog.Bus(req.BusID)
	if !ok {
		return domain.Booking{}, fmt.Errorf("%s:%w", op, ErrBusNotFound)
	}

	route, ok := s.catalog.Route(bus.RouteID)
	if !ok {
		return domain.Booking{}, fmt.Errorf("%s:%w", op, ErrRouteNotFound)
	}

	if _, err := time.Parse(domain.DateLayout, req.Date); err != nil {
		return domain.Booking{}, fmt.Errorf("%s:%w", op, ErrInvalidDate)
	}

	journey, ok := route.Journey(req.Source, req.Destination)
	if !ok {
		return domain.Booking{}, fmt.Errorf("%s:%w", op, ErrInvalidJourney)
	}

	seats, err := normalizeSeats(bus, req.Seats)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("%s:%w", op, err)
	}

	if s.limiter != nil && rlKey != "" {
		d, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return domain.Booking{}, fmt.Errorf("%s:%w", op, err)
		}
		if !d.Allowed {
			return domain.Booking{}, fmt.Errorf("%s:%w", op, RateLimitedError{RetryAfter: d.RetryAfter})
		}
	}

	now := s.cfg.Now()
	booking := domain.Booking{
		ID:          newBookingID(now),
		UserID:      req.UserID,
		BusID:       bus.ID,
		Date:        req.Date,
		Source:      req.Source,
		Destination: req.Destination,
		Seats:       seats,
		TotalFare:   float64(len(seats)) * bus.FarePerSeat,
		BookingTime: now,
	}

	err = s.uow.Do(ctx, func(ctx context.Context, all []domain.Booking, after func(uow.AfterCommit)) ([]domain.Booking, error) {
		existing := ledger.FilterBusDate(all, bus.ID, req.Date)
		taken := occupied(route, journey, existing)

		var clash []int
		for _, n := range seats {
			if _, found := slices.BinarySearch(taken, n); found {
				clash = append(clash, n)
			}
		}
		if len(clash) > 0 {
			return nil, SeatsUnavailableError{Seats: clash}
		}

		after(func(ctx context.Context) {
			s.afterBookingChange(ctx, booking.UserID)
		})

		return append(all, booking), nil
	})
	if err != nil {
		return domain.Booking{}, fmt.Errorf("%s:%w", op, err)
	}

	s.logger.Info("booking created",
		"booking_id", booking.ID,
		"user_id", booking.UserID,
		"bus_id", booking.BusID,
		"date", booking.Date,
		"seats", booking.Seats,
	)

	return booking, nil
}

// CancelBooking removes a booking and computes its refund from the time left
// until departure. Missing bookings or buses are reported in the result, not
// as errors; error is only set when the ledger cannot be read or written.
// Bookings whose departure has passed can still be cancelled, for 0%.
func (s *Service) CancelBooking(ctx context.Context, bookingID string) (domain.CancellationResult, error) {
	const op = "service.reservation.CancelBooking"

	booking, ok, err := s.ledger.Get(ctx, bookingID)
	if err != nil {
		return domain.CancellationResult{}, fmt.Errorf("%s:%w", op, err)
	}
	if !ok {
		return domain.CancellationResult{Message: msgBookingNotFound}, nil
	}

	bus, ok := s.catalog.Bus(booking.BusID)
	if !ok {
		return domain.CancellationResult{Message: msgBusNotFound}, nil
	}

	departure, err := bus.Departure(booking.Date, s.cfg.Location)
	if err != nil {
		return domain.CancellationResult{}, fmt.Errorf("%s:%w", op, err)
	}

	hours := departure.Sub(s.cfg.Now()).Hours()
	pct := domain.RefundPercent(hours)
	refund := domain.Refund(booking.TotalFare, pct)

	removed, err := s.ledger.Remove(ctx, bookingID)
	if err != nil {
		return domain.CancellationResult{}, fmt.Errorf("%s:%w", op, err)
	}
	if !removed {
		// cancelled by someone else between Get and Remove
		return domain.CancellationResult{Message: msgBookingNotFound}, nil
	}

	s.afterBookingChange(ctx, booking.UserID)

	s.logger.Info("booking cancelled",
		"booking_id", bookingID,
		"hours_before_departure", hours,
		"refund_percent", pct,
		"refund_amount", refund,
	)

	return domain.CancellationResult{
		Success:      true,
		RefundAmount: refund,
		Message:      fmt.Sprintf("Cancellation successful. %d%% refund issued.", pct),
	}, nil
}

func (s *Service) afterBookingChange(ctx context.Context, userID string) {
	if err := s.cache.InvalidateBookings(ctx, userID); err != nil {
		s.logger.Warn("failed to invalidate bookings cache", "user_id", userID, "error", err)
	}
}

// occupied unions the seats of every booking overlapping journey.
func occupied(route domain.Route, journey domain.Journey, bookings []domain.Booking) []int {
	set := make(map[int]struct{})

	for _, b := range bookings {
		other, ok := route.Journey(b.Source, b.Destination)
		if !ok {
			continue
		}
		if journey.Overlaps(other) {
			for _, n := range b.Seats {
				set[n] = struct{}{}
			}
		}
	}

	out := make([]int, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	slices.Sort(out)

	return out
}

func normalizeSeats(bus domain.Bus, seats []int) ([]int, error) {
	if len(seats) == 0 {
		return nil, ErrNoSeats
	}

	out := slices.Clone(seats)
	slices.Sort(out)

	var bad []int
	for i, n := range out {
		if !bus.ValidSeat(n) || (i > 0 && out[i-1] == n) {
			bad = append(bad, n)
		}
	}
	if len(bad) > 0 {
		return nil, InvalidSeatsError{Seats: bad, TotalSeats: bus.TotalSeats}
	}

	return out, nil
}

func newBookingID(now time.Time) string {
	u := uuid.New()
	return fmt.Sprintf("TKT-%d-%x", now.UnixMilli(), u[:6])
}
