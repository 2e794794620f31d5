package query

import (
	"context"
	"fmt"
	"time"

	"github.com/kirinyoku/busline/internal/catalog"
	"github.com/kirinyoku/busline/internal/domain"
	"github.com/kirinyoku/busline/internal/ledger"
	redisrepo "github.com/kirinyoku/busline/internal/repository/redis"
)

type Config struct {
	UserBookingsTTL time.Duration
	AllBookingsTTL  time.Duration
}

type Service struct {
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
	cache   *redisrepo.Cache
	cfg     Config
}

func New(cat *catalog.Catalog, led *ledger.Ledger, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.UserBookingsTTL <= 0 {
		cfg.UserBookingsTTL = 60 * time.Second
	}

	if cfg.AllBookingsTTL <= 0 {
		cfg.AllBookingsTTL = 15 * time.Second
	}

	return &Service{
		catalog: cat,
		ledger:  led,
		cache:   cache,
		cfg:     cfg,
	}
}

func (s *Service) Cities() []domain.City {
	return domain.Cities()
}

func (s *Service) Routes() []domain.Route {
	return s.catalog.Routes()
}

func (s *Service) Buses() []domain.Bus {
	return s.catalog.Buses()
}

func (s *Service) Bus(id string) (domain.Bus, bool) {
	return s.catalog.Bus(id)
}

// RouteForBus resolves the route a bus runs on.
//
// Returns:
//   - error: query.ErrBusNotFound if the bus is unknown.
//   - error: query.ErrRouteNotFound if the bus points at a missing route.
func (s *Service) RouteForBus(busID string) (domain.Route, error) {
	const op = "service.query.RouteForBus"

	bus, ok := s.catalog.Bus(busID)
	if !ok {
		return domain.Route{}, fmt.Errorf("%s:%w", op, ErrBusNotFound)
	}

	route, ok := s.catalog.Route(bus.RouteID)
	if !ok {
		return domain.Route{}, fmt.Errorf("%s:%w", op, ErrRouteNotFound)
	}

	return route, nil
}

// BookingsForUser returns a user's bookings, most recent first. Results are
// cached until the user's bookings change.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: owner of the bookings.
//
// Returns:
//   - []domain.Booking: possibly empty list of bookings.
//   - error: non-nil if the ledger could not be read.
func (s *Service) BookingsForUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	const op = "service.query.BookingsForUser"

	bookings, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyUserBookings(userID),
		s.cfg.UserBookingsTTL,
		func(ctx context.Context) ([]domain.Booking, error) {
			return s.ledger.ForUser(ctx, userID)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return bookings, nil
}

// AllBookings returns every booking, most recent first.
func (s *Service) AllBookings(ctx context.Context) ([]domain.Booking, error) {
	const op = "service.query.AllBookings"

	bookings, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyAllBookings(),
		s.cfg.AllBookingsTTL,
		s.ledger.All,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return bookings, nil
}

// Booking looks up a single booking, bypassing the cache.
func (s *Service) Booking(ctx context.Context, id string) (domain.Booking, bool, error) {
	const op = "service.query.Booking"

	b, ok, err := s.ledger.Get(ctx, id)
	if err != nil {
		return domain.Booking{}, false, fmt.Errorf("%s:%w", op, err)
	}

	return b, ok, nil
}
