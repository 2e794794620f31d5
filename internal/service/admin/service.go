package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirinyoku/busline/internal/catalog"
	"github.com/kirinyoku/busline/internal/domain"
	redisrepo "github.com/kirinyoku/busline/internal/repository/redis"
)

type Service struct {
	catalog *catalog.Catalog
	pubsub  *redisrepo.CatalogPubSub
	logger  *slog.Logger
}

func New(cat *catalog.Catalog, pubsub *redisrepo.CatalogPubSub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		catalog: cat,
		pubsub:  pubsub,
		logger:  logger,
	}
}

// AddRoute creates a route through the given stops.
//
// Parameters:
//   - ctx: request-scoped context.
//   - stops: ordered cities the route visits.
//
// Returns:
//   - domain.Route: the created route with its generated ID.
//   - error: admin.ErrInvalidRoute if there are fewer than two stops, an
//     unknown city or a repeated city.
func (s *Service) AddRoute(ctx context.Context, stops []domain.City) (domain.Route, error) {
	const op = "service.admin.AddRoute"

	if err := domain.ValidateStops(stops); err != nil {
		return domain.Route{}, fmt.Errorf("%s:%w: %v", op, ErrInvalidRoute, err)
	}

	route, err := s.catalog.AddRoute(ctx, stops)
	if err != nil {
		return domain.Route{}, fmt.Errorf("%s:%w", op, err)
	}

	s.announce(ctx, "route", route.ID)

	return route, nil
}

// AddBus creates a bus on an existing route.
//
// Parameters:
//   - ctx: request-scoped context.
//   - in: bus attributes without an ID.
//
// Returns:
//   - domain.Bus: the created bus with its generated ID.
//   - error: admin.ErrInvalidBus if a field is missing or malformed.
//   - error: admin.ErrRouteNotFound if in.RouteID is not in the catalog.
func (s *Service) AddBus(ctx context.Context, in domain.BusInput) (domain.Bus, error) {
	const op = "service.admin.AddBus"

	if err := in.Validate(); err != nil {
		return domain.Bus{}, fmt.Errorf("%s:%w: %v", op, ErrInvalidBus, err)
	}

	if _, ok := s.catalog.Route(in.RouteID); !ok {
		return domain.Bus{}, fmt.Errorf("%s:%w", op, ErrRouteNotFound)
	}

	bus, err := s.catalog.AddBus(ctx, in)
	if err != nil {
		return domain.Bus{}, fmt.Errorf("%s:%w", op, err)
	}

	s.announce(ctx, "bus", bus.ID)

	return bus, nil
}

func (s *Service) announce(ctx context.Context, kind, id string) {
	s.logger.Info("catalog entry added", "kind", kind, "id", id)

	if err := s.pubsub.PublishCatalogChanged(ctx, kind, id); err != nil {
		s.logger.Warn("failed to publish catalog change", "kind", kind, "id", id, "error", err)
	}
}
