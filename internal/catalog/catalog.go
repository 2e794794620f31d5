package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/kirinyoku/busline/internal/domain"
	"github.com/kirinyoku/busline/internal/repository"
)

const maxWriteRetries = 5

// Store is the part of the persistence gateway the catalog needs.
type Store interface {
	ReadRoutes(ctx context.Context) ([]domain.Route, int64, error)
	WriteRoutes(ctx context.Context, routes []domain.Route, version int64) error
	ReadBuses(ctx context.Context) ([]domain.Bus, int64, error)
	WriteBuses(ctx context.Context, buses []domain.Bus, version int64) error
}

// Catalog is the in-memory mirror of routes and buses. Entries are only ever
// appended and keep their insertion order.
type Catalog struct {
	store Store
	now   func() time.Time

	mu     sync.RWMutex
	routes []domain.Route
	buses  []domain.Bus
}

// Load builds a catalog from the routes and buses currently in store.
func Load(ctx context.Context, store Store, now func() time.Time) (*Catalog, error) {
	const op = "catalog.Load"

	if now == nil {
		now = time.Now
	}

	c := &Catalog{store: store, now: now}
	if err := c.Reload(ctx); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return c, nil
}

// Reload replaces the mirror with what is currently persisted.
func (c *Catalog) Reload(ctx context.Context) error {
	const op = "catalog.Reload"

	routes, _, err := c.store.ReadRoutes(ctx)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	buses, _, err := c.store.ReadBuses(ctx)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	c.mu.Lock()
	c.routes = routes
	c.buses = buses
	c.mu.Unlock()

	return nil
}

// Routes returns all routes in insertion order.
func (c *Catalog) Routes() []domain.Route {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Route, len(c.routes))
	copy(out, c.routes)
	return out
}

// Buses returns all buses in insertion order.
func (c *Catalog) Buses() []domain.Bus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Bus, len(c.buses))
	copy(out, c.buses)
	return out
}

func (c *Catalog) Route(id string) (domain.Route, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, r := range c.routes {
		if r.ID == id {
			return r, true
		}
	}
	return domain.Route{}, false
}

func (c *Catalog) Bus(id string) (domain.Bus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, b := range c.buses {
		if b.ID == id {
			return b, true
		}
	}
	return domain.Bus{}, false
}

// RouteForBus resolves the route a bus runs on.
func (c *Catalog) RouteForBus(busID string) (domain.Route, bool) {
	b, ok := c.Bus(busID)
	if !ok {
		return domain.Route{}, false
	}
	return c.Route(b.RouteID)
}

// AddRoute persists a new route with a generated id and then mirrors it.
// Stops are stored as given.
func (c *Catalog) AddRoute(ctx context.Context, stops []domain.City) (domain.Route, error) {
	const op = "catalog.AddRoute"

	var created domain.Route

	for attempt := 0; ; attempt++ {
		routes, version, err := c.store.ReadRoutes(ctx)
		if err != nil {
			return domain.Route{}, fmt.Errorf("%s:%w", op, err)
		}

		created = domain.Route{
			ID:    uniqueID("R", c.now(), func(id string) bool { return hasRoute(routes, id) }),
			Stops: append([]domain.City(nil), stops...),
		}

		err = c.store.WriteRoutes(ctx, append(routes, created), version)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrConflict) || attempt+1 >= maxWriteRetries {
			return domain.Route{}, fmt.Errorf("%s:%w", op, err)
		}
	}

	c.mu.Lock()
	c.routes = append(c.routes, created)
	c.mu.Unlock()

	return created, nil
}

// AddBus persists a new bus with a generated id and then mirrors it. The
// route reference is not checked here.
func (c *Catalog) AddBus(ctx context.Context, in domain.BusInput) (domain.Bus, error) {
	const op = "catalog.AddBus"

	var created domain.Bus

	for attempt := 0; ; attempt++ {
		buses, version, err := c.store.ReadBuses(ctx)
		if err != nil {
			return domain.Bus{}, fmt.Errorf("%s:%w", op, err)
		}

		created = domain.Bus{
			ID:            uniqueID("B", c.now(), func(id string) bool { return hasBus(buses, id) }),
			Name:          in.Name,
			RouteID:       in.RouteID,
			TotalSeats:    in.TotalSeats,
			DepartureTime: in.DepartureTime,
			ArrivalTime:   in.ArrivalTime,
			FarePerSeat:   in.FarePerSeat,
		}

		err = c.store.WriteBuses(ctx, append(buses, created), version)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrConflict) || attempt+1 >= maxWriteRetries {
			return domain.Bus{}, fmt.Errorf("%s:%w", op, err)
		}
	}

	c.mu.Lock()
	c.buses = append(c.buses, created)
	c.mu.Unlock()

	return created, nil
}

// uniqueID returns prefix+<unix ms>, suffixed with a counter when taken.
func uniqueID(prefix string, now time.Time, taken func(string) bool) string {
	base := prefix + strconv.FormatInt(now.UnixMilli(), 10)

	id := base
	for n := 2; taken(id); n++ {
		id = base + "-" + strconv.Itoa(n)
	}

	return id
}

func hasRoute(routes []domain.Route, id string) bool {
	for _, r := range routes {
		if r.ID == id {
			return true
		}
	}
	return false
}

func hasBus(buses []domain.Bus, id string) bool {
	for _, b := range buses {
		if b.ID == id {
			return true
		}
	}
	return false
}
