package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirinyoku/busline/internal/domain"
	"github.com/kirinyoku/busline/internal/repository"
)

func DefaultRoutes() []domain.Route {
	return []domain.Route{
		{ID: "R1", Stops: []domain.City{domain.Mumbai, domain.Pune, domain.Bangalore, domain.Chennai}},
		{ID: "R2", Stops: []domain.City{domain.Delhi, domain.Jaipur, domain.Ahmedabad, domain.Mumbai}},
		{ID: "R3", Stops: []domain.City{domain.Kolkata, domain.Hyderabad, domain.Bangalore}},
		{ID: "R4", Stops: []domain.City{domain.Hyderabad, domain.Pune, domain.Goa}},
		{ID: "R5", Stops: []domain.City{domain.Chennai, domain.Bangalore, domain.Hyderabad}},
		{ID: "R6", Stops: []domain.City{domain.Mumbai, domain.Goa}},
		{ID: "R7", Stops: []domain.City{domain.Delhi, domain.Kolkata}},
		{ID: "R8", Stops: []domain.City{domain.Jaipur, domain.Pune}},
	}
}

func DefaultBuses() []domain.Bus {
	return []domain.Bus{
		{ID: "B1", Name: "Galaxy Express", RouteID: "R1", TotalSeats: 40, DepartureTime: "08:00", ArrivalTime: "22:00", FarePerSeat: 1500},
		{ID: "B2", Name: "Star Cruiser", RouteID: "R1", TotalSeats: 30, DepartureTime: "10:00", ArrivalTime: "23:30", FarePerSeat: 1800},
		{ID: "B3", Name: "Desert Runner", RouteID: "R2", TotalSeats: 45, DepartureTime: "06:00", ArrivalTime: "20:00", FarePerSeat: 2000},
		{ID: "B4", Name: "Royal Rajasthan", RouteID: "R2", TotalSeats: 35, DepartureTime: "09:30", ArrivalTime: "23:00", FarePerSeat: 2200},
		{ID: "B5", Name: "Deccan Queen", RouteID: "R3", TotalSeats: 40, DepartureTime: "18:00", ArrivalTime: "09:00", FarePerSeat: 1700},
		{ID: "B6", Name: "Coastal Voyager", RouteID: "R4", TotalSeats: 30, DepartureTime: "20:00", ArrivalTime: "06:00", FarePerSeat: 1300},
		{ID: "B7", Name: "IT Corridor Link", RouteID: "R5", TotalSeats: 50, DepartureTime: "21:00", ArrivalTime: "05:00", FarePerSeat: 900},
		{ID: "B8", Name: "Goa Getaway", RouteID: "R6", TotalSeats: 40, DepartureTime: "22:00", ArrivalTime: "07:00", FarePerSeat: 1000},
		{ID: "B9", Name: "Capital Connect", RouteID: "R7", TotalSeats: 40, DepartureTime: "19:00", ArrivalTime: "15:00", FarePerSeat: 2500},
		{ID: "B10", Name: "Pink City Express", RouteID: "R8", TotalSeats: 30, DepartureTime: "07:00", ArrivalTime: "21:00", FarePerSeat: 1600},
		{ID: "B11", Name: "Mumbai Night Rider", RouteID: "R6", TotalSeats: 35, DepartureTime: "23:00", ArrivalTime: "08:00", FarePerSeat: 1100},
	}
}

func DefaultUsers() []domain.User {
	return []domain.User{
		{ID: "u1", Name: "Sam User", Email: "user@gemini.com", Role: domain.RoleUser},
		{ID: "a1", Name: "Alex Admin", Email: "admin@gemini.com", Role: domain.RoleAdmin},
	}
}

// Seed writes the default dataset into every collection that does not exist
// yet. Existing collections, even empty ones, are left alone.
func (g *Gateway) Seed(ctx context.Context) error {
	const op = "gateway.Seed"

	seeds := []struct {
		collection string
		write      func(ctx context.Context) error
	}{
		{CollectionRoutes, func(ctx context.Context) error { return g.WriteRoutes(ctx, DefaultRoutes(), 0) }},
		{CollectionBuses, func(ctx context.Context) error { return g.WriteBuses(ctx, DefaultBuses(), 0) }},
		{CollectionUsers, func(ctx context.Context) error { return g.WriteUsers(ctx, DefaultUsers(), 0) }},
		{CollectionBookings, func(ctx context.Context) error { return g.WriteBookings(ctx, nil, 0) }},
	}

	for _, s := range seeds {
		e, err := g.kv.Get(ctx, Key(s.collection))
		if err != nil {
			return fmt.Errorf("%s:%w", op, &PersistenceError{Collection: s.collection, Err: err})
		}

		if e.Found {
			continue
		}

		if err := s.write(ctx); err != nil {
			// another instance seeded it first
			if errors.Is(err, repository.ErrConflict) {
				continue
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		g.logger.Info("seeded collection", "collection", s.collection)
	}

	return nil
}
