package admin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/kirinyoku/busline/internal/catalog"
	"github.com/kirinyoku/busline/internal/domain"
	"github.com/kirinyoku/busline/internal/gateway"
	"github.com/kirinyoku/busline/internal/repository/memory"
)

func newTestService(t *testing.T) (*Service, *catalog.Catalog) {
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

	return New(cat, nil, logger), cat
}

func TestAddRouteValidation(t *testing.T) {
	s, cat := newTestService(t)
	before := len(cat.Routes())

	tests := []struct {
		name  string
		stops []domain.City
	}{
		{"empty", nil},
		{"single stop", []domain.City{domain.Goa}},
		{"unknown city", []domain.City{domain.Goa, domain.City("Atlantis")}},
		{"repeated city", []domain.City{domain.Goa, domain.Pune, domain.Goa}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.AddRoute(context.Background(), tt.stops); !errors.Is(err, ErrInvalidRoute) {
				t.Fatalf("expected ErrInvalidRoute, got %v", err)
			}
		})
	}

	if len(cat.Routes()) != before {
		t.Fatalf("invalid routes reached the catalog")
	}
}

func TestAddRouteAndBus(t *testing.T) {
	ctx := context.Background()
	s, cat := newTestService(t)

	route, err := s.AddRoute(ctx, []domain.City{domain.Kolkata, domain.Delhi, domain.Jaipur})
	if err != nil {
		t.Fatalf("AddRoute error: %v", err)
	}

	bus, err := s.AddBus(ctx, domain.BusInput{
		Name:          "Northern Arrow",
		RouteID:       route.ID,
		TotalSeats:    32,
		DepartureTime: "05:45",
		ArrivalTime:   "23:10",
		FarePerSeat:   2100,
	})
	if err != nil {
		t.Fatalf("AddBus error: %v", err)
	}

	got, ok := cat.RouteForBus(bus.ID)
	if !ok || got.ID != route.ID {
		t.Fatalf("RouteForBus = %+v, %v", got, ok)
	}
}

func TestAddBusValidation(t *testing.T) {
	s, cat := newTestService(t)
	before := len(cat.Buses())

	valid := domain.BusInput{
		Name:          "Test",
		RouteID:       "R1",
		TotalSeats:    10,
		DepartureTime: "08:00",
		ArrivalTime:   "12:00",
		FarePerSeat:   100,
	}

	tests := []struct {
		name   string
		mutate func(in *domain.BusInput)
		want   error
	}{
		{"missing name", func(in *domain.BusInput) { in.Name = "" }, ErrInvalidBus},
		{"zero seats", func(in *domain.BusInput) { in.TotalSeats = 0 }, ErrInvalidBus},
		{"bad departure", func(in *domain.BusInput) { in.DepartureTime = "8am" }, ErrInvalidBus},
		{"negative fare", func(in *domain.BusInput) { in.FarePerSeat = -1 }, ErrInvalidBus},
		{"unknown route", func(in *domain.BusInput) { in.RouteID = "R404" }, ErrRouteNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)

			if _, err := s.AddBus(context.Background(), in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if len(cat.Buses()) != before {
		t.Fatalf("invalid buses reached the catalog")
	}
}
