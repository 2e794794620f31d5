package tickets

import (
	"context"
	"fmt"

	"github.com/kirinyoku/busline/internal/catalog"
	"github.com/kirinyoku/busline/internal/domain"
	"github.com/kirinyoku/busline/internal/ledger"
	"github.com/kirinyoku/busline/internal/ticket"
)

// Requester is the authenticated caller asking for a booking.
type Requester struct {
	UserID string
	Role   domain.Role
}

type Service struct {
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
}

func New(cat *catalog.Catalog, led *ledger.Ledger) *Service {
	return &Service{catalog: cat, ledger: led}
}

// Authorize loads a booking and checks that who may act on it. Admins may
// act on any booking.
//
// Parameters:
//   - ctx: request-scoped context.
//   - bookingID: ID of the booking.
//   - who: the caller.
//
// Returns:
//   - domain.Booking: the booking when access is allowed.
//   - error: tickets.ErrBookingNotFound if the booking does not exist.
//   - error: tickets.ErrForbidden if the caller is neither owner nor admin.
func (s *Service) Authorize(ctx context.Context, bookingID string, who Requester) (domain.Booking, error) {
	const op = "service.tickets.Authorize"

	b, ok, err := s.ledger.Get(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("%s:%w", op, err)
	}
	if !ok {
		return domain.Booking{}, fmt.Errorf("%s:%w", op, ErrBookingNotFound)
	}

	if who.Role != domain.RoleAdmin && b.UserID != who.UserID {
		return domain.Booking{}, fmt.Errorf("%s:%w", op, ErrForbidden)
	}

	return b, nil
}

// ETicket renders the PDF e-ticket of a booking the caller may access.
//
// Returns:
//   - []byte: PDF document.
//   - string: suggested filename.
//   - error: tickets.ErrBookingNotFound, tickets.ErrForbidden or
//     tickets.ErrBusNotFound.
func (s *Service) ETicket(ctx context.Context, bookingID string, who Requester) ([]byte, string, error) {
	const op = "service.tickets.ETicket"

	b, err := s.Authorize(ctx, bookingID, who)
	if err != nil {
		return nil, "", fmt.Errorf("%s:%w", op, err)
	}

	bus, ok := s.catalog.Bus(b.BusID)
	if !ok {
		return nil, "", fmt.Errorf("%s:%w", op, ErrBusNotFound)
	}

	// a missing route only drops the stop list from the ticket
	route, _ := s.catalog.Route(bus.RouteID)

	data, name, err := ticket.Render(b, bus, route)
	if err != nil {
		return nil, "", fmt.Errorf("%s:%w", op, err)
	}

	return data, name, nil
}
