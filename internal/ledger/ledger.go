package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/kirinyoku/busline/internal/domain"
	"github.com/kirinyoku/busline/internal/repository"
)

const DefaultMaxRetries = 8

var ErrTooManyConflicts = errors.New("bookings changed concurrently, giving up")

// Store is the part of the persistence gateway the ledger needs.
type Store interface {
	ReadBookings(ctx context.Context) ([]domain.Booking, int64, error)
	WriteBookings(ctx context.Context, bookings []domain.Booking, version int64) error
}

// Ledger owns booking records. Every write goes through Update, which
// re-reads the collection and retries when another writer got in first.
type Ledger struct {
	store      Store
	maxRetries int
}

func New(store Store, maxRetries int) *Ledger {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	return &Ledger{store: store, maxRetries: maxRetries}
}

// All returns every booking, most recent first.
func (l *Ledger) All(ctx context.Context) ([]domain.Booking, error) {
	const op = "ledger.All"

	bookings, _, err := l.store.ReadBookings(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	sortRecentFirst(bookings)

	return bookings, nil
}

// ForUser returns userID's bookings, most recent first.
func (l *Ledger) ForUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	const op = "ledger.ForUser"

	bookings, _, err := l.store.ReadBookings(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	out := make([]domain.Booking, 0)
	for _, b := range bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}

	sortRecentFirst(out)

	return out, nil
}

// ForBusDate returns the bookings of one bus on one travel date. Dates are
// compared as plain strings.
func (l *Ledger) ForBusDate(ctx context.Context, busID, date string) ([]domain.Booking, error) {
	const op = "ledger.ForBusDate"

	bookings, _, err := l.store.ReadBookings(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return FilterBusDate(bookings, busID, date), nil
}

func (l *Ledger) Get(ctx context.Context, id string) (domain.Booking, bool, error) {
	const op = "ledger.Get"

	bookings, _, err := l.store.ReadBookings(ctx)
	if err != nil {
		return domain.Booking{}, false, fmt.Errorf("%s:%w", op, err)
	}

	for _, b := range bookings {
		if b.ID == id {
			return b, true, nil
		}
	}

	return domain.Booking{}, false, nil
}

// Update applies fn to a fresh snapshot of all bookings and writes the
// result back if nobody else wrote in between. On a lost race fn runs again
// against the newer snapshot. An error from fn aborts without writing.
func (l *Ledger) Update(ctx context.Context, fn func(bookings []domain.Booking) ([]domain.Booking, error)) error {
	const op = "ledger.Update"

	for attempt := 0; attempt < l.maxRetries; attempt++ {
		bookings, version, err := l.store.ReadBookings(ctx)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		next, err := fn(bookings)
		if err != nil {
			return err
		}

		err = l.store.WriteBookings(ctx, next, version)
		if err == nil {
			return nil
		}

		if !errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
	}

	return fmt.Errorf("%s:%w", op, ErrTooManyConflicts)
}

// Append adds b to the ledger.
func (l *Ledger) Append(ctx context.Context, b domain.Booking) error {
	return l.Update(ctx, func(bookings []domain.Booking) ([]domain.Booking, error) {
		return append(bookings, b), nil
	})
}

// Remove deletes the booking with id. It reports whether the booking existed.
func (l *Ledger) Remove(ctx context.Context, id string) (bool, error) {
	var removed bool

	err := l.Update(ctx, func(bookings []domain.Booking) ([]domain.Booking, error) {
		removed = false
		out := make([]domain.Booking, 0, len(bookings))
		for _, b := range bookings {
			if b.ID == id {
				removed = true
				continue
			}
			out = append(out, b)
		}
		return out, nil
	})

	return removed, err
}

// FilterBusDate is the in-snapshot form of ForBusDate, for use inside Update.
func FilterBusDate(bookings []domain.Booking, busID, date string) []domain.Booking {
	out := make([]domain.Booking, 0)
	for _, b := range bookings {
		if b.BusID == busID && b.Date == date {
			out = append(out, b)
		}
	}
	return out
}

func sortRecentFirst(bookings []domain.Booking) {
	slices.SortStableFunc(bookings, func(a, b domain.Booking) int {
		return b.BookingTime.Compare(a.BookingTime)
	})
}
