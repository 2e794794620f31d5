package uow

import (
	"context"

	"github.com/kirinyoku/busline/internal/domain"
	"github.com/kirinyoku/busline/internal/ledger"
)

// AfterCommit is a function that runs after a successful ledger write.
type AfterCommit func(ctx context.Context)

// UoW represents a unit of work over the booking ledger.
type UoW struct {
	ledger *ledger.Ledger
}

func NewUoW(l *ledger.Ledger) *UoW {
	return &UoW{ledger: l}
}

// Do runs fn inside a ledger update. fn may run more than once when writers
// race; only the hooks registered by the attempt that was committed are
// executed.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, bookings []domain.Booking, after func(AfterCommit)) ([]domain.Booking, error),
) error {
	var hooks []AfterCommit

	err := u.ledger.Update(ctx, func(bookings []domain.Booking) ([]domain.Booking, error) {
		hooks = hooks[:0]
		return fn(ctx, bookings, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
