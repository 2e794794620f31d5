package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirinyoku/busline/internal/domain"
	"github.com/kirinyoku/busline/internal/repository"
)

const (
	CollectionRoutes   = "routes"
	CollectionBuses    = "buses"
	CollectionUsers    = "users"
	CollectionBookings = "bookings"
)

const keyPrefix = "busline:v1:"

var ErrUserNotFound = errors.New("user not found")

// PersistenceError reports a failed read or write of a whole collection,
// including records that do not pass schema validation.
type PersistenceError struct {
	Collection string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Collection, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Key is the storage key of a collection.
func Key(collection string) string {
	return keyPrefix + collection
}

type validator interface {
	Validate() error
}

// Gateway persists the four collections as JSON arrays in a key-value store.
// Every read returns the collection version so writers can detect
// concurrent modification.
type Gateway struct {
	kv     repository.KV
	logger *slog.Logger
}

func New(kv repository.KV, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	return &Gateway{kv: kv, logger: logger}
}

func (g *Gateway) ReadRoutes(ctx context.Context) ([]domain.Route, int64, error) {
	return read[domain.Route](ctx, g, CollectionRoutes)
}

func (g *Gateway) WriteRoutes(ctx context.Context, routes []domain.Route, version int64) error {
	return write(ctx, g, CollectionRoutes, routes, version)
}

func (g *Gateway) ReadBuses(ctx context.Context) ([]domain.Bus, int64, error) {
	return read[domain.Bus](ctx, g, CollectionBuses)
}

func (g *Gateway) WriteBuses(ctx context.Context, buses []domain.Bus, version int64) error {
	return write(ctx, g, CollectionBuses, buses, version)
}

func (g *Gateway) ReadUsers(ctx context.Context) ([]domain.User, int64, error) {
	return read[domain.User](ctx, g, CollectionUsers)
}

func (g *Gateway) WriteUsers(ctx context.Context, users []domain.User, version int64) error {
	return write(ctx, g, CollectionUsers, users, version)
}

func (g *Gateway) ReadBookings(ctx context.Context) ([]domain.Booking, int64, error) {
	return read[domain.Booking](ctx, g, CollectionBookings)
}

func (g *Gateway) WriteBookings(ctx context.Context, bookings []domain.Booking, version int64) error {
	return write(ctx, g, CollectionBookings, bookings, version)
}

// FindUserByEmail looks a user up by exact email.
//
// Returns:
//   - domain.User: the user when found.
//   - error: gateway.ErrUserNotFound if no user has that email.
func (g *Gateway) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	const op = "gateway.FindUserByEmail"

	users, _, err := g.ReadUsers(ctx)
	if err != nil {
		return domain.User{}, fmt.Errorf("%s:%w", op, err)
	}

	for _, u := range users {
		if u.Email == email {
			return u, nil
		}
	}

	return domain.User{}, fmt.Errorf("%s:%w", op, ErrUserNotFound)
}

func read[T validator](ctx context.Context, g *Gateway, collection string) ([]T, int64, error) {
	e, err := g.kv.Get(ctx, Key(collection))
	if err != nil {
		g.logger.Error("collection read failed", "collection", collection, "error", err)
		return nil, 0, &PersistenceError{Collection: collection, Err: err}
	}

	if !e.Found || len(e.Value) == 0 {
		return []T{}, e.Version, nil
	}

	var out []T
	if err := json.Unmarshal(e.Value, &out); err != nil {
		g.logger.Error("collection is not valid JSON", "collection", collection, "error", err)
		return nil, 0, &PersistenceError{
			Collection: collection,
			Err:        fmt.Errorf("%w: %v", repository.ErrCorrupt, err),
		}
	}

	for i, rec := range out {
		if err := rec.Validate(); err != nil {
			g.logger.Error("invalid record", "collection", collection, "index", i, "error", err)
			return nil, 0, &PersistenceError{
				Collection: collection,
				Err:        fmt.Errorf("%w: record %d: %v", repository.ErrCorrupt, i, err),
			}
		}
	}

	if out == nil {
		out = []T{}
	}

	return out, e.Version, nil
}

func write[T any](ctx context.Context, g *Gateway, collection string, records []T, version int64) error {
	if records == nil {
		records = []T{}
	}

	b, err := json.Marshal(records)
	if err != nil {
		return &PersistenceError{Collection: collection, Err: err}
	}

	if err := g.kv.CompareAndSwap(ctx, Key(collection), b, version); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			g.logger.Error("collection write failed", "collection", collection, "error", err)
		}
		return &PersistenceError{Collection: collection, Err: err}
	}

	return nil
}
