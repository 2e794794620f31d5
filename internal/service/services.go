package service

import (
	"log/slog"

	"github.com/kirinyoku/busline/internal/catalog"
	"github.com/kirinyoku/busline/internal/gateway"
	"github.com/kirinyoku/busline/internal/ledger"
	redis "github.com/kirinyoku/busline/internal/repository/redis"
	"github.com/kirinyoku/busline/internal/service/admin"
	"github.com/kirinyoku/busline/internal/service/query"
	"github.com/kirinyoku/busline/internal/service/reservation"
	"github.com/kirinyoku/busline/internal/service/tickets"
	"github.com/kirinyoku/busline/internal/service/users"
)

type Services struct {
	Reservation *reservation.Service
	Query       *query.Service
	Admin       *admin.Service
	Tickets     *tickets.Service
	Users       *users.Service
}

type Config struct {
	Reservation reservation.Config
	Query       query.Config
	Users       users.Config
}

// Deps are the shared building blocks every service is assembled from.
// Cache, PubSub and Limiter may be nil when Redis is not configured.
type Deps struct {
	Gateway *gateway.Gateway
	Catalog *catalog.Catalog
	Ledger  *ledger.Ledger
	Cache   *redis.Cache
	PubSub  *redis.CatalogPubSub
	Limiter *redis.SlidingWindowLimiter
	Logger  *slog.Logger
}

func NewServices(deps Deps, cfg Config) *Services {
	return &Services{
		Reservation: reservation.New(deps.Catalog, deps.Ledger, deps.Cache, deps.Limiter, deps.Logger, cfg.Reservation),
		Query:       query.New(deps.Catalog, deps.Ledger, deps.Cache, cfg.Query),
		Admin:       admin.New(deps.Catalog, deps.PubSub, deps.Logger),
		Tickets:     tickets.New(deps.Catalog, deps.Ledger),
		Users:       users.New(deps.Gateway, cfg.Users),
	}
}
