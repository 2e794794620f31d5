package httpgin

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/busline/internal/domain"
	"github.com/kirinyoku/busline/internal/gateway"
	"github.com/kirinyoku/busline/internal/ledger"
	redisrepo "github.com/kirinyoku/busline/internal/repository/redis"
	"github.com/kirinyoku/busline/internal/service"
	"github.com/kirinyoku/busline/internal/service/admin"
	"github.com/kirinyoku/busline/internal/service/query"
	"github.com/kirinyoku/busline/internal/service/reservation"
	"github.com/kirinyoku/busline/internal/service/tickets"
	"github.com/kirinyoku/busline/internal/service/users"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// NewRouter wires the HTTP API. idem may be nil, in which case
// Idempotency-Key headers are ignored.
func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/auth/login", handleLogin(svcs))

	// Public catalog
	r.GET("/cities", handleListCities(svcs))
	r.GET("/routes", handleListRoutes(svcs))
	r.GET("/buses", handleListBuses(svcs))
	r.GET("/buses/search", handleSearchBuses(svcs))
	r.GET("/buses/:id/route", handleGetBusRoute(svcs))
	r.GET("/buses/:id/seats", handleGetSeatMap(svcs))

	authed := r.Group("/", AuthMiddleware(svcs.Users))
	{
		authed.POST("/bookings", handleCreateBooking(svcs, idem))
		authed.GET("/bookings/me", handleMyBookings(svcs))
		authed.GET("/bookings/:id/ticket.pdf", handleGetTicket(svcs))
		authed.POST("/bookings/:id/cancel", handleCancelBooking(svcs))
	}

	adminGroup := r.Group("/admin", AuthMiddleware(svcs.Users), RequireRole(domain.RoleAdmin))
	{
		adminGroup.POST("/routes", handleCreateRoute(svcs))
		adminGroup.POST("/buses", handleCreateBus(svcs))
		adminGroup.GET("/bookings", handleAllBookings(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Log in by email
// @Param    req body  LoginRequest true "payload"
// @Success  200 {object} users.Session
// @Failure  401 {object} ErrorResponse
// @Router   /auth/login [post]
func handleLogin(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		sess, err := svcs.Users.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}

// @Summary  List supported cities
// @Success  200 {object} CitiesResponse
// @Router   /cities [get]
func handleListCities(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		writeJSONWithCache(c, http.StatusOK, CitiesResponse{Cities: svcs.Query.Cities()}, "public, max-age=3600", true)
	}
}

// @Summary  List routes
// @Success  200 {array} domain.Route
// @Router   /routes [get]
func handleListRoutes(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		writeJSONWithCache(c, http.StatusOK, svcs.Query.Routes(), "public, max-age=60", true)
	}
}

// @Summary  List buses
// @Success  200 {array} domain.Bus
// @Router   /buses [get]
func handleListBuses(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		writeJSONWithCache(c, http.StatusOK, svcs.Query.Buses(), "public, max-age=60", true)
	}
}

// @Summary  Find buses travelling from source to destination
// @Param    source      query  string  true   "Source city"
// @Param    destination query  string  true   "Destination city"
// @Param    date        query  string  false  "Travel date (YYYY-MM-DD)"
// @Success  200 {array}  domain.Bus
// @Failure  400 {object} ErrorResponse
// @Router   /buses/search [get]
func handleSearchBuses(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		src, dst, ok := parseJourney(c)
		if !ok {
			return
		}
		if date := c.Query("date"); date != "" {
			if _, err := time.Parse(domain.DateLayout, date); err != nil {
				badRequest(c, "invalid date (YYYY-MM-DD)")
				return
			}
		}
		writeJSONWithCache(c, http.StatusOK, svcs.Reservation.FindBuses(src, dst), "public, max-age=30", true)
	}
}

// @Summary  Get the route a bus runs on
// @Param    id  path  string  true  "Bus ID"
// @Success  200 {object} domain.Route
// @Failure  404 {object} ErrorResponse
// @Router   /buses/{id}/route [get]
func handleGetBusRoute(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		route, err := svcs.Query.RouteForBus(c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, route, "public, max-age=60", true)
	}
}

// @Summary  Seat map for a sub-journey
// @Param    id          path   string  true  "Bus ID"
// @Param    date        query  string  true  "Travel date (YYYY-MM-DD)"
// @Param    source      query  string  true  "Source city"
// @Param    destination query  string  true  "Destination city"
// @Success  200 {object} domain.SeatMap
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /buses/{id}/seats [get]
func handleGetSeatMap(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		src, dst, ok := parseJourney(c)
		if !ok {
			return
		}
		date := c.Query("date")
		if _, err := time.Parse(domain.DateLayout, date); err != nil {
			badRequest(c, "invalid date (YYYY-MM-DD)")
			return
		}
		m, err := svcs.Reservation.SeatMap(c.Request.Context(), c.Param("id"), date, src, dst)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusOK, m)
	}
}

// @Summary  Book seats (idempotent)
// @Security BearerAuth
// @Param    req body  CreateBookingRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} domain.Booking
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse "bus not found"
// @Failure  409 {object} SeatsErrorResponse "seats unavailable / idem in progress"
// @Failure  422 {object} ErrorResponse "idempotency key reused"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /bookings [post]
func handleCreateBooking(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		who := requesterFrom(c)

		ctx := c.Request.Context()

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey, fingerprint string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(who.UserID, idemKey)
			fingerprint = requestFingerprint(req)

			stored, err := idem.Begin(ctx, idemStorageKey, fingerprint)
			if err != nil {
				respondErr(c, err)
				return
			}
			if stored != nil {
				c.Header("Idempotency-Key", idemKey)
				c.Data(stored.Status, "application/json; charset=utf-8", stored.Body)
				return
			}
		}

		booking, err := svcs.Reservation.BookTicket(
			ctx,
			reservation.BookingRequest{
				UserID:      who.UserID,
				BusID:       req.BusID,
				Date:        req.Date,
				Source:      req.Source,
				Destination: req.Destination,
				Seats:       req.Seats,
			},
			"ip:"+c.ClientIP(),
		)
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Abort(ctx, idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" {
			b, _ := json.Marshal(booking)
			resp := redisrepo.StoredResponse{Status: http.StatusCreated, Body: b}
			if err := idem.Complete(ctx, idemStorageKey, fingerprint, resp); err != nil {
				_ = c.Error(err)
			}
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, booking)
	}
}

// @Summary  Bookings of the caller, most recent first
// @Security BearerAuth
// @Success  200 {array} domain.Booking
// @Router   /bookings/me [get]
func handleMyBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookings, err := svcs.Query.BookingsForUser(c.Request.Context(), requesterFrom(c).UserID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, bookings)
	}
}

// @Summary  Download the e-ticket of a booking
// @Security BearerAuth
// @Param    id  path  string  true  "Booking ID"
// @Produce  application/pdf
// @Success  200 {file} file
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{id}/ticket.pdf [get]
func handleGetTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, name, err := svcs.Tickets.ETicket(c.Request.Context(), c.Param("id"), requesterFrom(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
		c.Data(http.StatusOK, "application/pdf", data)
	}
}

// @Summary  Cancel a booking and issue a refund
// @Security BearerAuth
// @Param    id  path  string  true  "Booking ID"
// @Success  200 {object} domain.CancellationResult
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} domain.CancellationResult
// @Router   /bookings/{id}/cancel [post]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		// a missing booking is reported by the engine's result below
		_, err := svcs.Tickets.Authorize(c.Request.Context(), id, requesterFrom(c))
		if err != nil && !errors.Is(err, tickets.ErrBookingNotFound) {
			respondErr(c, err)
			return
		}

		res, err := svcs.Reservation.CancelBooking(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		status := http.StatusOK
		if !res.Success {
			status = http.StatusNotFound
		}
		c.JSON(status, res)
	}
}

// @Summary  Create route
// @Security BearerAuth
// @Param    req body  CreateRouteRequest true "payload"
// @Success  201 {object} domain.Route
// @Failure  400 {object} ErrorResponse
// @Router   /admin/routes [post]
func handleCreateRoute(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRouteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		route, err := svcs.Admin.AddRoute(c.Request.Context(), req.Stops)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, route)
	}
}

// @Summary  Create bus
// @Security BearerAuth
// @Param    req body  CreateBusRequest true "payload"
// @Success  201 {object} domain.Bus
// @Failure  400 {object} ErrorResponse
// @Router   /admin/buses [post]
func handleCreateBus(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		bus, err := svcs.Admin.AddBus(c.Request.Context(), req.toInput())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, bus)
	}
}

// @Summary  All bookings, most recent first
// @Security BearerAuth
// @Success  200 {array} domain.Booking
// @Router   /admin/bookings [get]
func handleAllBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookings, err := svcs.Query.AllBookings(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, bookings)
	}
}

// --- Helpers ---

func parseJourney(c *gin.Context) (domain.City, domain.City, bool) {
	src := domain.City(c.Query("source"))
	dst := domain.City(c.Query("destination"))
	if !src.Valid() {
		badRequest(c, "invalid source")
		return "", "", false
	}
	if !dst.Valid() {
		badRequest(c, "invalid destination")
		return "", "", false
	}
	return src, dst, true
}

// requestFingerprint identifies a booking payload so an Idempotency-Key
// cannot be replayed for different seats.
func requestFingerprint(req CreateBookingRequest) string {
	b, _ := json.Marshal(req)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var (
		unavailable reservation.SeatsUnavailableError
		invalid     reservation.InvalidSeatsError
		limited     reservation.RateLimitedError
		persist     *gateway.PersistenceError
	)

	switch {
	// reservation service
	case errors.As(err, &unavailable):
		c.JSON(http.StatusConflict, SeatsErrorResponse{Error: "seats unavailable", Seats: unavailable.Seats})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, SeatsErrorResponse{Error: invalid.Error(), Seats: invalid.Seats})
	case errors.As(err, &limited):
		c.Header("Retry-After", strconv.Itoa(max(1, int(limited.RetryAfter.Seconds()))))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
	case errors.Is(err, reservation.ErrBusNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: reservation.ErrBusNotFound.Error()})
	case errors.Is(err, reservation.ErrRouteNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "route not found"})
	case errors.Is(err, reservation.ErrInvalidJourney):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: reservation.ErrInvalidJourney.Error()})
	case errors.Is(err, reservation.ErrInvalidDate):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: reservation.ErrInvalidDate.Error()})
	case errors.Is(err, reservation.ErrNoSeats):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: reservation.ErrNoSeats.Error()})
	// admin service
	case errors.Is(err, admin.ErrInvalidRoute), errors.Is(err, admin.ErrInvalidBus):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, admin.ErrRouteNotFound):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "route does not exist"})
	// query service
	case errors.Is(err, query.ErrBusNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "bus not found"})
	case errors.Is(err, query.ErrRouteNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "route not found"})
	// tickets service
	case errors.Is(err, tickets.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
	case errors.Is(err, tickets.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	case errors.Is(err, tickets.ErrBusNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "bus not found"})
	// users service
	case errors.Is(err, users.ErrUnknownEmail):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unknown email"})
	case errors.Is(err, users.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
	// idempotency
	case errors.Is(err, redisrepo.ErrIdemInFlight):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, ErrorResponse{Error: redisrepo.ErrIdemInFlight.Error()})
	case errors.Is(err, redisrepo.ErrIdemMismatch):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: redisrepo.ErrIdemMismatch.Error()})
	// storage
	case errors.Is(err, ledger.ErrTooManyConflicts):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "busy, try again"})
	case errors.As(err, &persist):
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage error"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
