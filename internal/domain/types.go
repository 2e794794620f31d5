package domain

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

func (u User) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("user: missing id")
	}

	if u.Role != RoleUser && u.Role != RoleAdmin {
		return fmt.Errorf("user %s: unknown role %q", u.ID, u.Role)
	}

	return nil
}

// Route is a directed path through Stops. A journey on the route is valid
// only when its source comes before its destination.
type Route struct {
	ID    string `json:"id"`
	Stops []City `json:"stops"`
}

// IndexOf returns the stop index of city or -1.
func (r Route) IndexOf(city City) int {
	for i, s := range r.Stops {
		if s == city {
			return i
		}
	}
	return -1
}

// Journey returns the stop-index interval for travelling from source to
// destination. ok is false if either city is missing or the order is wrong.
func (r Route) Journey(source, destination City) (Journey, bool) {
	from := r.IndexOf(source)
	to := r.IndexOf(destination)

	if from == -1 || to == -1 || from >= to {
		return Journey{}, false
	}

	return Journey{From: from, To: to}, true
}

func (r Route) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("route: missing id")
	}

	return ValidateStops(r.Stops)
}

// ValidateStops checks that stops is a usable route path.
func ValidateStops(stops []City) error {
	if len(stops) < 2 {
		return fmt.Errorf("route needs at least 2 stops, got %d", len(stops))
	}

	seen := make(map[City]struct{}, len(stops))
	for _, s := range stops {
		if !s.Valid() {
			return fmt.Errorf("unknown city %q", s)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("duplicate stop %q", s)
		}
		seen[s] = struct{}{}
	}

	return nil
}

type Bus struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	RouteID       string  `json:"route_id"`
	TotalSeats    int     `json:"total_seats"`
	DepartureTime string  `json:"departure_time"`
	ArrivalTime   string  `json:"arrival_time"`
	FarePerSeat   float64 `json:"fare_per_seat"`
}

// BusInput is a bus without an id, as submitted by an admin.
type BusInput struct {
	Name          string  `json:"name"`
	RouteID       string  `json:"route_id"`
	TotalSeats    int     `json:"total_seats"`
	DepartureTime string  `json:"departure_time"`
	ArrivalTime   string  `json:"arrival_time"`
	FarePerSeat   float64 `json:"fare_per_seat"`
}

func (b Bus) ValidSeat(n int) bool {
	return n >= 1 && n <= b.TotalSeats
}

func (in BusInput) Validate() error {
	if in.Name == "" {
		return fmt.Errorf("bus: missing name")
	}

	if in.RouteID == "" {
		return fmt.Errorf("bus: missing route id")
	}

	if in.TotalSeats <= 0 {
		return fmt.Errorf("bus: total seats must be positive")
	}

	if _, err := time.Parse(ClockLayout, in.DepartureTime); err != nil {
		return fmt.Errorf("bus: invalid departure time %q", in.DepartureTime)
	}

	if _, err := time.Parse(ClockLayout, in.ArrivalTime); err != nil {
		return fmt.Errorf("bus: invalid arrival time %q", in.ArrivalTime)
	}

	if in.FarePerSeat <= 0 {
		return fmt.Errorf("bus: fare per seat must be positive")
	}

	return nil
}

func (b Bus) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("bus: missing id")
	}

	return BusInput{
		Name:          b.Name,
		RouteID:       b.RouteID,
		TotalSeats:    b.TotalSeats,
		DepartureTime: b.DepartureTime,
		ArrivalTime:   b.ArrivalTime,
		FarePerSeat:   b.FarePerSeat,
	}.Validate()
}

// Departure combines a travel date with the bus departure clock time in loc.
func (b Bus) Departure(date string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+ClockLayout, date+" "+b.DepartureTime, loc)
}

type Booking struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	BusID       string    `json:"bus_id"`
	Date        string    `json:"date"`
	Source      City      `json:"source"`
	Destination City      `json:"destination"`
	Seats       []int     `json:"seats"`
	TotalFare   float64   `json:"total_fare"`
	BookingTime time.Time `json:"booking_time"`
}

func (b Booking) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("booking: missing id")
	}

	if b.UserID == "" || b.BusID == "" {
		return fmt.Errorf("booking %s: missing user or bus id", b.ID)
	}

	if _, err := time.Parse(DateLayout, b.Date); err != nil {
		return fmt.Errorf("booking %s: invalid date %q", b.ID, b.Date)
	}

	if !b.Source.Valid() || !b.Destination.Valid() {
		return fmt.Errorf("booking %s: unknown city", b.ID)
	}

	if len(b.Seats) == 0 {
		return fmt.Errorf("booking %s: no seats", b.ID)
	}

	if b.BookingTime.IsZero() {
		return fmt.Errorf("booking %s: missing booking time", b.ID)
	}

	return nil
}

// Journey is a half-open stop-index interval [From, To) on a route.
type Journey struct {
	From int
	To   int
}

// Overlaps reports whether two journeys share at least one route segment.
func (j Journey) Overlaps(o Journey) bool {
	return max(j.From, o.From) < min(j.To, o.To)
}

type CancellationResult struct {
	Success      bool    `json:"success"`
	RefundAmount float64 `json:"refund_amount"`
	Message      string  `json:"message"`
}

type SeatMap struct {
	BusID       string `json:"bus_id"`
	Date        string `json:"date"`
	Source      City   `json:"source"`
	Destination City   `json:"destination"`
	TotalSeats  int    `json:"total_seats"`
	Occupied    []int  `json:"occupied"`
	Available   []int  `json:"available"`
}
