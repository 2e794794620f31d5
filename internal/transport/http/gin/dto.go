package httpgin

import (
	"github.com/kirinyoku/busline/internal/domain"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password"`
}

type CreateBookingRequest struct {
	BusID       string      `json:"bus_id" binding:"required"`
	Date        string      `json:"date" binding:"required"`
	Source      domain.City `json:"source" binding:"required"`
	Destination domain.City `json:"destination" binding:"required"`
	Seats       []int       `json:"seats" binding:"required,min=1"`
}

type CreateRouteRequest struct {
	Stops []domain.City `json:"stops" binding:"required"`
}

type CreateBusRequest struct {
	Name          string  `json:"name" binding:"required"`
	RouteID       string  `json:"route_id" binding:"required"`
	TotalSeats    int     `json:"total_seats" binding:"required,gt=0"`
	DepartureTime string  `json:"departure_time" binding:"required"`
	ArrivalTime   string  `json:"arrival_time" binding:"required"`
	FarePerSeat   float64 `json:"fare_per_seat" binding:"required,gt=0"`
}

func (r CreateBusRequest) toInput() domain.BusInput {
	return domain.BusInput{
		Name:          r.Name,
		RouteID:       r.RouteID,
		TotalSeats:    r.TotalSeats,
		DepartureTime: r.DepartureTime,
		ArrivalTime:   r.ArrivalTime,
		FarePerSeat:   r.FarePerSeat,
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type SeatsErrorResponse struct {
	Error string `json:"error"`
	Seats []int  `json:"seats"`
}

type CitiesResponse struct {
	Cities []domain.City `json:"cities"`
}
