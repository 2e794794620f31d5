package reservation

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrBusNotFound      = errors.New("Bus not found")
	ErrRouteNotFound    = errors.New("route not found for bus")
	ErrInvalidJourney   = errors.New("source must come before destination on the bus route")
	ErrInvalidDate      = errors.New("date must be YYYY-MM-DD")
	ErrNoSeats          = errors.New("no seats selected")
	ErrInvalidSeats     = errors.New("invalid seat numbers")
	ErrSeatsUnavailable = errors.New("some seats are unavailable")
	ErrRateLimited      = errors.New("rate limited")
)

type InvalidSeatsError struct {
	Seats      []int
	TotalSeats int
}

func (e InvalidSeatsError) Error() string {
	return fmt.Sprintf("seats %v are not valid for a bus with %d seats", e.Seats, e.TotalSeats)
}

func (e InvalidSeatsError) Is(target error) bool {
	return target == ErrInvalidSeats
}

type SeatsUnavailableError struct {
	Seats []int
}

func (e SeatsUnavailableError) Error() string {
	return fmt.Sprintf("some or all seats are unavailable: %v", e.Seats)
}

func (e SeatsUnavailableError) Is(target error) bool {
	return target == ErrSeatsUnavailable
}

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

func (e RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
