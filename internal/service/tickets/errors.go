package tickets

import (
	"errors"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrForbidden       = errors.New("booking belongs to another user")
	ErrBusNotFound     = errors.New("bus for booking not found")
)
