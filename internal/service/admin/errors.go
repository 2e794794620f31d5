package admin

import (
	"errors"
)

var (
	ErrInvalidRoute  = errors.New("invalid route")
	ErrInvalidBus    = errors.New("invalid bus")
	ErrRouteNotFound = errors.New("route does not exist")
)
