package users

import (
	"errors"
)

var (
	ErrUnknownEmail = errors.New("no user with that email")
	ErrInvalidToken = errors.New("invalid or expired token")
)
