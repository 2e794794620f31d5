package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kirinyoku/busline/internal/domain"
	"github.com/kirinyoku/busline/internal/gateway"
)

const DefaultTokenTTL = 24 * time.Hour

// Directory looks users up by email.
type Directory interface {
	FindUserByEmail(ctx context.Context, email string) (domain.User, error)
}

type Config struct {
	Secret   []byte
	TokenTTL time.Duration
	Now      func() time.Time
}

type Service struct {
	dir Directory
	cfg Config
}

// Session is what a successful login returns to the client.
type Session struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

type Claims struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

func New(dir Directory, cfg Config) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{dir: dir, cfg: cfg}
}

// Login resolves email to a known user and issues a signed session token.
// The password is not checked.
//
// Parameters:
//   - ctx: request-scoped context.
//   - email: account email, matched exactly.
//
// Returns:
//   - Session: the user and a bearer token.
//   - error: users.ErrUnknownEmail if no user has that email.
func (s *Service) Login(ctx context.Context, email, _ string) (Session, error) {
	const op = "service.users.Login"

	u, err := s.dir.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gateway.ErrUserNotFound) {
			return Session{}, fmt.Errorf("%s:%w", op, ErrUnknownEmail)
		}
		return Session{}, fmt.Errorf("%s:%w", op, err)
	}

	now := s.cfg.Now()
	claims := Claims{
		UserID: u.ID,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return Session{}, fmt.Errorf("%s:%w", op, err)
	}

	return Session{User: u, Token: token}, nil
}

// ParseToken verifies a bearer token and returns its claims.
func (s *Service) ParseToken(token string) (*Claims, error) {
	const op = "service.users.ParseToken"

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(*jwt.Token) (any, error) { return s.cfg.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.cfg.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w: %v", op, ErrInvalidToken, err)
	}

	if claims.UserID == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidToken)
	}

	return claims, nil
}
