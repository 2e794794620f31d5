package users

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kirinyoku/busline/internal/domain"
	"github.com/kirinyoku/busline/internal/gateway"
	"github.com/kirinyoku/busline/internal/repository/memory"
)

func newTestService(t *testing.T, now func() time.Time) *Service {
	t.Helper()

	gw := gateway.New(memory.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := gw.Seed(context.Background()); err != nil {
		t.Fatalf("Seed error: %v", err)
	}

	return New(gw, Config{Secret: []byte("test-secret"), TokenTTL: time.Hour, Now: now})
}

func TestLoginAndParse(t *testing.T) {
	s := newTestService(t, nil)

	sess, err := s.Login(context.Background(), "admin@gemini.com", "whatever")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if sess.User.ID != "a1" || sess.User.Role != domain.RoleAdmin {
		t.Fatalf("unexpected user %+v", sess.User)
	}

	claims, err := s.ParseToken(sess.Token)
	if err != nil {
		t.Fatalf("ParseToken error: %v", err)
	}
	if claims.UserID != "a1" || claims.Role != domain.RoleAdmin {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	s := newTestService(t, nil)

	if _, err := s.Login(context.Background(), "nobody@example.com", ""); !errors.Is(err, ErrUnknownEmail) {
		t.Fatalf("expected ErrUnknownEmail, got %v", err)
	}
}

func TestParseTokenRejects(t *testing.T) {
	issued := time.Now()
	s := newTestService(t, func() time.Time { return issued })

	sess, err := s.Login(context.Background(), "user@gemini.com", "")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	other := New(s.dir, Config{Secret: []byte("another-secret")})
	if _, err := other.ParseToken(sess.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: expected ErrInvalidToken, got %v", err)
	}

	s.cfg.Now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, err := s.ParseToken(sess.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: expected ErrInvalidToken, got %v", err)
	}

	if _, err := s.ParseToken("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage: expected ErrInvalidToken, got %v", err)
	}
}
