package store

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryRefreshTokenRotation(t *testing.T) {
	s := NewMemoryRefreshTokenStore()
	token, err := s.NewToken("u1", time.Minute)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	userID, newToken, err := s.RotateToken(token, time.Minute)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if userID != "u1" || newToken == token {
		t.Fatalf("rotate = (%q, %q)", userID, newToken)
	}
	if _, _, err := s.RotateToken(token, time.Minute); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("rotated token should be invalid, got %v", err)
	}
}

func TestMemoryRefreshTokenRevokeUser(t *testing.T) {
	s := NewMemoryRefreshTokenStore()
	t1, _ := s.NewToken("u1", time.Minute)
	t2, _ := s.NewToken("u1", time.Minute)
	if err := s.RevokeUserTokens("u1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, _, err := s.RotateToken(t1, time.Minute); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("revoked token t1 should be invalid, got %v", err)
	}
	if _, _, err := s.RotateToken(t2, time.Minute); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("revoked token t2 should be invalid, got %v", err)
	}
}

func TestRedisRefreshTokenRotation(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisRefreshTokenStore(mr.Addr(), "")

	token, err := s.NewToken("u1", time.Minute)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	userID, newToken, err := s.RotateToken(token, time.Minute)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if userID != "u1" {
		t.Fatalf("rotate user = %q", userID)
	}
	if _, _, err := s.RotateToken(token, time.Minute); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("old token should be invalid after rotation, got %v", err)
	}
	if err := s.DeleteToken(newToken); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := s.RotateToken(newToken, time.Minute); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("deleted token should be invalid, got %v", err)
	}
}

func TestRedisRefreshTokenExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisRefreshTokenStore(mr.Addr(), "")

	token, err := s.NewToken("u1", time.Second)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if _, _, err := s.RotateToken(token, time.Second); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expired token should be invalid, got %v", err)
	}
}
