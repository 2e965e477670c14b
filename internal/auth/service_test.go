package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIssueAndValidateToken(t *testing.T) {
	svc := NewService("secret", time.Hour, nil)

	token, err := svc.IssueToken(42)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	userID, err := svc.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if userID != 42 {
		t.Fatalf("expected user 42, got %d", userID)
	}
}

func TestValidateRejectsInvalidToken(t *testing.T) {
	svc := NewService("secret", time.Hour, nil)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := svc.ValidateToken(context.Background(), token); err == nil {
			t.Fatalf("expected error for token %q", token)
		}
	}
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	issuer := NewService("secret-a", time.Hour, nil)
	verifier := NewService("secret-b", time.Hour, nil)

	token, err := issuer.IssueToken(1)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := verifier.ValidateToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	svc := NewService("secret", time.Hour, nil)
	svc.tokenTTL = -time.Minute

	token, err := svc.IssueToken(1)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestIssueTokenRejectsInvalidUser(t *testing.T) {
	svc := NewService("secret", time.Hour, nil)
	if _, err := svc.IssueToken(0); err == nil {
		t.Fatal("expected error for user id 0")
	}
}

func TestRevokeWithoutCacheIsNoop(t *testing.T) {
	svc := NewService("secret", time.Hour, nil)

	token, err := svc.IssueToken(7)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if err := svc.RevokeToken(context.Background(), token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	// Without a cache the token remains valid until expiry.
	if _, err := svc.ValidateToken(context.Background(), token); err != nil {
		t.Fatalf("validate after no-op revoke: %v", err)
	}
}

// fakeRevocationStore records denylisted token ids in memory.
type fakeRevocationStore struct {
	entries   map[string]struct{}
	existsErr error
}

func (f *fakeRevocationStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if f.entries == nil {
		f.entries = make(map[string]struct{})
	}
	f.entries[key] = struct{}{}
	return nil
}

func (f *fakeRevocationStore) Exists(ctx context.Context, key string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.entries[key]
	return ok, nil
}

func TestRevokedTokenFailsValidation(t *testing.T) {
	svc := NewService("secret", time.Hour, &fakeRevocationStore{})

	token, err := svc.IssueToken(7)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token); err != nil {
		t.Fatalf("validate before revoke: %v", err)
	}
	if err := svc.RevokeToken(context.Background(), token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token); !errors.Is(err, ErrRevokedToken) {
		t.Fatalf("expected ErrRevokedToken, got %v", err)
	}

	// Revocation is per token, not per user.
	fresh, err := svc.IssueToken(7)
	if err != nil {
		t.Fatalf("issue fresh token: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), fresh); err != nil {
		t.Fatalf("validate fresh token: %v", err)
	}
}

func TestValidateFailsOpenOnRevocationLookupError(t *testing.T) {
	svc := NewService("secret", time.Hour, &fakeRevocationStore{existsErr: errors.New("denylist unreachable")})

	token, err := svc.IssueToken(7)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	// A denylist outage must not lock every user out; the token stays valid
	// until its own expiry.
	userID, err := svc.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("validate during lookup outage: %v", err)
	}
	if userID != 7 {
		t.Fatalf("expected user 7, got %d", userID)
	}
}

func TestNewCSRFTokenIsUnique(t *testing.T) {
	svc := NewService("secret", time.Hour, nil)

	a, err := svc.NewCSRFToken()
	if err != nil {
		t.Fatalf("csrf token: %v", err)
	}
	b, err := svc.NewCSRFToken()
	if err != nil {
		t.Fatalf("csrf token: %v", err)
	}
	if a == b || len(a) != 64 {
		t.Fatalf("expected distinct 64-char tokens, got %q and %q", a, b)
	}
}
