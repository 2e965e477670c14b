package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrRevokedToken = errors.New("token revoked")
)

const revokedKeyPrefix = "auth:revoked:"

// RevocationStore holds denylisted token ids until they expire. The redis
// client satisfies it; a nil store disables revocation.
type RevocationStore interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Claims carries the authenticated user id inside the signed token.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Service issues, validates, and revokes user authentication tokens. Tokens
// are signed JWTs; revocation is a redis denylist keyed by token id that
// expires together with the token itself.
type Service struct {
	secret         []byte
	tokenTTL       time.Duration
	cache          RevocationStore
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
}

// NewService constructs an auth service with the supplied signing secret and
// token lifetime. The cache may be nil, in which case logout cannot revoke
// tokens before expiry.
func NewService(secret string, ttl time.Duration, cache RevocationStore) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		secret:         []byte(secret),
		tokenTTL:       ttl,
		cache:          cache,
		cookieName:     "auth_token",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
	}
}

// IssueToken signs a new token for the user.
func (s *Service) IssueToken(userID int64) (string, error) {
	if userID <= 0 {
		return "", errors.New("invalid user id")
	}
	now := time.Now().UTC()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "clarichat",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies the signature and expiry and checks the revocation
// denylist, returning the user id.
func (s *Service) ValidateToken(ctx context.Context, authToken string) (int64, error) {
	claims, err := s.parseClaims(authToken)
	if err != nil {
		return 0, err
	}
	if claims.ID != "" && s.cache != nil {
		revoked, err := s.cache.Exists(ctx, revokedKeyPrefix+claims.ID)
		if err == nil && revoked {
			return 0, ErrRevokedToken
		}
	}
	return claims.UserID, nil
}

// RevokeToken denylists the token id until the token would expire anyway.
func (s *Service) RevokeToken(ctx context.Context, authToken string) error {
	claims, err := s.parseClaims(authToken)
	if err != nil {
		// Expired or malformed tokens need no revocation entry.
		return nil
	}
	if claims.ID == "" || s.cache == nil {
		return nil
	}
	ttl := s.tokenTTL
	if claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining > 0 {
			ttl = remaining
		}
	}
	if err := s.cache.Set(ctx, revokedKeyPrefix+claims.ID, "1", ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *Service) parseClaims(authToken string) (*Claims, error) {
	if authToken == "" {
		return nil, errors.New("token required")
	}
	token, err := jwt.ParseWithClaims(authToken, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthCookieName returns the cookie name storing auth tokens.
func (s *Service) AuthCookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}

// TokenTTL reports the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}
