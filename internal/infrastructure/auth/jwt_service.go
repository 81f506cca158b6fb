package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired is returned when the signature library reports the
	// embedded exp claim as already passed.
	ErrTokenExpired = errors.New("token signature has expired")
	// ErrTokenInvalid covers malformed tokens and tokens signed with a
	// different secret.
	ErrTokenInvalid = errors.New("token validation failed")
)

// Claims is the signed payload of both access and refresh tokens:
// {username, iat, exp} as integer unix timestamps on the wire.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies access and refresh claim sets under two
// independent HMAC secrets. A token signed with one secret never verifies
// under the other. Secrets are set once at startup and never change.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// MintAccess signs a short-lived access claim set expiring at now+accessTTL.
func (s *TokenService) MintAccess(username string, now time.Time) (string, error) {
	return sign(username, now, now.Add(s.accessTTL), s.accessSecret)
}

// MintRefresh signs a fresh refresh claim set and returns it together with
// its expiry, which the caller persists alongside the token.
func (s *TokenService) MintRefresh(username string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.refreshTTL)
	token, err := sign(username, now, expiresAt, s.refreshSecret)
	return token, expiresAt, err
}

// ReSignRefresh rotates a refresh token: new iat, new signature, but the
// original expiry is carried forward unchanged. Rotation never extends the
// session horizon.
func (s *TokenService) ReSignRefresh(username string, now, originalExpiry time.Time) (string, error) {
	return sign(username, now, originalExpiry, s.refreshSecret)
}

// VerifyAccess verifies a token against the access secret.
func (s *TokenService) VerifyAccess(token string) (*Claims, error) {
	return verify(token, s.accessSecret)
}

// VerifyRefresh verifies a token against the refresh secret.
func (s *TokenService) VerifyRefresh(token string) (*Claims, error) {
	return verify(token, s.refreshSecret)
}

func sign(username string, issuedAt, expiresAt time.Time, secret []byte) (string, error) {
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func verify(tokenStr string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ExpiresAt == nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
