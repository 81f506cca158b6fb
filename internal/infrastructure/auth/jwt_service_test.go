package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestTokenService() *TokenService {
	return NewTokenService("access-secret", "refresh-secret", time.Minute, 2*time.Minute)
}

func TestTokenService_MintAndVerify(t *testing.T) {
	tokens := newTestTokenService()
	now := time.Now()

	t.Run("access token round trip", func(t *testing.T) {
		token, err := tokens.MintAccess("alice", now)
		assert.NoError(t, err)

		claims, err := tokens.VerifyAccess(token)
		assert.NoError(t, err)
		assert.Equal(t, "alice", claims.Username)
		assert.Equal(t, now.Add(time.Minute).Unix(), claims.ExpiresAt.Unix())
	})

	t.Run("refresh token round trip", func(t *testing.T) {
		token, expiry, err := tokens.MintRefresh("alice", now)
		assert.NoError(t, err)
		assert.Equal(t, now.Add(2*time.Minute).Unix(), expiry.Unix())

		claims, err := tokens.VerifyRefresh(token)
		assert.NoError(t, err)
		assert.Equal(t, "alice", claims.Username)
		assert.Equal(t, expiry.Unix(), claims.ExpiresAt.Unix())
	})
}

func TestTokenService_SecretIsolation(t *testing.T) {
	tokens := newTestTokenService()
	now := time.Now()

	accessToken, err := tokens.MintAccess("alice", now)
	assert.NoError(t, err)
	refreshToken, _, err := tokens.MintRefresh("alice", now)
	assert.NoError(t, err)

	t.Run("access token never verifies under refresh secret", func(t *testing.T) {
		_, err := tokens.VerifyRefresh(accessToken)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("refresh token never verifies under access secret", func(t *testing.T) {
		_, err := tokens.VerifyAccess(refreshToken)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("token from a different key pair is rejected", func(t *testing.T) {
		other := NewTokenService("other-access", "other-refresh", time.Minute, 2*time.Minute)
		token, err := other.MintAccess("alice", now)
		assert.NoError(t, err)

		_, err = tokens.VerifyAccess(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestTokenService_Expiry(t *testing.T) {
	tokens := newTestTokenService()

	t.Run("expired token reported as expired", func(t *testing.T) {
		token, err := tokens.MintAccess("alice", time.Now().Add(-5*time.Minute))
		assert.NoError(t, err)

		_, err = tokens.VerifyAccess(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("malformed token reported as invalid", func(t *testing.T) {
		_, err := tokens.VerifyAccess("not.a.token")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestTokenService_ReSignRefresh(t *testing.T) {
	tokens := newTestTokenService()
	issuedAt := time.Now().Add(-30 * time.Second)

	original, expiry, err := tokens.MintRefresh("alice", issuedAt)
	assert.NoError(t, err)

	rotated, err := tokens.ReSignRefresh("alice", time.Now(), expiry)
	assert.NoError(t, err)
	assert.NotEqual(t, original, rotated)

	claims, err := tokens.VerifyRefresh(rotated)
	assert.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	// The expiry anchor survives rotation unchanged.
	assert.Equal(t, expiry.Unix(), claims.ExpiresAt.Unix())
}
