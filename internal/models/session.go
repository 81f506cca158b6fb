package models

import "time"

// SessionTokens is the result of a successful sign-in.
type SessionTokens struct {
	Username     string
	AccessToken  string
	RefreshToken string
}

// RotatedTokens is the result of a successful refresh. RemainingTTL is the
// time left until the original refresh expiry anchor; the handler uses it as
// the max-age of the renewed cookie.
type RotatedTokens struct {
	AccessToken  string
	RefreshToken string
	RemainingTTL time.Duration
}
