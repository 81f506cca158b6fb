package models

import "database/sql"

// Credential is one row of the credentials table. RefreshToken and
// RefreshExpiry are set and cleared together: a user holds at most one live
// refresh token, and the expiry mirrors the exp claim embedded in it.
type Credential struct {
	Username      string
	PasswordHash  string
	RefreshToken  sql.NullString
	RefreshExpiry sql.NullInt64
	CreatedAt     sql.NullTime
}

// HasRefreshToken reports whether the record currently carries a live
// refresh token slot.
func (c *Credential) HasRefreshToken() bool {
	return c.RefreshToken.Valid && c.RefreshExpiry.Valid
}
