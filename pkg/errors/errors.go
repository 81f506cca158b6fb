package errors

import "errors"

var (
	ErrUserNotFound            = errors.New("user not found")
	ErrUsernameExists          = errors.New("username already exists")
	ErrInvalidCredentials      = errors.New("credentials are incorrect")
	ErrNoRefreshToken          = errors.New("missing or invalid refresh_token cookie")
	ErrAlreadyLoggedOut        = errors.New("you have been already logged out")
	ErrRefreshTokenNotFound    = errors.New("refresh_token not found in the database")
	ErrRefreshTokenExpired     = errors.New("refresh token has expired, please log in again")
	ErrRefreshSignatureInvalid = errors.New("refresh token signature verification failed")
	ErrSubjectMismatch         = errors.New("stored username does not match token subject")
	ErrStoredTokenMismatch     = errors.New("refresh token is mismatch or not found")
	ErrTooManyAttempts         = errors.New("too many failed sign-in attempts")
	ErrInvalidInput            = errors.New("invalid input")
	ErrInternal                = errors.New("internal error")
)
