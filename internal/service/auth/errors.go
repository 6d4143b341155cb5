package auth

import "errors"

// Errors returned by JWTService and the bearer middleware.
var (
	// ErrInvalidToken covers malformed tokens, bad signatures and tokens
	// that are not operator tokens.
	ErrInvalidToken = errors.New("invalid operator token")

	ErrExpiredToken = errors.New("operator token has expired")

	// ErrTokenNotYetValid is returned when nbf lies beyond the allowed clock skew.
	ErrTokenNotYetValid = errors.New("operator token not yet valid")

	ErrMissingToken = errors.New("operator token is missing")

	ErrInvalidSubject = errors.New("token subject cannot be empty")
)
