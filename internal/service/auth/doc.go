// Package auth issues and validates the bearer tokens that protect the
// operator API. Tokens are HMAC-SHA256 signed JWTs carrying the operator
// name as subject.
package auth
