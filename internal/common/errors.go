// Package common defines shared constants and sentinel errors used across
// the QR login server, its repositories and the qrctl client. Callers should
// use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// ErrPersistence marks a store failure the caller may retry. No partial
	// state survives an operation that returns it.
	ErrPersistence = errors.New("persistence failure")

	// ErrConflict is returned when a concurrent change to the same owner's
	// credentials won the race (unique index, serialization failure).
	ErrConflict = errors.New("concurrent credential change")

	// QR code lifecycle errors.
	ErrActiveCodeExists  = errors.New("active qr code already exists")
	ErrMissingQRToken    = errors.New("missing qr token")
	ErrInvalidQRToken    = errors.New("invalid or expired qr token")
	ErrAccountInactive   = errors.New("user account is not active")
	ErrQRLoginNotAllowed = errors.New("qr login is not available for this role")

	// Auth errors (invalid or malformed session token).
	ErrInvalidToken = errors.New("invalid token")
)
