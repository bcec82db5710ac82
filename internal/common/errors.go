// Package common defines shared constants and sentinel errors used across
// the sync client and the reference sync server. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal      = errors.New("internal error")
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrVersionConflict = errors.New("version conflict")
	ErrValidation      = errors.New("validation error")

	// ErrSyncInProgress is returned to explicit sync callers when a round is
	// already running; the trigger is coalesced into the running round.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrReconnectRequired is surfaced to the user when credentials could not
	// be refreshed after the server rejected them.
	ErrReconnectRequired = errors.New("reconnect required")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)
