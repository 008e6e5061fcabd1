// Package repository implements MySQL persistence for users and refresh
// tokens.  Sentinel errors let handlers map storage outcomes to stable
// HTTP responses without inspecting driver errors.
package repository

import "errors"

var (
	// ErrInvalidRefresh covers not-found, expired and already-revoked
	// refresh tokens alike.  The three cases are deliberately
	// undifferentiated so callers cannot leak which one applied.
	ErrInvalidRefresh = errors.New("invalid refresh token")

	// ErrUserNotFound is returned when a token references a user deleted
	// out-of-band.
	ErrUserNotFound = errors.New("user not found")
)
