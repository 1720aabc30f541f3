package session

import (
	"errors"
	"fmt"

	"smash-arena/internal/anticheat"
)

var (
	// ErrInvalidConfiguration rejects a match that cannot start as configured.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrRejectedInput marks an inbound message the validator refused.
	ErrRejectedInput = errors.New("rejected input")
	// ErrDesyncInput marks an input whose frame is outside the accepted window.
	ErrDesyncInput = errors.New("desync input")
	// ErrSessionNotActive rejects work on a session that is not running.
	ErrSessionNotActive = errors.New("session not active")
	// ErrUnknownPlayer rejects messages from players outside the roster.
	ErrUnknownPlayer = errors.New("unknown player")
	// ErrSessionNotFound is returned by the registry for unknown ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRegistryFull is returned when the session cap is reached.
	ErrRegistryFull = errors.New("session limit reached")
)

// RejectedError carries the validator's verdict for a refused message.
type RejectedError struct {
	PlayerID   string
	Category   anticheat.Category
	Reason     string
	Escalation anticheat.Tier
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected %s message from %s: %s", e.Category, e.PlayerID, e.Reason)
}

// Unwrap lets errors.Is match ErrRejectedInput.
func (e *RejectedError) Unwrap() error { return ErrRejectedInput }

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}
