package session

import "errors"

var (
	// ErrInvalidMode is returned by RequestStart for an unknown mode id.
	ErrInvalidMode = errors.New("invalid call mode")
	// ErrAlreadyActive is returned by RequestStart when a call is not idle.
	ErrAlreadyActive = errors.New("call already active")
	// ErrTransportFailure wraps failures reported by the call client.
	ErrTransportFailure = errors.New("call transport failure")
)
