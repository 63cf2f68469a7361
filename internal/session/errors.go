package session

import "errors"

// Sentinel errors matching the error-kind taxonomy in spec §7.
var (
	ErrInvalidArgument = errors.New("invalid_argument")
	ErrSessionNotFound = errors.New("session_not_found")
	ErrAlreadyExists   = errors.New("session already exists")
	ErrEngineFault     = errors.New("engine_fault")
)
