package session

import "errors"

var (
	// ErrSessionNotFound is returned for ids the registry does not hold.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAlreadyTerminal is returned when a session already reached a
	// terminal status. The stored state is left unchanged.
	ErrAlreadyTerminal = errors.New("session already terminal")

	// ErrNotRunning is returned when a result is appended outside Running.
	ErrNotRunning = errors.New("session not running")

	// ErrPipelineOverflow is returned when a result would exceed the pipeline length.
	ErrPipelineOverflow = errors.New("results exceed pipeline length")

	// ErrInvalidTerminal is returned for a terminal payload that does not
	// match its status (no report on completion, no failure on failure).
	ErrInvalidTerminal = errors.New("invalid terminal transition")

	// ErrSessionActive is returned when deleting a session that has not finished.
	ErrSessionActive = errors.New("session still active")
)
