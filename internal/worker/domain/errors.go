package domain

import "errors"

var (
	// ErrSandboxStart is returned when the simulation binary cannot be started
	ErrSandboxStart = errors.New("failed to start simulation binary")

	// ErrDeliveriesClosed is returned when the broker closes the delivery channel
	ErrDeliveriesClosed = errors.New("delivery channel closed")

	// ErrHandlerPanic wraps a panic recovered from a job handler
	ErrHandlerPanic = errors.New("job handler panicked")
)
