package domain

import "time"

const (
	// DefaultQueueName is the durable work queue the producers publish runs to
	DefaultQueueName = "dep"

	// DefaultPrefetchCount bounds unacknowledged deliveries per channel
	DefaultPrefetchCount = 100

	// DefaultBinary is the simulation executable looked up on PATH
	DefaultBinary = "wepp"

	// DefaultJobTimeout is the wall-clock limit for one simulation run
	DefaultJobTimeout = 60 * time.Second

	// DefaultRestartCooldown is the pause between pool generations
	DefaultRestartCooldown = 30 * time.Second

	// SuccessMarker is the token the binary prints last on a good run
	SuccessMarker = "SUCCESSFULLY"
)
