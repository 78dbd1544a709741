package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/dep-queue-worker/internal/metrics"
	"github.com/cuongbtq/dep-queue-worker/internal/worker/domain"
)

// Runner is anything the supervisor can run in a pool slot
type Runner interface {
	Run(ctx context.Context) error
}

// SupervisorConfig holds supervisor configuration
type SupervisorConfig struct {
	Slots       int
	Cooldown    time.Duration
	NewConsumer func(slot int) Runner
	Logger      *slog.Logger
}

// Status is a snapshot of the supervisor for the ops endpoint
type Status struct {
	Slots           int       `json:"slots"`
	Generation      int       `json:"generation"`
	GenerationID    string    `json:"generation_id"`
	ActiveConsumers int       `json:"active_consumers"`
	Restarts        int       `json:"restarts"`
	LastExitError   string    `json:"last_exit_error,omitempty"`
	LastExitAt      time.Time `json:"last_exit_at,omitzero"`
	StartedAt       time.Time `json:"started_at"`
}

// Supervisor keeps a pool of consumers running, restarting the whole pool
// after a fixed cooldown whenever every consumer in it has returned.
type Supervisor struct {
	slots       int
	cooldown    time.Duration
	newConsumer func(slot int) Runner
	logger      *slog.Logger

	active atomic.Int32

	mu     sync.Mutex
	status Status
}

// NewSupervisor creates a new Supervisor
func NewSupervisor(cfg *SupervisorConfig) *Supervisor {
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = domain.DefaultRestartCooldown
	}

	return &Supervisor{
		slots:       cfg.Slots,
		cooldown:    cooldown,
		newConsumer: cfg.NewConsumer,
		logger:      cfg.Logger,
		status: Status{
			Slots:     cfg.Slots,
			StartedAt: time.Now().UTC(),
		},
	}
}

// Run starts the pool and restarts it forever. It returns nil only once
// ctx is canceled, which is the single way to stop the worker.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := s.runPool(ctx)

		if ctx.Err() != nil {
			s.logger.Info("Consumer pool stopped on shutdown")
			return nil
		}

		s.recordExit(err)
		metrics.PoolRestartsTotal.Inc()

		switch {
		case err == nil:
			s.logger.Warn("Consumer pool exited cleanly, sleeping before restart",
				slog.Duration("cooldown", s.cooldown),
			)
		case IsFatal(err):
			s.logger.Error("Consumer pool exited on local failure, sleeping before restart",
				slog.Duration("cooldown", s.cooldown),
				slog.Any("error", err),
			)
		default:
			s.logger.Error("Consumer pool exited with error, sleeping before restart",
				slog.Duration("cooldown", s.cooldown),
				slog.Any("error", err),
			)
		}

		timer := time.NewTimer(s.cooldown)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Shutdown requested during cooldown")
			return nil
		case <-timer.C:
		}
	}
}

// Status returns a snapshot of the current pool state
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status
	st.ActiveConsumers = int(s.active.Load())
	return st
}

func (s *Supervisor) recordExit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Restarts++
	s.status.LastExitAt = time.Now().UTC()
	s.status.LastExitError = ""
	if err != nil {
		s.status.LastExitError = err.Error()
	}
}
