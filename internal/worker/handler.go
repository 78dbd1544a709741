package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/dep-queue-worker/internal/metrics"
	"github.com/cuongbtq/dep-queue-worker/internal/worker/domain"
	"github.com/cuongbtq/dep-queue-worker/internal/worker/sandbox"
)

// JobHandler processes one delivery. A nil return means the delivery was
// handled and may be acknowledged; any error leaves it unacknowledged and
// ends the consumer.
type JobHandler interface {
	Handle(ctx context.Context, job *domain.Job) error
}

// Executor runs the simulation binary
type Executor interface {
	Execute(ctx context.Context, payload []byte, timeout time.Duration) (*sandbox.Result, error)
}

// FailureReporter writes failure artifacts
type FailureReporter interface {
	Report(payload domain.Payload, stdout, stderr []byte) (string, error)
	Host() string
}

// FailureRecorder stores a ledger row for each written artifact
type FailureRecorder interface {
	RecordFailure(ctx context.Context, rec *domain.FailureRecord) error
}

// HandlerDeps holds everything the run handler needs
type HandlerDeps struct {
	Executor Executor
	Reporter FailureReporter
	Recorder FailureRecorder // optional
	Timeout  time.Duration
	Logger   *slog.Logger
}

// NewHandler returns the handler for mode
func NewHandler(mode domain.Mode, deps *HandlerDeps) (JobHandler, error) {
	switch mode {
	case domain.ModeRun:
		return NewRunHandler(deps), nil
	case domain.ModeDrain:
		return DrainHandler{}, nil
	default:
		return nil, fmt.Errorf("unknown worker mode: %s", mode)
	}
}

// DrainHandler discards every job so the consumer only acknowledges
type DrainHandler struct{}

// Handle implements JobHandler
func (DrainHandler) Handle(context.Context, *domain.Job) error {
	return nil
}

// RunHandler executes the simulation and records failures
type RunHandler struct {
	executor Executor
	reporter FailureReporter
	recorder FailureRecorder
	timeout  time.Duration
	logger   *slog.Logger
}

// NewRunHandler creates a new RunHandler
func NewRunHandler(deps *HandlerDeps) *RunHandler {
	return &RunHandler{
		executor: deps.Executor,
		reporter: deps.Reporter,
		recorder: deps.Recorder,
		timeout:  deps.Timeout,
		logger:   deps.Logger,
	}
}

// ClassifyResult decides the outcome of a run. A run killed at the time
// limit is a failure whatever its partial output ends with.
func ClassifyResult(result *sandbox.Result) domain.Outcome {
	if result.TimedOut {
		return domain.OutcomeFailure
	}
	return domain.Classify(result.Stdout)
}

// Handle implements JobHandler
func (h *RunHandler) Handle(ctx context.Context, job *domain.Job) error {
	result, err := h.executor.Execute(ctx, job.Payload, h.timeout)
	if err != nil {
		return fmt.Errorf("failed to execute simulation: %w", err)
	}

	metrics.RunDuration.Observe(result.Duration.Seconds())
	if result.TimedOut {
		metrics.RunTimeoutsTotal.Inc()
	}

	outcome := ClassifyResult(result)
	metrics.RunOutcomesTotal.WithLabelValues(outcome.String()).Inc()

	if outcome == domain.OutcomeSuccess {
		h.logger.Debug("Simulation succeeded",
			slog.Int("slot", job.Slot),
			slog.Uint64("delivery_tag", job.DeliveryTag),
			slog.Duration("duration", result.Duration),
		)
		return nil
	}

	path, err := h.reporter.Report(job.Payload, result.Stdout, result.Stderr)
	if err != nil {
		return fmt.Errorf("failed to report simulation failure: %w", err)
	}
	if path == "" {
		return nil
	}
	metrics.ArtifactsWrittenTotal.Inc()

	key, _ := domain.ParseRunKey(job.Payload)
	h.logger.Info("Simulation failed",
		slog.Int("slot", job.Slot),
		slog.Uint64("delivery_tag", job.DeliveryTag),
		slog.Bool("timed_out", result.TimedOut),
		slog.Int("exit_code", result.ExitCode),
		slog.String("env_path", key.EnvPath()),
		slog.String("error_path", path),
	)

	if h.recorder != nil {
		rec := domain.NewFailureRecord(key, h.reporter.Host(), path, result.TimedOut, result.ExitCode, time.Now())
		// the artifact is already on disk, so a ledger outage must not block the ack
		if err := h.recorder.RecordFailure(ctx, rec); err != nil {
			h.logger.Warn("Failed to record failure in ledger",
				slog.String("error_path", path),
				slog.Any("error", err),
			)
		}
	}

	return nil
}
