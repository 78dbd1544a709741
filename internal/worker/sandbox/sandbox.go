package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/cuongbtq/dep-queue-worker/internal/worker/domain"
)

const defaultKillGrace = 5 * time.Second

// Config holds sandbox configuration
type Config struct {
	Binary    string
	Args      []string
	Timeout   time.Duration
	KillGrace time.Duration // how long to wait for pipes after the child is killed
}

// Result holds everything captured from one run of the binary
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Sandbox runs the simulation binary with a hard wall-clock limit
type Sandbox struct {
	binary    string
	args      []string
	timeout   time.Duration
	killGrace time.Duration
	logger    *slog.Logger
}

// New creates a new Sandbox, filling in defaults for unset fields
func New(cfg *Config, logger *slog.Logger) *Sandbox {
	s := &Sandbox{
		binary:    cfg.Binary,
		args:      cfg.Args,
		timeout:   cfg.Timeout,
		killGrace: cfg.KillGrace,
		logger:    logger,
	}
	if s.binary == "" {
		s.binary = domain.DefaultBinary
	}
	if s.timeout <= 0 {
		s.timeout = domain.DefaultJobTimeout
	}
	if s.killGrace <= 0 {
		s.killGrace = defaultKillGrace
	}
	return s
}

// Timeout returns the configured default run timeout
func (s *Sandbox) Timeout() time.Duration {
	return s.timeout
}

// Execute feeds payload to a fresh child process on stdin and waits for it.
//
// A timeout is not an error: the result comes back with TimedOut set.
// Errors are returned only when the binary cannot be started, when ctx is
// canceled by the caller, or when waiting fails for a reason other than the
// child's own exit status.
func (s *Sandbox) Execute(ctx context.Context, payload []byte, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = s.timeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, s.binary, s.args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = s.killGrace

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSandboxStart, s.binary, err)
	}

	// Wait is reached on every path after a successful Start so the child
	// is always reaped.
	waitErr := cmd.Wait()

	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctx.Err() != nil {
		return result, fmt.Errorf("simulation interrupted: %w", ctx.Err())
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		s.logger.Warn("Simulation timed out",
			slog.String("binary", s.binary),
			slog.Duration("timeout", timeout),
			slog.Int("stdout_size", len(result.Stdout)),
		)
		return result, nil
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
			return result, fmt.Errorf("failed to wait for simulation binary: %w", waitErr)
		}
	}

	s.logger.Debug("Simulation finished",
		slog.String("binary", s.binary),
		slog.Int("exit_code", result.ExitCode),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}
