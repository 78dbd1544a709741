package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/dep-queue-worker/internal/metrics"
	"github.com/cuongbtq/dep-queue-worker/internal/worker/domain"
	"github.com/cuongbtq/dep-queue-worker/internal/worker/sandbox"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyResult(t *testing.T) {
	tests := []struct {
		name     string
		result   *sandbox.Result
		expected domain.Outcome
	}{
		{
			name:     "marker present",
			result:   &sandbox.Result{Stdout: []byte("WEPP COMPLETED SUCCESSFULLY\n")},
			expected: domain.OutcomeSuccess,
		},
		{
			name:     "marker missing",
			result:   &sandbox.Result{Stdout: []byte("error: timeout")},
			expected: domain.OutcomeFailure,
		},
		{
			name:     "timed out even though partial output ends in marker",
			result:   &sandbox.Result{Stdout: []byte("WEPP COMPLETED SUCCESSFULLY\n"), TimedOut: true},
			expected: domain.OutcomeFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyResult(tt.result))
		})
	}
}

func newRunHandlerForTest(exec Executor, rep FailureReporter, rec FailureRecorder) *RunHandler {
	deps := &HandlerDeps{
		Executor: exec,
		Reporter: rep,
		Timeout:  time.Second,
		Logger:   discardLogger(),
	}
	if rec != nil {
		deps.Recorder = rec
	}
	return NewRunHandler(deps)
}

func TestRunHandler_Success(t *testing.T) {
	exec := &fakeExecutor{result: &sandbox.Result{Stdout: []byte("ok SUCCESSFULLY\n")}}
	rep := &fakeReporter{path: "/i/x.error"}
	rec := &fakeRecorder{}

	err := newRunHandlerForTest(exec, rep, rec).Handle(context.Background(), &domain.Job{Payload: domain.Payload(failedEnvPayload)})

	require.NoError(t, err)
	assert.Equal(t, int32(1), exec.calls.Load())
	assert.Equal(t, int32(0), rep.calls.Load())
	assert.Empty(t, rec.records)
}

func TestRunHandler_FailureIsReportedAndRecorded(t *testing.T) {
	exec := &fakeExecutor{result: &sandbox.Result{Stdout: []byte("bad"), ExitCode: 2}}
	rep := &fakeReporter{path: "/i/7/error/07080106/0305/070801060305_12.error"}
	rec := &fakeRecorder{}

	err := newRunHandlerForTest(exec, rep, rec).Handle(context.Background(), &domain.Job{Payload: domain.Payload(failedEnvPayload)})

	require.NoError(t, err)
	assert.Equal(t, int32(1), rep.calls.Load())
	require.Len(t, rec.records, 1)
	assert.Equal(t, "7", rec.records[0].Scenario)
	assert.Equal(t, "070801060305", rec.records[0].HUC12)
	assert.Equal(t, "12", rec.records[0].FlowpathID)
	assert.Equal(t, "fake-host", rec.records[0].Hostname)
	assert.Equal(t, 2, rec.records[0].ExitCode)
	assert.False(t, rec.records[0].TimedOut)
}

func TestRunHandler_FailureLogNamesEnvAndErrorPaths(t *testing.T) {
	var logs bytes.Buffer
	h := NewRunHandler(&HandlerDeps{
		Executor: &fakeExecutor{result: &sandbox.Result{Stdout: []byte("bad"), ExitCode: 2}},
		Reporter: &fakeReporter{path: "/i/7/error/07080106/0305/070801060305_12.error"},
		Timeout:  time.Second,
		Logger:   slog.New(slog.NewJSONHandler(&logs, nil)),
	})

	require.NoError(t, h.Handle(context.Background(), &domain.Job{Payload: domain.Payload(failedEnvPayload)}))

	assert.Contains(t, logs.String(), `"env_path":"/i/7/env/07080106/0305/070801060305_12.env"`)
	assert.Contains(t, logs.String(), `"error_path":"/i/7/error/07080106/0305/070801060305_12.error"`)
}

func TestRunHandler_TimeoutIsFailure(t *testing.T) {
	exec := &fakeExecutor{result: &sandbox.Result{Stdout: []byte("x SUCCESSFULLY\n"), TimedOut: true, ExitCode: -1}}
	rep := &fakeReporter{path: "/i/x.error"}
	rec := &fakeRecorder{}
	timeouts := testutil.ToFloat64(metrics.RunTimeoutsTotal)
	failures := testutil.ToFloat64(metrics.RunOutcomesTotal.WithLabelValues(domain.OutcomeFailure.String()))

	err := newRunHandlerForTest(exec, rep, rec).Handle(context.Background(), &domain.Job{Payload: domain.Payload(failedEnvPayload)})

	require.NoError(t, err)
	assert.Equal(t, int32(1), rep.calls.Load())
	require.Len(t, rec.records, 1)
	assert.True(t, rec.records[0].TimedOut)
	assert.Equal(t, timeouts+1, testutil.ToFloat64(metrics.RunTimeoutsTotal))
	assert.Equal(t, failures+1, testutil.ToFloat64(metrics.RunOutcomesTotal.WithLabelValues(domain.OutcomeFailure.String())))
}

func TestRunHandler_NoRunKeySkipsLedger(t *testing.T) {
	exec := &fakeExecutor{result: &sandbox.Result{Stdout: []byte("bad")}}
	rep := &fakeReporter{path: "/i/x.error"}
	rec := &fakeRecorder{}

	err := newRunHandlerForTest(exec, rep, rec).Handle(context.Background(), &domain.Job{Payload: domain.Payload("garbage")})

	require.NoError(t, err)
	assert.Equal(t, int32(1), rep.calls.Load())
	assert.Empty(t, rec.records)
}

func TestRunHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		exec     *fakeExecutor
		rep      *fakeReporter
		wantErr  error
		contains string
	}{
		{
			name:     "binary cannot start",
			exec:     &fakeExecutor{err: fmt.Errorf("%w: wepp: not found", domain.ErrSandboxStart)},
			rep:      &fakeReporter{},
			wantErr:  domain.ErrSandboxStart,
			contains: "failed to execute simulation",
		},
		{
			name:     "artifact cannot be written",
			exec:     &fakeExecutor{result: &sandbox.Result{Stdout: []byte("bad")}},
			rep:      &fakeReporter{err: errors.New("read-only file system")},
			contains: "failed to report simulation failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newRunHandlerForTest(tt.exec, tt.rep, nil).Handle(context.Background(), &domain.Job{Payload: domain.Payload(failedEnvPayload)})

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRunHandler_LedgerErrorIsNotFatal(t *testing.T) {
	exec := &fakeExecutor{result: &sandbox.Result{Stdout: []byte("bad")}}
	rep := &fakeReporter{path: "/i/x.error"}
	rec := &fakeRecorder{err: errors.New("connection refused")}

	err := newRunHandlerForTest(exec, rep, rec).Handle(context.Background(), &domain.Job{Payload: domain.Payload(failedEnvPayload)})

	require.NoError(t, err)
	assert.Len(t, rec.records, 1)
}

func TestNewHandler(t *testing.T) {
	deps := &HandlerDeps{Logger: discardLogger()}

	h, err := NewHandler(domain.ModeRun, deps)
	require.NoError(t, err)
	assert.IsType(t, &RunHandler{}, h)

	h, err = NewHandler(domain.ModeDrain, deps)
	require.NoError(t, err)
	assert.IsType(t, DrainHandler{}, h)
	assert.NoError(t, h.Handle(context.Background(), &domain.Job{}))

	h, err = NewHandler(domain.Mode(42), deps)
	require.Error(t, err)
	assert.Nil(t, h)
}
