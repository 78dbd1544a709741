package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/dep-queue-worker/internal/worker/domain"
	"github.com/cuongbtq/dep-queue-worker/internal/worker/sandbox"
	amqp "github.com/rabbitmq/amqp091-go"
)

const failedEnvPayload = "2023.1\n/i/7/env/07080106/0305/070801060305_12.env\n/i/7/slp/07080106/0305/070801060305_12.slp\n"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAcknowledger stands in for the amqp channel behind a delivery
type fakeAcknowledger struct {
	mu      sync.Mutex
	acks    []uint64
	nacks   int
	rejects int
	ackErr  error
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ackErr != nil {
		return f.ackErr
	}
	f.acks = append(f.acks, tag)
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks++
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejects++
	return nil
}

func (f *fakeAcknowledger) Acked() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.acks...)
}

// fakeSession delivers whatever the test pushes into deliveries
type fakeSession struct {
	deliveries chan amqp.Delivery
	closes     chan *amqp.Error
	consumeErr error
	closed     atomic.Bool
	tag        atomic.Value
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		deliveries: make(chan amqp.Delivery, 16),
		closes:     make(chan *amqp.Error, 1),
	}
}

func (s *fakeSession) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	s.tag.Store(consumerTag)
	return s.deliveries, nil
}

func (s *fakeSession) NotifyClose() <-chan *amqp.Error {
	return s.closes
}

// dropByBroker mimics a channel close sent by the server
func (s *fakeSession) dropByBroker(reason *amqp.Error) {
	s.closes <- reason
	close(s.closes)
	close(s.deliveries)
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeSession) push(ack amqp.Acknowledger, tag uint64, body string) {
	s.deliveries <- amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		Body:         []byte(body),
	}
}

func dialerFor(s *fakeSession) Dialer {
	return func(context.Context, int) (Session, error) {
		return s, nil
	}
}

// fakeExecutor returns a canned result
type fakeExecutor struct {
	result *sandbox.Result
	err    error
	calls  atomic.Int32
}

func (e *fakeExecutor) Execute(ctx context.Context, payload []byte, timeout time.Duration) (*sandbox.Result, error) {
	e.calls.Add(1)
	return e.result, e.err
}

// fakeReporter records calls instead of touching the filesystem
type fakeReporter struct {
	path  string
	err   error
	calls atomic.Int32
}

func (r *fakeReporter) Report(payload domain.Payload, stdout, stderr []byte) (string, error) {
	r.calls.Add(1)
	if _, ok := domain.ParseRunKey(payload); !ok {
		return "", nil
	}
	return r.path, r.err
}

func (r *fakeReporter) Host() string {
	return "fake-host"
}

// fakeRecorder collects ledger rows
type fakeRecorder struct {
	mu      sync.Mutex
	records []*domain.FailureRecord
	err     error
}

func (r *fakeRecorder) RecordFailure(ctx context.Context, rec *domain.FailureRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return r.err
}

// handlerFunc adapts a function to JobHandler
type handlerFunc func(ctx context.Context, job *domain.Job) error

func (f handlerFunc) Handle(ctx context.Context, job *domain.Job) error {
	return f(ctx, job)
}

// runnerFunc adapts a function to Runner
type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error {
	return f(ctx)
}
