package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/dep-queue-worker/internal/metrics"
	"github.com/cuongbtq/dep-queue-worker/internal/worker/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Session is one private connection+channel to the work queue.
// The queue is declared and QoS applied before a Session is returned.
type Session interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	NotifyClose() <-chan *amqp.Error
	Close() error
}

// Dialer opens a new Session for a consumer slot
type Dialer func(ctx context.Context, slot int) (Session, error)

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Slot     int
	Mode     domain.Mode
	Hostname string
	Dial     Dialer
	Handler  JobHandler
	Logger   *slog.Logger
}

// Consumer pulls deliveries from its own session and processes them one at a time
type Consumer struct {
	slot    int
	mode    domain.Mode
	tag     string
	dial    Dialer
	handler JobHandler
	logger  *slog.Logger
}

// NewConsumer creates a new Consumer
func NewConsumer(cfg *ConsumerConfig) *Consumer {
	host := cfg.Hostname
	if host == "" {
		host = "worker"
	}

	return &Consumer{
		slot:    cfg.Slot,
		mode:    cfg.Mode,
		tag:     fmt.Sprintf("dep-%s-%d-%s", host, cfg.Slot, uuid.NewString()[:8]),
		dial:    cfg.Dial,
		handler: cfg.Handler,
		logger:  cfg.Logger.With(slog.Int("slot", cfg.Slot)),
	}
}

// Tag returns the consumer tag announced to the broker
func (c *Consumer) Tag() string {
	return c.tag
}

// Run connects and consumes until the session breaks, a job fails fatally,
// or ctx is canceled. Cancellation is a clean stop and returns nil.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Starting consumer",
		slog.String("mode", c.mode.String()),
		slog.String("consumer_tag", c.tag),
	)

	session, err := c.dial(ctx, c.slot)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		metrics.ConsumerExitsTotal.WithLabelValues("connect").Inc()
		return fmt.Errorf("consumer %d: failed to connect: %w", c.slot, err)
	}
	defer session.Close()

	deliveries, err := session.Consume(c.tag)
	if err != nil {
		metrics.ConsumerExitsTotal.WithLabelValues("connect").Inc()
		return fmt.Errorf("consumer %d: %w", c.slot, err)
	}

	metrics.ActiveConsumers.Inc()
	defer metrics.ActiveConsumers.Dec()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer stopping - context canceled")
			metrics.ConsumerExitsTotal.WithLabelValues("shutdown").Inc()
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				metrics.ConsumerExitsTotal.WithLabelValues("closed").Inc()
				return c.closedError(session)
			}

			if err := c.process(ctx, delivery); err != nil {
				if ctx.Err() != nil {
					c.logger.Info("Consumer stopping - job interrupted, leaving it unacknowledged",
						slog.Uint64("delivery_tag", delivery.DeliveryTag),
					)
					metrics.ConsumerExitsTotal.WithLabelValues("shutdown").Inc()
					return nil
				}
				metrics.ConsumerExitsTotal.WithLabelValues("error").Inc()
				return fmt.Errorf("consumer %d: %w", c.slot, err)
			}
		}
	}
}

// closedError reports why the broker ended the session. The channel close
// notification is sent before deliveries are closed, so it is already
// buffered when there is one.
func (c *Consumer) closedError(session Session) error {
	select {
	case reason, ok := <-session.NotifyClose():
		if ok && reason != nil {
			c.logger.Warn("RabbitMQ channel closed by broker",
				slog.Int("code", reason.Code),
				slog.String("reason", reason.Reason),
				slog.Bool("server", reason.Server),
			)
			return fmt.Errorf("consumer %d: %w: %v", c.slot, domain.ErrDeliveriesClosed, reason)
		}
	default:
	}

	c.logger.Warn("RabbitMQ delivery channel closed")
	return fmt.Errorf("consumer %d: %w", c.slot, domain.ErrDeliveriesClosed)
}

// process runs the handler and acknowledges exactly once on success
func (c *Consumer) process(ctx context.Context, delivery amqp.Delivery) error {
	job := &domain.Job{
		Payload:     domain.Payload(delivery.Body),
		DeliveryTag: delivery.DeliveryTag,
		Redelivered: delivery.Redelivered,
		Slot:        c.slot,
	}

	metrics.JobsReceivedTotal.WithLabelValues(c.mode.String()).Inc()
	c.logger.Debug("Consumer received job",
		slog.Uint64("delivery_tag", job.DeliveryTag),
		slog.Bool("redelivered", job.Redelivered),
		slog.Int("body_size", len(job.Payload)),
	)

	if err := c.handle(ctx, job); err != nil {
		c.logger.Error("Job processing failed",
			slog.Uint64("delivery_tag", job.DeliveryTag),
			slog.Any("error", err),
		)
		return err
	}

	if err := delivery.Ack(false); err != nil {
		return fmt.Errorf("failed to ack delivery %d: %w", delivery.DeliveryTag, err)
	}
	metrics.JobsAckedTotal.Inc()

	return nil
}

func (c *Consumer) handle(ctx context.Context, job *domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", domain.ErrHandlerPanic, r)
		}
	}()
	return c.handler.Handle(ctx, job)
}

// IsFatal reports whether err means the local host cannot run jobs at all,
// as opposed to a broker-side disconnect
func IsFatal(err error) bool {
	return errors.Is(err, domain.ErrSandboxStart) || errors.Is(err, domain.ErrHandlerPanic)
}
