// Package consumer feeds events from a Kafka topic into the ingestion service.
package consumer

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	verrors "github.com/vitalog/vitalog/internal/errors"
	"github.com/vitalog/vitalog/internal/ingest"
	"github.com/vitalog/vitalog/internal/logging"
	"github.com/vitalog/vitalog/internal/metrics"
)

// Message results recorded in metrics.
const (
	ResultIngested = "ingested"
	ResultRejected = "rejected"
	ResultPartial  = "partial_write"
	ResultFailed   = "failed"
)

// Config holds the Kafka consumer configuration.
type Config struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`

	// PollTimeout bounds each fetch so cancellation is noticed promptly.
	PollTimeout time.Duration `json:"poll_timeout" yaml:"poll_timeout"`

	// MaxAttempts is how many times a retryable ingest failure is tried
	// before the message is given up and committed.
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	MinBackoff  time.Duration `json:"min_backoff" yaml:"min_backoff"`
	MaxBackoff  time.Duration `json:"max_backoff" yaml:"max_backoff"`
}

// DefaultConfig returns a disabled consumer with sensible retry settings.
func DefaultConfig() Config {
	return Config{
		Topic:       "metric-events",
		GroupID:     "vitalog",
		PollTimeout: 5 * time.Second,
		MaxAttempts: 5,
		MinBackoff:  200 * time.Millisecond,
		MaxBackoff:  10 * time.Second,
	}
}

// Submitter is the part of the ingestion service the consumer needs.
type Submitter interface {
	Submit(ctx context.Context, req ingest.Request) (*ingest.Receipt, error)
}

// messageReader is the subset of *kafka.Reader used by the consumer.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads event messages and submits them for ingestion.
type Consumer struct {
	cfg     Config
	reader  messageReader
	ingest  Submitter
	logger  *bolt.Logger
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures a Consumer.
type Option func(*Consumer)

func WithLogger(l *bolt.Logger) Option {
	return func(c *Consumer) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Consumer) { c.metrics = m }
}

// New creates a consumer-group reader for cfg.Topic.
func New(cfg Config, svc Submitter, opts ...Option) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("consumer group must not be empty")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newConsumer(cfg, reader, svc, opts...), nil
}

func newConsumer(cfg Config, reader messageReader, svc Submitter, opts ...Option) *Consumer {
	def := DefaultConfig()
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = def.MinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = cfg.MinBackoff
	}

	c := &Consumer{
		cfg:    cfg,
		reader: reader,
		ingest: svc,
		logger: logging.Nop(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close shuts down the underlying reader.
func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Run consumes until ctx is cancelled or the reader is closed.
func (c *Consumer) Run(ctx context.Context) error {
	instance := uuid.NewString()
	logging.With(c.logger.Info(), logging.Component("consumer"), logging.Str("topic", c.cfg.Topic),
		logging.Str("group", c.cfg.GroupID), logging.Str("brokers", strings.Join(c.cfg.Brokers, ",")),
		logging.Str("instance", instance)).Msg("consumer started")
	defer logging.With(c.logger.Info(), logging.Component("consumer"), logging.Str("instance", instance)).Msg("consumer stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, kafka.ErrGroupClosed) {
				return nil
			}
			logging.With(c.logger.Error(), logging.Component("consumer"), logging.Error(err)).Msg("fetch failed")
			continue
		}

		result := c.handle(ctx, msg)
		c.metrics.ConsumerMessage(result)
		if ctx.Err() != nil && result == ResultFailed {
			// Not committed; the message is redelivered after restart.
			return ctx.Err()
		}

		commitCtx, commitCancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
			if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
				logging.With(c.logger.Error(), logging.Component("consumer"), logging.Error(err)).Msg("commit failed")
			}
		}
		commitCancel()
	}
}

// handle ingests one message. Rejected events and partial writes are not
// retried: the first is invalid and the second is already in the event log.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) string {
	req, err := ingest.DecodeRequest(msg.Value)
	if err != nil {
		c.logRejected(msg, err)
		return ResultRejected
	}

	backoff := c.cfg.MinBackoff
	for attempt := 1; ; attempt++ {
		receipt, err := c.ingest.Submit(ctx, req)
		switch {
		case err == nil:
			logging.With(c.logger.Debug(), logging.Component("consumer"), logging.UserID(req.UserID),
				logging.EventID(receipt.EventID), logging.Int64("offset", msg.Offset)).Msg("message ingested")
			return ResultIngested
		case verrors.GetCategory(err) == verrors.ErrCategoryValidation:
			c.logRejected(msg, err)
			return ResultRejected
		case errors.Is(err, verrors.ErrPartialWrite):
			logging.With(c.logger.Warn(), logging.Component("consumer"), logging.UserID(req.UserID),
				logging.Int64("offset", msg.Offset), logging.Error(err)).Msg("partial write; day needs repair")
			return ResultPartial
		case !verrors.IsRetryable(err) || attempt >= c.cfg.MaxAttempts:
			logging.With(c.logger.Error(), logging.Component("consumer"), logging.UserID(req.UserID),
				logging.Int64("offset", msg.Offset), logging.Count("attempts", attempt), logging.Error(err)).Msg("giving up on message")
			return ResultFailed
		}

		logging.With(c.logger.Warn(), logging.Component("consumer"), logging.Int64("offset", msg.Offset),
			logging.Count("attempt", attempt), logging.Error(err)).Msg("ingest failed; retrying")
		if err := c.sleep(ctx, backoff); err != nil {
			return ResultFailed
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

func (c *Consumer) logRejected(msg kafka.Message, err error) {
	logging.With(c.logger.Warn(), logging.Component("consumer"), logging.Int64("offset", msg.Offset),
		logging.Count("partition", msg.Partition), logging.Str("topic", msg.Topic), logging.Error(err)).Msg("message rejected")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
