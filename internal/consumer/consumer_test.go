package consumer

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/vitalog/vitalog/internal/errors"
	"github.com/vitalog/vitalog/internal/ingest"
	"github.com/vitalog/vitalog/internal/metrics"
	"github.com/vitalog/vitalog/pkg/types"
)

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.pending[0]
	r.pending = r.pending[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

// scriptedSubmitter returns the queued errors in order, then succeeds.
type scriptedSubmitter struct {
	mu    sync.Mutex
	errs  []error
	calls []ingest.Request
}

func (s *scriptedSubmitter) Submit(ctx context.Context, req ingest.Request) (*ingest.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &ingest.Receipt{EventID: "evt", Date: types.MustParseDate("2026-03-01")}, nil
}

func message(offset int64, body string) kafka.Message {
	return kafka.Message{Topic: "metric-events", Offset: offset, Value: []byte(body)}
}

func newTestConsumer(reader *fakeReader, sub *scriptedSubmitter) (*Consumer, *[]time.Duration) {
	var slept []time.Duration
	c := newConsumer(Config{
		Topic:       "metric-events",
		GroupID:     "test",
		MaxAttempts: 3,
		MinBackoff:  10 * time.Millisecond,
		MaxBackoff:  15 * time.Millisecond,
	}, reader, sub, WithMetrics(metrics.New()))
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return c, &slept
}

func TestRun_IngestsAndCommits(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{
		message(1, `{"user_id":7,"kind":"steps","value":9000}`),
		message(2, `{"user_id":7,"kind":"sleep","value":"7h30m"}`),
	}}
	sub := &scriptedSubmitter{}
	c, slept := newTestConsumer(reader, sub)

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, []int64{1, 2}, reader.committed)
	require.Len(t, sub.calls, 2)
	assert.Equal(t, int64(7), sub.calls[0].UserID)
	assert.Equal(t, "sleep", sub.calls[1].Kind)
	assert.Empty(t, *slept)
}

func TestRun_RejectedMessagesAreCommitted(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{
		message(1, `not json`),
		message(2, `{"user_id":7,"kind":"mood","value":9}`),
	}}
	sub := &scriptedSubmitter{errs: []error{verrors.NewValidationError(verrors.CodeInvalidValue, "mood out of range")}}
	c, slept := newTestConsumer(reader, sub)

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, []int64{1, 2}, reader.committed)
	assert.Len(t, sub.calls, 1, "malformed payload never reaches ingest")
	assert.Empty(t, *slept)
}

func TestRun_PartialWriteIsNotRetried(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{message(5, `{"user_id":1,"kind":"steps","value":1}`)}}
	sub := &scriptedSubmitter{errs: []error{verrors.NewPartialWriteError("evt", "2026-03-01", errors.New("disk full"))}}
	c, _ := newTestConsumer(reader, sub)

	require.NoError(t, c.Run(context.Background()))

	assert.Len(t, sub.calls, 1)
	assert.Equal(t, []int64{5}, reader.committed)
}

func TestRun_RetriesAppendFailures(t *testing.T) {
	appendErr := verrors.NewStorageError(verrors.CodeAppendFailed, "failed to append event", errors.New("locked"))
	reader := &fakeReader{pending: []kafka.Message{message(9, `{"user_id":1,"kind":"steps","value":1}`)}}
	sub := &scriptedSubmitter{errs: []error{appendErr, appendErr}}
	c, slept := newTestConsumer(reader, sub)

	require.NoError(t, c.Run(context.Background()))

	assert.Len(t, sub.calls, 3)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 15 * time.Millisecond}, *slept)
	assert.Equal(t, []int64{9}, reader.committed)
}

func TestRun_GivesUpAfterMaxAttempts(t *testing.T) {
	appendErr := verrors.NewStorageError(verrors.CodeAppendFailed, "failed to append event", errors.New("locked"))
	reader := &fakeReader{pending: []kafka.Message{message(3, `{"user_id":1,"kind":"steps","value":1}`)}}
	sub := &scriptedSubmitter{errs: []error{appendErr, appendErr, appendErr, appendErr}}
	c, _ := newTestConsumer(reader, sub)

	require.NoError(t, c.Run(context.Background()))

	assert.Len(t, sub.calls, 3)
	assert.Equal(t, []int64{3}, reader.committed)
}

func TestRun_CancelledDuringRetryDoesNotCommit(t *testing.T) {
	appendErr := verrors.NewStorageError(verrors.CodeAppendFailed, "failed to append event", errors.New("locked"))
	reader := &fakeReader{pending: []kafka.Message{message(4, `{"user_id":1,"kind":"steps","value":1}`)}}
	sub := &scriptedSubmitter{errs: []error{appendErr}}
	c, _ := newTestConsumer(reader, sub)

	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reader.committed)
}

func TestNew_ValidatesConfig(t *testing.T) {
	_, err := New(Config{Topic: "t", GroupID: "g"}, &scriptedSubmitter{})
	assert.Error(t, err)
	_, err = New(Config{Brokers: []string{"localhost:9092"}, GroupID: "g"}, &scriptedSubmitter{})
	assert.Error(t, err)
	_, err = New(Config{Brokers: []string{"localhost:9092"}, Topic: "t"}, &scriptedSubmitter{})
	assert.Error(t, err)

	c, err := New(Config{Brokers: []string{"localhost:9092"}, Topic: "t", GroupID: "g"}, &scriptedSubmitter{})
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}
