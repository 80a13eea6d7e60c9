// Package kafka runs the consume-process-produce loop on top of
// segmentio/kafka-go. An Engine owns a fixed number of processors; each
// processor is a consumer-group member that handles its messages one at a
// time, in offset order, and commits a message only after its handler
// returned successfully.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is one consumed record. A Message with no value is a tombstone.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
}

// Tombstone reports whether the message is a delete marker for its key.
func (m Message) Tombstone() bool {
	return len(m.Value) == 0
}

// Handler processes one message. A returned error is fatal for the
// processor: the message is not committed and the engine stops.
type Handler func(ctx context.Context, msg Message) error

// Reader is the consumer-group client a processor pulls from. *kafka.Reader
// satisfies it.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	defaultPollTimeout     = 5 * time.Second
	defaultFetchRetryDelay = time.Second
)

// processor drives one Reader.
type processor struct {
	id      int
	reader  Reader
	handler Handler
	logger  *slog.Logger

	pollTimeout     time.Duration
	fetchRetryDelay time.Duration
	// polling is set once a fetch returns a message or waits a full poll
	// without error, and cleared when a fetch fails.
	polling atomic.Bool
}

func newProcessor(id int, reader Reader, handler Handler) *processor {
	return &processor{
		id:              id,
		reader:          reader,
		handler:         handler,
		logger:          slog.Default().With("component", "kafka-processor", "processor", id),
		pollTimeout:     defaultPollTimeout,
		fetchRetryDelay: defaultFetchRetryDelay,
	}
}

// healthy reports whether the last fetch made progress.
func (p *processor) healthy() bool {
	return p.polling.Load()
}

// run fetches and handles messages until ctx is cancelled or the handler
// fails. It returns nil on cancellation. Handlers run on a context that is
// not cancelled with ctx, so an in-flight message always finishes.
func (p *processor) run(ctx context.Context) error {
	defer func() {
		p.polling.Store(false)
		if err := p.reader.Close(); err != nil {
			p.logger.Warn("failed to close reader", "error", err)
		}
	}()
	p.logger.Info("processor started")

	for {
		fetchCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
		km, err := p.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("processor stopping", "reason", ctx.Err())
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				// Idle partitions: nothing to fetch within one poll.
				p.polling.Store(true)
				continue
			}
			p.polling.Store(false)
			p.logger.Error("failed to fetch message", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.fetchRetryDelay):
			}
			continue
		}
		p.polling.Store(true)

		msg := Message{
			Topic:     km.Topic,
			Partition: km.Partition,
			Offset:    km.Offset,
			Key:       km.Key,
			Value:     km.Value,
			Time:      km.Time,
		}
		p.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"value_size", len(msg.Value),
		)

		if err := p.handle(context.WithoutCancel(ctx), msg); err != nil {
			p.logger.Error("failed to process message, stopping processor",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			return fmt.Errorf("processor %d: partition %d offset %d: %w", p.id, msg.Partition, msg.Offset, err)
		}

		if err := p.reader.CommitMessages(context.WithoutCancel(ctx), km); err != nil {
			p.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// ErrHandlerPanic wraps a panic raised by a Handler.
var ErrHandlerPanic = errors.New("handler panicked")

func (p *processor) handle(ctx context.Context, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("handler panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return p.handler(ctx, msg)
}
