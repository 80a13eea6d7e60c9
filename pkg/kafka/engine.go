package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/navikt/aap-inntekt/pkg/config"
	"github.com/navikt/aap-inntekt/pkg/metrics"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

// State is the lifecycle state of an Engine. The numeric values are
// exported as the kafka_engine_state gauge.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StatePendingShutdown
	StateNotRunning
	StateError
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateRunning:
		return "RUNNING"
	case StatePendingShutdown:
		return "PENDING_SHUTDOWN"
	case StateNotRunning:
		return "NOT_RUNNING"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ErrAlreadyStarted is returned by Run on an engine that has already run.
var ErrAlreadyStarted = errors.New("engine already started")

// ReaderFactory creates the Reader for processor id.
type ReaderFactory func(id int) Reader

// NewGroupReaderFactory returns a factory of consumer-group readers on topic.
// All readers share the configured group, so the broker spreads partitions
// across processors and no partition is owned by two of them.
func NewGroupReaderFactory(cfg config.KafkaConfig, topic string) (ReaderFactory, error) {
	tlsCfg, err := TLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
		TLS:       tlsCfg,
	}
	return func(id int) Reader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			Dialer:      dialer,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafka.FirstOffset,
		})
	}, nil
}

// Engine runs a fixed pool of processors over one topic.
type Engine struct {
	threads   int
	newReader ReaderFactory
	handler   Handler
	metrics   *metrics.Metrics
	logger    *slog.Logger

	pollTimeout     time.Duration
	fetchRetryDelay time.Duration

	state      atomic.Int32
	mu         sync.Mutex
	err        error
	processors []*processor
}

func NewEngine(threads int, newReader ReaderFactory, handler Handler, m *metrics.Metrics) *Engine {
	if threads < 1 {
		threads = 1
	}
	e := &Engine{
		threads:   threads,
		newReader: newReader,
		handler:   handler,
		metrics:   m,
		logger:    slog.Default().With("component", "kafka-engine"),

		pollTimeout:     defaultPollTimeout,
		fetchRetryDelay: defaultFetchRetryDelay,
	}
	e.setState(StateCreated)
	return e
}

// Run starts the processors and blocks until ctx is cancelled or a
// processor fails. A failure stops the remaining processors and leaves the
// engine in StateError; cancellation leaves it in StateNotRunning.
func (e *Engine) Run(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	e.setState(StateRunning)
	e.logger.Info("engine started", "threads", e.threads)

	procs := make([]*processor, 0, e.threads)
	for i := 0; i < e.threads; i++ {
		p := newProcessor(i, e.newReader(i), e.handler)
		p.pollTimeout = e.pollTimeout
		p.fetchRetryDelay = e.fetchRetryDelay
		procs = append(procs, p)
	}
	e.mu.Lock()
	e.processors = procs
	e.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range procs {
		g.Go(func() error {
			if err := p.run(gctx); err != nil {
				e.metrics.ProcessorFailures.Inc()
				return err
			}
			return nil
		})
	}

	go func() {
		<-gctx.Done()
		if ctx.Err() != nil {
			e.state.CompareAndSwap(int32(StateRunning), int32(StatePendingShutdown))
			e.metrics.EngineState.Set(float64(e.State()))
		}
	}()

	err := g.Wait()
	if err != nil {
		e.mu.Lock()
		e.err = err
		e.mu.Unlock()
		e.setState(StateError)
		e.logger.Error("engine stopped on processor failure", "error", err)
		return err
	}
	e.setState(StateNotRunning)
	e.logger.Info("engine stopped")
	return nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Err returns the processor failure that stopped the engine, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Live reports whether no processor has failed.
func (e *Engine) Live() bool {
	return e.State() != StateError
}

// Ready reports whether the engine is running and every processor's last
// fetch succeeded or waited out a poll without error. A processor is not
// ready before its first poll completes.
func (e *Engine) Ready() bool {
	if e.State() != StateRunning {
		return false
	}
	e.mu.Lock()
	procs := e.processors
	e.mu.Unlock()
	if len(procs) == 0 {
		return false
	}
	for _, p := range procs {
		if !p.healthy() {
			return false
		}
	}
	return true
}

// Unready returns the ids of processors whose last fetch did not make
// progress.
func (e *Engine) Unready() []int {
	e.mu.Lock()
	procs := e.processors
	e.mu.Unlock()
	var ids []int
	for _, p := range procs {
		if !p.healthy() {
			ids = append(ids, p.id)
		}
	}
	return ids
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.metrics.EngineState.Set(float64(s))
}
