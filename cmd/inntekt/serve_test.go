package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/navikt/aap-inntekt/pkg/health"
	"github.com/navikt/aap-inntekt/pkg/kafka"
	"github.com/navikt/aap-inntekt/pkg/metrics"
	kafkago "github.com/segmentio/kafka-go"
)

// oneMessageReader serves a single record, then blocks until ctx ends.
type oneMessageReader struct {
	mu     sync.Mutex
	served bool
}

func (r *oneMessageReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if !r.served {
		r.served = true
		r.mu.Unlock()
		return kafkago.Message{Topic: "aap.inntekter.v1", Key: []byte("k"), Value: []byte("{}")}, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *oneMessageReader) CommitMessages(context.Context, ...kafkago.Message) error { return nil }

func (r *oneMessageReader) Close() error { return nil }

func TestEngineChecksReportProcessorFailure(t *testing.T) {
	handler := func(context.Context, kafka.Message) error {
		return errors.New("schema mismatch")
	}
	engine := kafka.NewEngine(1, func(int) kafka.Reader { return &oneMessageReader{} }, handler, metrics.New())
	checker := health.NewChecker()
	registerEngineChecks(checker, engine)

	if err := engine.Run(context.Background()); err == nil {
		t.Fatal("Run returned nil")
	}

	live := checker.Run(context.Background(), health.Liveness)
	comp := live.Components["kafka-streams"]
	if live.Status != health.StatusDown || comp.Status != health.StatusDown {
		t.Fatalf("liveness = %+v", live)
	}
	if !strings.Contains(comp.Message, "ERROR") || !strings.Contains(comp.Message, "schema mismatch") {
		t.Errorf("liveness message = %q", comp.Message)
	}

	ready := checker.Run(context.Background(), health.Readiness)
	if ready.Components["kafka-streams"].Status != health.StatusDown {
		t.Errorf("readiness = %+v", ready)
	}
}

func TestEngineChecksBeforeStart(t *testing.T) {
	engine := kafka.NewEngine(1, func(int) kafka.Reader { return &oneMessageReader{} }, func(context.Context, kafka.Message) error { return nil }, metrics.New())
	checker := health.NewChecker()
	registerEngineChecks(checker, engine)

	live := checker.Run(context.Background(), health.Liveness).Components["kafka-streams"]
	if live.Status != health.StatusUp {
		t.Errorf("liveness = %+v", live)
	}
	ready := checker.Run(context.Background(), health.Readiness).Components["kafka-streams"]
	if ready.Status != health.StatusDown || ready.Message != "stream engine in state CREATED" {
		t.Errorf("readiness = %+v", ready)
	}
}
