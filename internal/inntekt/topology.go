package inntekt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/navikt/aap-inntekt/pkg/kafka"
	"github.com/navikt/aap-inntekt/pkg/metrics"
)

// State is where a consumed record ended up.
type State int

const (
	StateReceived State = iota
	// StateDropped is a tombstone. It never reaches decoding or the
	// upstreams.
	StateDropped
	// StateInvalid is a value that could not be decoded. It is logged and
	// committed.
	StateInvalid
	// StateSkipped is a record that already has a response. Nothing is
	// called and nothing is republished.
	StateSkipped
	StateEnriching
	// StateEnriched was republished with its response set.
	StateEnriched
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateDropped:
		return "dropped"
	case StateInvalid:
		return "invalid"
	case StateSkipped:
		return "skipped"
	case StateEnriching:
		return "enriching"
	case StateEnriched:
		return "enriched"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Publisher writes an event back to the topic.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Topology wires consume, filter, enrich and produce for one topic.
//
// Delivery is at least once. If the process stops after the upstream calls
// but before the input offset is committed, the record is redelivered and
// enriched again. Merge is deterministic, but the upstreams may answer
// differently the second time, so the topic can briefly carry two enriched
// versions of one request with different income lists. This window is
// accepted.
type Topology struct {
	topic     string
	stage     *Stage
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	secure    *slog.Logger
}

func NewTopology(topic string, stage *Stage, publisher Publisher, m *metrics.Metrics, secure *slog.Logger) *Topology {
	if secure == nil {
		secure = slog.New(slog.DiscardHandler)
	}
	return &Topology{
		topic:     topic,
		stage:     stage,
		publisher: publisher,
		metrics:   m,
		logger:    slog.Default().With("component", "topology", "topic", topic),
		secure:    secure,
	}
}

// Handle is the kafka.Handler for the topic. Only a failed publish is
// returned; the engine treats it as fatal and does not commit the message.
func (t *Topology) Handle(ctx context.Context, msg kafka.Message) error {
	_, err := t.Process(ctx, msg)
	return err
}

// Process moves one message through the record state machine and returns
// the state it ended in.
func (t *Topology) Process(ctx context.Context, msg kafka.Message) (State, error) {
	state, err := t.process(ctx, msg)
	switch state {
	case StateDropped:
		t.metrics.RecordsTotal.WithLabelValues(metrics.OutcomeDropped).Inc()
	case StateInvalid:
		t.metrics.RecordsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
	case StateSkipped:
		t.metrics.RecordsTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
	case StateEnriched:
		t.metrics.RecordsTotal.WithLabelValues(metrics.OutcomeEnriched).Inc()
	}
	return state, err
}

func (t *Topology) process(ctx context.Context, msg kafka.Message) (State, error) {
	if msg.Tombstone() {
		t.logger.Debug("tombstone dropped", "partition", msg.Partition, "offset", msg.Offset)
		return StateDropped, nil
	}

	rec, err := Decode(msg.Value)
	if err != nil {
		t.logger.Warn("skipping undecodable record",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		t.secure.Warn("undecodable record", "key", string(msg.Key), "value", string(msg.Value), "error", err)
		return StateInvalid, nil
	}

	if rec.Enriched() {
		return StateSkipped, nil
	}

	enriched := t.stage.Enrich(ctx, rec)

	key := string(msg.Key)
	if key == "" {
		key = rec.Personident
	}
	if err := t.publisher.Publish(ctx, kafka.Event{Key: key, Value: enriched}); err != nil {
		return StateEnriching, fmt.Errorf("republishing enriched record: %w", err)
	}
	return StateEnriched, nil
}

// Describe renders the topology as a mermaid flowchart.
func (t *Topology) Describe() string {
	var b strings.Builder
	b.WriteString("```mermaid\n")
	b.WriteString("graph LR\n")
	fmt.Fprintf(&b, "    source([%s]) --> tombstone{tombstone?}\n", t.topic)
	b.WriteString("    tombstone -- yes --> dropped[[dropped]]\n")
	b.WriteString("    tombstone -- no --> decode{decodes?}\n")
	b.WriteString("    decode -- no --> invalid[[logged and skipped]]\n")
	b.WriteString("    decode -- yes --> filter{response set?}\n")
	b.WriteString("    filter -- yes --> skipped[[skipped]]\n")
	b.WriteString("    filter -- no --> enrich[enrich]\n")
	b.WriteString("    enrich --> inntektskomponent[(inntektskomponent)]\n")
	b.WriteString("    enrich --> popp[(popp)]\n")
	b.WriteString("    inntektskomponent --> merge[merge]\n")
	b.WriteString("    popp --> merge\n")
	fmt.Fprintf(&b, "    merge --> sink([%s])\n", t.topic)
	b.WriteString("```\n")
	return b.String()
}
