package inntekt

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/navikt/aap-inntekt/internal/inntektskomponent"
	"github.com/navikt/aap-inntekt/internal/ledger"
	"github.com/navikt/aap-inntekt/internal/popp"
	apperrors "github.com/navikt/aap-inntekt/pkg/errors"
	"github.com/navikt/aap-inntekt/pkg/logger"
	"github.com/navikt/aap-inntekt/pkg/metrics"
	"github.com/navikt/aap-inntekt/pkg/tracing"
)

// MonthlyFetcher is the inntektskomponent client.
type MonthlyFetcher interface {
	HentInntektsliste(ctx context.Context, req inntektskomponent.Request) (inntektskomponent.Response, error)
}

// YearlyFetcher is the POPP client.
type YearlyFetcher interface {
	HentInntekter(ctx context.Context, fnr string, fomAr, tomAr int, callID string) (popp.Response, error)
}

// StageOptions holds the optional collaborators of a Stage.
type StageOptions struct {
	// Ledger receives one row per failed upstream call. Defaults to
	// ledger.Discard.
	Ledger ledger.Recorder
	// Secure receives log lines that carry the personident.
	Secure *slog.Logger
	// Tracing logs a span tree per enrichment at debug level.
	Tracing bool
	// NewCallID overrides correlation id generation.
	NewCallID func() string
}

// Stage enriches one record at a time. It holds no per-record state and is
// safe to share between processors.
type Stage struct {
	monthly   MonthlyFetcher
	yearly    YearlyFetcher
	ledger    ledger.Recorder
	metrics   *metrics.Metrics
	logger    *slog.Logger
	secure    *slog.Logger
	tracing   bool
	newCallID func() string
}

func NewStage(monthly MonthlyFetcher, yearly YearlyFetcher, m *metrics.Metrics, opts StageOptions) *Stage {
	s := &Stage{
		monthly:   monthly,
		yearly:    yearly,
		ledger:    opts.Ledger,
		metrics:   m,
		logger:    slog.Default().With("component", "enrichment-stage"),
		secure:    opts.Secure,
		tracing:   opts.Tracing,
		newCallID: opts.NewCallID,
	}
	if s.ledger == nil {
		s.ledger = ledger.Discard
	}
	if s.secure == nil {
		s.secure = slog.New(slog.DiscardHandler)
	}
	if s.newCallID == nil {
		s.newCallID = uuid.NewString
	}
	return s
}

// Enrich fetches income for rec from both upstreams and returns rec with
// Response set. It blocks for both calls and never fails: an upstream that
// fails contributes no entries, and the failure is logged, counted and
// written to the ledger.
func (s *Stage) Enrich(ctx context.Context, rec Record) Record {
	callID := s.newCallID()
	ctx = logger.WithCallID(ctx, callID)
	log := logger.Scoped(ctx, s.logger)

	var span *tracing.Span
	if s.tracing {
		ctx, span = tracing.StartSpan(ctx, "enrich", callID)
	}

	var (
		monthly               inntektskomponent.Response
		yearly                popp.Response
		monthlyErr, yearlyErr error
	)
	var wg sync.WaitGroup
	wg.Go(func() {
		monthly, monthlyErr = s.fetchMonthly(ctx, rec, callID)
	})
	wg.Go(func() {
		yearly, yearlyErr = s.fetchYearly(ctx, rec, callID)
	})
	wg.Wait()

	failed := 0
	if monthlyErr != nil {
		failed++
		s.recordFailure(ctx, rec, callID, inntektskomponent.Name, monthlyErr)
	}
	if yearlyErr != nil {
		failed++
		s.recordFailure(ctx, rec, callID, popp.Name, yearlyErr)
	}

	entries := Merge(monthly, yearly)
	rec.Response = &Response{Inntekter: entries}

	status := metrics.EnrichmentComplete
	switch failed {
	case 1:
		status = metrics.EnrichmentPartial
	case 2:
		status = metrics.EnrichmentDegraded
	}
	s.metrics.EnrichmentsTotal.WithLabelValues(status).Inc()
	s.metrics.IncomeEntries.Observe(float64(len(entries)))
	if status == metrics.EnrichmentComplete && len(entries) == 0 {
		s.metrics.EmptyIncomeTotal.Inc()
	}

	log.Info("record enriched", "status", status, "entries", len(entries))
	if span != nil {
		span.SetAttr("status", status)
		span.SetAttr("entries", len(entries))
		span.End(nil)
		span.Log(ctx, s.logger)
	}
	return rec
}

func (s *Stage) fetchMonthly(ctx context.Context, rec Record, callID string) (inntektskomponent.Response, error) {
	ctx, span := s.childSpan(ctx, inntektskomponent.Name)
	resp, err := s.monthly.HentInntektsliste(ctx, inntektskomponent.Request{
		Personident: rec.Personident,
		Fom:         rec.Request.Fom,
		Tom:         rec.Request.Tom,
		CallID:      callID,
	})
	if span != nil {
		span.SetAttr("lines", resp.Lines())
		span.End(err)
	}
	return resp, err
}

func (s *Stage) fetchYearly(ctx context.Context, rec Record, callID string) (popp.Response, error) {
	ctx, span := s.childSpan(ctx, popp.Name)
	resp, err := s.yearly.HentInntekter(ctx, rec.Personident, rec.Request.Fom.Year, rec.Request.Tom.Year, callID)
	if span != nil {
		span.SetAttr("entries", len(resp.Inntekter))
		span.End(err)
	}
	return resp, err
}

func (s *Stage) childSpan(ctx context.Context, name string) (context.Context, *tracing.Span) {
	if !s.tracing {
		return ctx, nil
	}
	return tracing.StartChildSpan(ctx, name)
}

func (s *Stage) recordFailure(ctx context.Context, rec Record, callID, upstream string, err error) {
	reason := apperrors.Reason(err)
	s.metrics.UpstreamFailures.WithLabelValues(upstream, reason).Inc()

	logger.Scoped(ctx, s.logger).Error("upstream call failed, continuing without its income",
		"upstream", upstream,
		"reason", reason,
		"error", err,
	)
	s.secure.Error("upstream call failed",
		"call_id", callID,
		"upstream", upstream,
		"personident", rec.Personident,
		"error", err,
	)

	failure := ledger.Failure{
		CallID:      callID,
		Personident: rec.Personident,
		Upstream:    upstream,
		Reason:      reason,
		Detail:      err.Error(),
		OccurredAt:  time.Now().UTC(),
	}
	if lerr := s.ledger.RecordFailure(ctx, failure); lerr != nil {
		s.metrics.LedgerWriteFailures.Inc()
		logger.Scoped(ctx, s.logger).Warn("failed to write failure ledger", "upstream", upstream, "error", lerr)
	}
}
