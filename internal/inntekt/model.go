// Package inntekt is the enrichment stage: it decides which income-request
// records need enrichment, fetches income from both upstreams, merges the
// answers and republishes the record.
package inntekt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/navikt/aap-inntekt/internal/period"
	apperrors "github.com/navikt/aap-inntekt/pkg/errors"
)

// Ukjent is the source identifier used when an upstream reports no employer.
const Ukjent = "ukjent"

// Record is the value carried on the inntekter topic. A nil Response means
// the record still needs enrichment; once set the record is terminal.
type Record struct {
	Personident string    `json:"personident"`
	Request     Request   `json:"request"`
	Response    *Response `json:"response"`
}

// Request is the closed month range to fetch income for.
type Request struct {
	Fom period.YearMonth `json:"fom"`
	Tom period.YearMonth `json:"tom"`
}

type Response struct {
	Inntekter []Inntekt `json:"inntekter"`
}

// Inntekt is one canonical income entry.
type Inntekt struct {
	Kilde   string           `json:"kilde"`
	Periode period.YearMonth `json:"periode"`
	Belop   float64          `json:"belop"`
}

// Enriched reports whether the record already carries a response.
func (r Record) Enriched() bool {
	return r.Response != nil
}

// Decode parses a non-empty record value.
func Decode(value []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(value, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidRecord, err)
	}
	if strings.TrimSpace(rec.Personident) == "" {
		return Record{}, fmt.Errorf("%w: missing personident", apperrors.ErrInvalidRecord)
	}
	if rec.Request.Fom.IsZero() || rec.Request.Tom.IsZero() {
		return Record{}, fmt.Errorf("%w: missing request period", apperrors.ErrInvalidRecord)
	}
	return rec, nil
}

