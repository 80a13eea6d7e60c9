package inntekt

import (
	"time"

	"github.com/navikt/aap-inntekt/internal/inntektskomponent"
	"github.com/navikt/aap-inntekt/internal/period"
	"github.com/navikt/aap-inntekt/internal/popp"
)

// Merge flattens both upstream answers into canonical entries: every
// inntektskomponent line in month order, then every POPP year as
// (year, January). Entries are never sorted or deduplicated across sources.
// The result is non-nil so an empty merge still encodes as [].
func Merge(a inntektskomponent.Response, b popp.Response) []Inntekt {
	out := make([]Inntekt, 0, a.Lines()+len(b.Inntekter))
	for _, maaned := range a.ArbeidsInntektMaaned {
		for _, linje := range maaned.ArbeidsInntektInformasjon.InntektListe {
			kilde := linje.Kilde()
			if kilde == "" {
				kilde = Ukjent
			}
			out = append(out, Inntekt{
				Kilde:   kilde,
				Periode: maaned.AarMaaned,
				Belop:   linje.Beloep,
			})
		}
	}
	for _, aar := range b.Inntekter {
		out = append(out, Inntekt{
			Kilde:   Ukjent,
			Periode: period.New(aar.InntektAr, time.January),
			Belop:   aar.Belop,
		})
	}
	return out
}
