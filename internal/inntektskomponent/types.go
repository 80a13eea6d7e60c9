package inntektskomponent

import (
	"github.com/navikt/aap-inntekt/internal/period"
)

// Request identifies whose income to fetch and for which months.
type Request struct {
	Personident string
	Fom         period.YearMonth
	Tom         period.YearMonth
	Filter      string
	Formaal     string
	CallID      string
}

type ident struct {
	Identifikator string `json:"identifikator"`
	AktoerType    string `json:"aktoerType"`
}

type hentInntektListeBody struct {
	Ident           ident            `json:"ident"`
	Ainntektsfilter string           `json:"ainntektsfilter"`
	Formaal         string           `json:"formaal"`
	MaanedFom       period.YearMonth `json:"maanedFom"`
	MaanedTom       period.YearMonth `json:"maanedTom"`
}

func (r Request) body() hentInntektListeBody {
	return hentInntektListeBody{
		Ident: ident{
			Identifikator: r.Personident,
			AktoerType:    "NATURLIG_IDENT",
		},
		Ainntektsfilter: r.Filter,
		Formaal:         r.Formaal,
		MaanedFom:       r.Fom,
		MaanedTom:       r.Tom,
	}
}

// Response is the month-keyed income list.
type Response struct {
	ArbeidsInntektMaaned []Maaned `json:"arbeidsInntektMaaned"`
}

type Maaned struct {
	AarMaaned                 period.YearMonth          `json:"aarMaaned"`
	ArbeidsInntektInformasjon ArbeidsInntektInformasjon `json:"arbeidsInntektInformasjon"`
}

type ArbeidsInntektInformasjon struct {
	InntektListe []Inntekt `json:"inntektListe"`
}

// Inntekt is one income line. Virksomhet is the employer, when reported.
type Inntekt struct {
	Beloep     float64     `json:"beloep"`
	Virksomhet *Virksomhet `json:"virksomhet,omitempty"`
}

type Virksomhet struct {
	Identifikator string `json:"identifikator"`
	AktoerType    string `json:"aktoerType"`
}

// AktoerTypeOrganisasjon marks an employer identified by organisation number.
const AktoerTypeOrganisasjon = "ORGANISASJON"

// Kilde returns the employer's organisation number, or "" when the employer
// is missing or identified as a person.
func (i Inntekt) Kilde() string {
	if i.Virksomhet == nil || i.Virksomhet.AktoerType != AktoerTypeOrganisasjon {
		return ""
	}
	return i.Virksomhet.Identifikator
}

// Lines returns the total number of income lines across all months.
func (r Response) Lines() int {
	n := 0
	for _, m := range r.ArbeidsInntektMaaned {
		n += len(m.ArbeidsInntektInformasjon.InntektListe)
	}
	return n
}
