package inntektskomponent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/navikt/aap-inntekt/internal/period"
	"github.com/navikt/aap-inntekt/internal/upstream"
	"github.com/navikt/aap-inntekt/pkg/config"
	apperrors "github.com/navikt/aap-inntekt/pkg/errors"
	"github.com/navikt/aap-inntekt/pkg/metrics"
)

type staticToken string

func (s staticToken) Token(context.Context, string) (string, error) { return string(s), nil }

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	transport := upstream.New(upstream.Options{
		Name:    Name,
		BaseURL: srv.URL,
		HTTP: config.HTTPClientConfig{
			RequestTimeout: time.Second,
			Retry:          config.RetryConfig{MaxAttempts: 1},
		},
	}, staticToken("tok"), metrics.New(), nil)
	t.Cleanup(transport.Close)
	return NewClient(transport, "ArbeidsavklaringspengerA-inntekt", "Arbeidsavklaringspenger")
}

const sampleResponse = `{
  "arbeidsInntektMaaned": [
    {
      "aarMaaned": "2021-03",
      "arbeidsInntektInformasjon": {
        "inntektListe": [
          {"beloep": 5000, "virksomhet": {"identifikator": "orgA", "aktoerType": "ORGANISASJON"}, "inntektType": "LOENNSINNTEKT"},
          {"beloep": 250.5}
        ]
      }
    }
  ],
  "ident": {"identifikator": "12345678901", "aktoerType": "NATURLIG_IDENT"}
}`

func TestHentInntektslisteRequestShape(t *testing.T) {
	var got map[string]any
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rs/api/v1/hentinntektliste" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Nav-Call-Id") != "call-1" {
			t.Errorf("call id = %q", r.Header.Get("Nav-Call-Id"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, sampleResponse)
	})

	resp, err := c.HentInntektsliste(context.Background(), Request{
		Personident: "12345678901",
		Fom:         period.New(2021, time.January),
		Tom:         period.New(2021, time.December),
		CallID:      "call-1",
	})
	if err != nil {
		t.Fatalf("HentInntektsliste: %v", err)
	}

	ident, _ := got["ident"].(map[string]any)
	if ident["identifikator"] != "12345678901" || ident["aktoerType"] != "NATURLIG_IDENT" {
		t.Errorf("ident = %v", got["ident"])
	}
	if got["ainntektsfilter"] != "ArbeidsavklaringspengerA-inntekt" || got["formaal"] != "Arbeidsavklaringspenger" {
		t.Errorf("filter/formaal = %v / %v", got["ainntektsfilter"], got["formaal"])
	}
	if got["maanedFom"] != "2021-01" || got["maanedTom"] != "2021-12" {
		t.Errorf("range = %v..%v", got["maanedFom"], got["maanedTom"])
	}

	if resp.Lines() != 2 {
		t.Fatalf("lines = %d, want 2", resp.Lines())
	}
	lines := resp.ArbeidsInntektMaaned[0].ArbeidsInntektInformasjon.InntektListe
	if lines[0].Kilde() != "orgA" || lines[0].Beloep != 5000 {
		t.Errorf("first line = %+v", lines[0])
	}
	if lines[1].Kilde() != "" {
		t.Errorf("second line kilde = %q, want empty", lines[1].Kilde())
	}
}

func TestHentInntektslisteEmptyResponse(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})
	resp, err := c.HentInntektsliste(context.Background(), Request{
		Personident: "12345678901",
		Fom:         period.New(2021, time.January),
		Tom:         period.New(2021, time.January),
	})
	if err != nil {
		t.Fatalf("HentInntektsliste: %v", err)
	}
	if resp.Lines() != 0 {
		t.Errorf("lines = %d", resp.Lines())
	}
}

func TestHentInntektslisteInvertedRangeSkipsCall(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream called for inverted range")
	})
	resp, err := c.HentInntektsliste(context.Background(), Request{
		Personident: "12345678901",
		Fom:         period.New(2022, time.January),
		Tom:         period.New(2021, time.December),
	})
	if err != nil || resp.Lines() != 0 {
		t.Errorf("resp = %+v, err = %v", resp, err)
	}
}

func TestHentInntektslisteRejectsEmptyPersonident(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream called without personident")
	})
	_, err := c.HentInntektsliste(context.Background(), Request{})
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestHentInntektslisteUpstreamFailure(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.HentInntektsliste(context.Background(), Request{
		Personident: "12345678901",
		Fom:         period.New(2021, time.January),
		Tom:         period.New(2021, time.March),
	})
	if !errors.Is(err, apperrors.ErrUpstreamUnavailable) {
		t.Errorf("err = %v, want ErrUpstreamUnavailable", err)
	}
}
