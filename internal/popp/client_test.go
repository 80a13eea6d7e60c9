package popp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

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
	return NewClient(transport)
}

func TestHentInntekter(t *testing.T) {
	var got request
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inntekt/sumPi" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Nav-Call-Id") != "call-2" || r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("headers = %v", r.Header)
		}
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"inntekter":[{"belop":1200,"inntektAr":2021,"inntektType":"SUM_PI"},{"belop":300,"inntektAr":2022,"inntektType":"SUM_PI"}]}`)
	})

	resp, err := c.HentInntekter(context.Background(), "12345678901", 2021, 2022, "call-2")
	if err != nil {
		t.Fatalf("HentInntekter: %v", err)
	}
	if got != (request{Fnr: "12345678901", FomAr: 2021, TomAr: 2022}) {
		t.Errorf("request = %+v", got)
	}
	if len(resp.Inntekter) != 2 {
		t.Fatalf("inntekter = %d, want 2", len(resp.Inntekter))
	}
	if first := resp.Inntekter[0]; first.Belop != 1200 || first.InntektAr != 2021 || first.InntektType != "SUM_PI" {
		t.Errorf("first = %+v", first)
	}
}

func TestHentInntekterEdgeCases(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called")
	})
	ctx := context.Background()

	resp, err := c.HentInntekter(ctx, "12345678901", 2022, 2021, "call")
	if err != nil || len(resp.Inntekter) != 0 {
		t.Errorf("inverted range: resp = %+v, err = %v", resp, err)
	}
	if _, err := c.HentInntekter(ctx, "", 2021, 2021, "call"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("empty fnr: err = %v", err)
	}
}

func TestHentInntekterMalformedBody(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"inntekter": "not-a-list"}`)
	})
	_, err := c.HentInntekter(context.Background(), "12345678901", 2021, 2021, "call")
	if !errors.Is(err, apperrors.ErrUpstreamUnavailable) || !errors.Is(err, apperrors.ErrMalformedResponse) {
		t.Errorf("err = %v", err)
	}
}
