// Package inntektskomponent fetches month-keyed income from
// inntektskomponenten.
package inntektskomponent

import (
	"context"
	"fmt"

	apperrors "github.com/navikt/aap-inntekt/pkg/errors"
)

// Name labels this upstream in metrics, logs and the failure ledger.
const Name = "inntektskomponent"

const hentInntektListePath = "/rs/api/v1/hentinntektliste"

// Poster is the transport the client sends requests through.
type Poster interface {
	PostJSON(ctx context.Context, path, callID string, body, out any) error
}

type Client struct {
	transport Poster
	filter    string
	formaal   string
}

// NewClient creates a Client. filter and formaal fill in requests that leave
// them empty.
func NewClient(transport Poster, filter, formaal string) *Client {
	return &Client{transport: transport, filter: filter, formaal: formaal}
}

// HentInntektsliste fetches income for req.Personident between req.Fom and
// req.Tom inclusive. An inverted range returns an empty Response without a
// call.
func (c *Client) HentInntektsliste(ctx context.Context, req Request) (Response, error) {
	if req.Personident == "" {
		return Response{}, fmt.Errorf("%s: %w: empty personident", Name, apperrors.ErrInvalidInput)
	}
	if req.Fom.After(req.Tom) {
		return Response{}, nil
	}
	if req.Filter == "" {
		req.Filter = c.filter
	}
	if req.Formaal == "" {
		req.Formaal = c.formaal
	}
	var resp Response
	if err := c.transport.PostJSON(ctx, hentInntektListePath, req.CallID, req.body(), &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
