// Package popp fetches yearly pension-qualifying income from POPP.
package popp

import (
	"context"
	"fmt"

	apperrors "github.com/navikt/aap-inntekt/pkg/errors"
)

// Name labels this upstream in metrics, logs and the failure ledger.
const Name = "popp"

const sumPiPath = "/inntekt/sumPi"

type request struct {
	Fnr   string `json:"fnr"`
	FomAr int    `json:"fomAr"`
	TomAr int    `json:"tomAr"`
}

// Response is the year-keyed income list.
type Response struct {
	Inntekter []Inntekt `json:"inntekter"`
}

type Inntekt struct {
	Belop       float64 `json:"belop"`
	InntektAr   int     `json:"inntektAr"`
	InntektType string  `json:"inntektType"`
}

// Poster is the transport the client sends requests through.
type Poster interface {
	PostJSON(ctx context.Context, path, callID string, body, out any) error
}

type Client struct {
	transport Poster
}

func NewClient(transport Poster) *Client {
	return &Client{transport: transport}
}

// HentInntekter fetches income for fnr from fomAr to tomAr inclusive. An
// inverted range returns an empty Response without a call.
func (c *Client) HentInntekter(ctx context.Context, fnr string, fomAr, tomAr int, callID string) (Response, error) {
	if fnr == "" {
		return Response{}, fmt.Errorf("%s: %w: empty fnr", Name, apperrors.ErrInvalidInput)
	}
	if fomAr > tomAr {
		return Response{}, nil
	}
	var resp Response
	body := request{Fnr: fnr, FomAr: fomAr, TomAr: tomAr}
	if err := c.transport.PostJSON(ctx, sumPiPath, callID, body, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
