package payer

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

// DefaultMaxPayment caps what a Transport pays per request.
var DefaultMaxPayment = decimal.RequireFromString("1.000")

var (
	// ErrNoRequirements is returned for a 402 without a payable Hive requirement.
	ErrNoRequirements = errors.New("received 402 but no Hive payment requirements found")

	// ErrPaymentTooLarge is returned when a requirement exceeds the payment cap.
	ErrPaymentTooLarge = errors.New("payment exceeds max allowed")
)

// Transport is an http.RoundTripper that answers 402 challenges by signing a
// payment and retrying the request once.
type Transport struct {
	Signer     *Signer
	MaxPayment decimal.Decimal
	Base       http.RoundTripper
}

// NewClient returns an http.Client that pays for 402 responses with signer.
func NewClient(signer *Signer, maxPayment decimal.Decimal) *http.Client {
	return &http.Client{Transport: &Transport{Signer: signer, MaxPayment: maxPayment}}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed for payment")
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusPaymentRequired {
		return resp, err
	}
	header := resp.Header.Get(types.HeaderPayment)
	resp.Body.Close()

	requirements, err := selectRequirements(header)
	if err != nil {
		return nil, err
	}

	// Verify the price is within the cap
	maxPayment := t.MaxPayment
	if maxPayment.IsZero() {
		maxPayment = DefaultMaxPayment
	}
	amount, err := types.ParseHBD(requirements.MaxAmountRequired)
	if err != nil {
		return nil, fmt.Errorf("invalid required amount %q: %w", requirements.MaxAmountRequired, err)
	}
	if amount.GreaterThan(maxPayment) {
		return nil, fmt.Errorf("%w: %s > %s", ErrPaymentTooLarge, requirements.MaxAmountRequired, types.FormatHBD(maxPayment))
	}

	paymentHeader, err := t.Signer.PaymentHeader(req.Context(), requirements)
	if err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	retry.Header.Set(types.HeaderPayment, paymentHeader)
	return t.base().RoundTrip(retry)
}

// selectRequirements returns the first exact Hive requirement of a challenge.
func selectRequirements(header string) (types.PaymentRequirements, error) {
	if header == "" {
		return types.PaymentRequirements{}, ErrNoRequirements
	}
	paymentRequired, err := types.DecodePaymentRequired(header)
	if err != nil {
		return types.PaymentRequirements{}, err
	}
	for _, r := range paymentRequired.Accepts {
		if r.Network == types.NetworkHiveMainnet && r.Scheme == types.SchemeExact {
			return r, nil
		}
	}
	return types.PaymentRequirements{}, ErrNoRequirements
}
