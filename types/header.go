package types

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	canonicaljson "github.com/gibson042/canonicaljson-go"
)

// ErrMalformedHeader is returned when a payment header cannot be decoded into
// a valid protocol message.
var ErrMalformedHeader = errors.New("malformed payment header")

// EncodePayment encodes a payment payload for the X-PAYMENT request header.
func EncodePayment(p PaymentPayload) (string, error) {
	return encodeHeader(p)
}

// DecodePayment decodes and validates an X-PAYMENT request header.
func DecodePayment(header string) (PaymentPayload, error) {
	var p PaymentPayload
	if err := decodeHeader(header, &p); err != nil {
		return PaymentPayload{}, err
	}
	if err := p.Validate(); err != nil {
		return PaymentPayload{}, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	return p, nil
}

// EncodePaymentRequired encodes a 402 body for the X-PAYMENT response header.
func EncodePaymentRequired(p PaymentRequired) (string, error) {
	return encodeHeader(p)
}

// DecodePaymentRequired decodes and validates an X-PAYMENT response header.
func DecodePaymentRequired(header string) (PaymentRequired, error) {
	var p PaymentRequired
	if err := decodeHeader(header, &p); err != nil {
		return PaymentRequired{}, err
	}
	if err := p.Validate(); err != nil {
		return PaymentRequired{}, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	return p, nil
}

// EncodeSettleResponse encodes a settle response for the X-PAYMENT-RESPONSE header.
func EncodeSettleResponse(s SettleResponse) (string, error) {
	return encodeHeader(s)
}

// DecodeSettleResponse decodes and validates an X-PAYMENT-RESPONSE header.
func DecodeSettleResponse(header string) (SettleResponse, error) {
	var s SettleResponse
	if err := decodeHeader(header, &s); err != nil {
		return SettleResponse{}, err
	}
	if err := s.Validate(); err != nil {
		return SettleResponse{}, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	return s, nil
}

// encodeHeader writes v as canonical JSON so equal values always produce the
// same header token.
func encodeHeader(v any) (string, error) {
	raw, err := canonicaljson.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode header: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeHeader(header string, v any) error {
	if header == "" {
		return fmt.Errorf("%w: empty header", ErrMalformedHeader)
	}

	// Decode the base64 token
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	// Decode the JSON document
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	return nil
}
