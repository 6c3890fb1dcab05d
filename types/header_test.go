package types

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload() PaymentPayload {
	return PaymentPayload{
		X402Version: X402Version1,
		Scheme:      SchemeExact,
		Network:     NetworkHiveMainnet,
		Payload: Payload{
			SignedTransaction: &SignedTransaction{
				RefBlockNum:    100,
				RefBlockPrefix: 200,
				Expiration:     "2030-01-01T00:00:00",
				Operations: []Operation{NewTransferOperation(TransferOperation{
					From:   "alice",
					To:     "bob",
					Amount: "0.050 HBD",
					Memo:   "x402:abc",
				})},
				Extensions: []json.RawMessage{},
				Signatures: []string{"1f00"},
			},
			Nonce: "abc",
		},
	}
}

func TestPaymentHeader(t *testing.T) {
	payload := testPayload()

	header, err := EncodePayment(payload)
	require.NoError(t, err)

	decoded, err := DecodePayment(header)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)

	// Equal values produce the same token
	again, err := EncodePayment(decoded)
	require.NoError(t, err)
	assert.Equal(t, header, again)
}

func TestPaymentRequiredHeader(t *testing.T) {
	required := PaymentRequired{
		X402Version: X402Version1,
		Accepts:     []PaymentRequirements{NewPaymentRequirements("0.050 HBD", "bob", "/weather", 0, time.Now())},
	}

	header, err := EncodePaymentRequired(required)
	require.NoError(t, err)

	decoded, err := DecodePaymentRequired(header)
	require.NoError(t, err)
	assert.Equal(t, required, decoded)

	empty, err := EncodePaymentRequired(PaymentRequired{X402Version: X402Version1})
	require.NoError(t, err)
	_, err = DecodePaymentRequired(empty)
	assert.ErrorIs(t, err, ErrMalformedHeader)
	assert.ErrorContains(t, err, "accepts")
}

func TestSettleResponseHeader(t *testing.T) {
	settle := SettleResponse{Success: true, TxID: "abc", BlockNum: 7, Payer: "alice"}

	header, err := EncodeSettleResponse(settle)
	require.NoError(t, err)

	decoded, err := DecodeSettleResponse(header)
	require.NoError(t, err)
	assert.Equal(t, settle, decoded)
}

func TestDecodeMalformedHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "empty", header: ""},
		{name: "not base64", header: "!!!"},
		{name: "not json", header: base64.StdEncoding.EncodeToString([]byte("hello"))},
		{name: "wrong shape", header: base64.StdEncoding.EncodeToString([]byte(`{"payload":"x"}`))},
		{name: "missing nonce", header: base64.StdEncoding.EncodeToString([]byte(
			`{"x402Version":1,"scheme":"exact","network":"hive:mainnet","payload":{"signedTransaction":{"expiration":"2030-01-01T00:00:00"}}}`,
		))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayment(tt.header)
			assert.ErrorIs(t, err, ErrMalformedHeader)
		})
	}
}
