package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// OperationTransfer is the Hive operation name of a plain token transfer.
const OperationTransfer = "transfer"

// RequestBody is the request body of the verify and settle operations.
type RequestBody struct {
	X402Version         X402Version     `json:"x402Version,omitempty"`
	PaymentPayload      json.RawMessage `json:"paymentPayload"`
	PaymentRequirements json.RawMessage `json:"paymentRequirements"`
}

// PaymentRequirements describe what a resource server accepts as payment.
type PaymentRequirements struct {
	X402Version       X402Version    `json:"x402Version" validate:"omitempty,eq=1"`
	Scheme            Scheme         `json:"scheme" validate:"required"`
	Network           Network        `json:"network" validate:"required"`
	MaxAmountRequired string         `json:"maxAmountRequired" validate:"required"`
	Resource          string         `json:"resource"`
	Description       string         `json:"description,omitempty"`
	MimeType          string         `json:"mimeType,omitempty"`
	PayTo             string         `json:"payTo" validate:"required"`
	ValidBefore       string         `json:"validBefore" validate:"required"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// PaymentRequired is the body (and encoded X-PAYMENT header) of a 402 response.
type PaymentRequired struct {
	X402Version X402Version           `json:"x402Version" validate:"eq=1"`
	Accepts     []PaymentRequirements `json:"accepts" validate:"required,min=1,dive"`
	Error       string                `json:"error,omitempty"`
}

// PaymentPayload is the payment a caller submits for a resource.
type PaymentPayload struct {
	X402Version X402Version `json:"x402Version" validate:"omitempty,eq=1"`
	Scheme      Scheme      `json:"scheme" validate:"required"`
	Network     Network     `json:"network" validate:"required"`
	Payload     Payload     `json:"payload"`
}

// Payload is the scheme specific part of the payment payload.
type Payload struct {
	SignedTransaction *SignedTransaction `json:"signedTransaction" validate:"required"`
	Nonce             string             `json:"nonce" validate:"required,max=256"`
}

// SignedTransaction is a Hive transaction in condenser API JSON form.
type SignedTransaction struct {
	RefBlockNum    uint16            `json:"ref_block_num"`
	RefBlockPrefix uint32            `json:"ref_block_prefix"`
	Expiration     string            `json:"expiration" validate:"required"`
	Operations     []Operation       `json:"operations"`
	Extensions     []json.RawMessage `json:"extensions"`
	Signatures     []string          `json:"signatures"`
}

// Operation is a Hive operation, encoded on the wire as a [name, body] pair.
// Transfer bodies are decoded, every other body is kept verbatim.
type Operation struct {
	Type     string
	Transfer *TransferOperation
	Body     json.RawMessage
}

// TransferOperation is the body of a transfer operation.
type TransferOperation struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Memo   string `json:"memo"`
}

// NewTransferOperation wraps a transfer body into an operation.
func NewTransferOperation(t TransferOperation) Operation {
	return Operation{Type: OperationTransfer, Transfer: &t}
}

// MarshalJSON encodes the operation as a [name, body] pair.
func (o Operation) MarshalJSON() ([]byte, error) {
	var body any = o.Body
	if o.Transfer != nil {
		body = o.Transfer
	} else if o.Body == nil {
		body = struct{}{}
	}
	return json.Marshal([]any{o.Type, body})
}

// UnmarshalJSON decodes a [name, body] pair.
func (o *Operation) UnmarshalJSON(data []byte) error {

	// Decode the outer pair
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("operation must be a [name, body] pair: %w", err)
	}
	if len(pair) != 2 {
		return errors.New("operation must be a [name, body] pair")
	}

	// Decode the operation name
	var name string
	if err := json.Unmarshal(pair[0], &name); err != nil {
		return fmt.Errorf("operation name must be a string: %w", err)
	}

	op := Operation{Type: name}
	if name == OperationTransfer {
		var transfer TransferOperation
		if err := json.Unmarshal(pair[1], &transfer); err != nil {
			return fmt.Errorf("invalid transfer operation: %w", err)
		}
		op.Transfer = &transfer
	} else {
		op.Body = pair[1]
	}

	*o = op
	return nil
}

// VerifyResponse is the response of the verify operation.
type VerifyResponse struct {
	IsValid       bool          `json:"isValid"`
	InvalidReason InvalidReason `json:"invalidReason,omitempty"`
	Payer         string        `json:"payer,omitempty"`
}

// SettleResponse is the response of the settle operation.
type SettleResponse struct {
	Success     bool        `json:"success" validate:"required_without=ErrorReason"`
	TxID        string      `json:"txId,omitempty"`
	BlockNum    uint32      `json:"blockNum,omitempty"`
	ErrorReason ErrorReason `json:"errorReason,omitempty"`
	Payer       string      `json:"payer,omitempty"`
}

// WeightedAuth is a [key or account, weight] pair of an authority.
type WeightedAuth struct {
	Name   string
	Weight uint32
}

// MarshalJSON encodes the pair as a JSON array.
func (w WeightedAuth) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{w.Name, w.Weight})
}

// UnmarshalJSON decodes a [name, weight] JSON array.
func (w *WeightedAuth) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return errors.New("authority entry must be a [name, weight] pair")
	}
	if err := json.Unmarshal(pair[0], &w.Name); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &w.Weight)
}

// Authority is a Hive account authority.
type Authority struct {
	WeightThreshold uint32         `json:"weight_threshold"`
	AccountAuths    []WeightedAuth `json:"account_auths"`
	KeyAuths        []WeightedAuth `json:"key_auths"`
}

// Account is the subset of a Hive account record the facilitator needs.
type Account struct {
	Name    string    `json:"name"`
	Active  Authority `json:"active"`
	MemoKey string    `json:"memo_key,omitempty"`
}

// TransactionConfirmation is returned by a synchronous broadcast.
type TransactionConfirmation struct {
	ID       string `json:"id"`
	BlockNum uint32 `json:"block_num"`
	TrxNum   uint32 `json:"trx_num"`
	Expired  bool   `json:"expired"`
}

// DynamicGlobalProperties is the subset of the chain head state used to
// reference a recent block from a new transaction.
type DynamicGlobalProperties struct {
	HeadBlockNumber uint32 `json:"head_block_number"`
	HeadBlockID     string `json:"head_block_id"`
	Time            string `json:"time"`
}

// SettlementEvent is published after a payment has been broadcast.
type SettlementEvent struct {
	TxID      string    `json:"txId"`
	BlockNum  uint32    `json:"blockNum"`
	Payer     string    `json:"payer"`
	PayTo     string    `json:"payTo"`
	Amount    string    `json:"amount"`
	Resource  string    `json:"resource"`
	Nonce     string    `json:"nonce"`
	Network   Network   `json:"network"`
	SettledAt time.Time `json:"settledAt"`
}

// SupportedNetworksResponse is the response of the supported networks operation.
type SupportedNetworksResponse struct {
	Networks []Network `json:"networks"`
}
