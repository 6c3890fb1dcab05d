package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/raid-guild/hive-x402-facilitator-go/clients"
	"github.com/raid-guild/hive-x402-facilitator-go/hive"
	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

// ErrUpstreamUnavailable is returned when the ledger could not be reached.
// It is a fault of the facilitator, not a property of the payment.
var ErrUpstreamUnavailable = errors.New("ledger network unavailable")

// VerifyExactConfig is the configuration for the verify exact operation.
type VerifyExactConfig struct {
	ChainID hive.ChainID
	Client  clients.HiveClient
	Now     func() time.Time
}

// VerifyExactParams are the parameters for the verify exact operation.
type VerifyExactParams struct {
	Transaction       *types.SignedTransaction
	PayTo             string
	MaxAmountRequired string
	ValidBefore       string
}

// NewVerifyExactParams extracts the verify parameters from a payment.
func NewVerifyExactParams(p types.Payload, r types.PaymentRequirements) VerifyExactParams {
	return VerifyExactParams{
		Transaction:       p.SignedTransaction,
		PayTo:             r.PayTo,
		MaxAmountRequired: r.MaxAmountRequired,
		ValidBefore:       r.ValidBefore,
	}
}

// VerifyExact verifies that a signed transfer satisfies the requirements.
// Checks run in a fixed order and the first failure is reported.
func VerifyExact(ctx context.Context, c VerifyExactConfig, p VerifyExactParams) (types.VerifyResponse, error) {

	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}

	// Verify the transaction is present
	tx := p.Transaction
	if tx == nil {
		return types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonMissingFields,
		}, nil
	}

	// Verify the transaction holds exactly one transfer
	if len(tx.Operations) != 1 || tx.Operations[0].Type != types.OperationTransfer || tx.Operations[0].Transfer == nil {
		return types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonExpectedSingleTransfer,
		}, nil
	}
	transfer := tx.Operations[0].Transfer

	// Verify the transfer recipient matches the required pay to account
	if transfer.To != p.PayTo {
		return types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonRecipientMismatch(p.PayTo, transfer.To),
		}, nil
	}

	// Verify the transfer is denominated in HBD
	if !strings.HasSuffix(transfer.Amount, " "+types.AssetHBD) {
		return types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonWrongAsset,
		}, nil
	}

	// Convert the transfer amount
	paid, err := types.ParseHBD(transfer.Amount)
	if err != nil {
		return types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonInvalidAmount(transfer.Amount),
		}, nil
	}

	// Convert the required amount
	required, err := types.ParseHBD(p.MaxAmountRequired)
	if err != nil {
		return types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonInvalidRequiredAmount(p.MaxAmountRequired),
		}, nil
	}

	// Verify the transfer amount covers the required amount
	if paid.LessThan(required) {
		return types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonInsufficientPayment(p.MaxAmountRequired, transfer.Amount),
		}, nil
	}

	// Convert the transaction expiration
	expiration, err := types.ParseHiveTime(tx.Expiration)
	if err != nil {
		return types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonInvalidExpiration,
		}, nil
	}

	// Verify the transaction has not expired
	if !expiration.After(now) {
		return types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonTransactionExpired,
		}, nil
	}

	// Convert the requirements valid before time
	validBefore, err := time.Parse(time.RFC3339, p.ValidBefore)
	if err != nil {
		return types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonInvalidValidBefore,
		}, nil
	}

	// Verify the requirements have not expired
	if !validBefore.After(now) {
		return types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonRequirementsExpired,
		}, nil
	}

	// Verify the transaction is signed
	if len(tx.Signatures) == 0 {
		return types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonNoSignatures,
		}, nil
	}

	// Compute the signing digest
	digest, err := hive.Digest(tx, c.ChainID)
	if err != nil {
		return types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonUnsupportedTransaction,
		}, nil
	}

	// Recover the signing key
	signer, err := hive.RecoverPublicKey(tx.Signatures[0], digest)
	if err != nil {
		return types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonInvalidSignature,
		}, nil
	}

	// Verify the ledger client is configured
	if c.Client == nil {
		// Return an error that will be handled as an internal server error
		return types.VerifyResponse{}, errors.New("hive client is not configured")
	}

	// Get the sender account from the ledger
	accounts, err := c.Client.GetAccounts(ctx, []string{transfer.From})
	if err != nil {
		// Return an error that will be handled as a service unavailable error
		return types.VerifyResponse{}, fmt.Errorf("%w: failed to get account @%s: %w", ErrUpstreamUnavailable, transfer.From, err)
	}

	// Verify the sender account exists
	idx := slices.IndexFunc(accounts, func(a types.Account) bool { return a.Name == transfer.From })
	if idx < 0 {
		return types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonAccountNotFound(transfer.From),
		}, nil
	}

	// Verify the signing key is one of the sender's active keys
	if !hasActiveKey(accounts[idx], signer) {
		return types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonKeyMismatch(transfer.From),
		}, nil
	}

	// Return verify response valid with the payer account
	return types.VerifyResponse{
		IsValid: true,
		Payer:   transfer.From,
	}, nil
}

func hasActiveKey(account types.Account, key string) bool {
	for _, auth := range account.Active.KeyAuths {
		if auth.Name == key {
			return true
		}
	}
	return false
}
