package types

import "fmt"

// X402Version is the x402 version enum.
type X402Version int

const (
	X402Version1 X402Version = 1
)

// Scheme is the scheme enum.
type Scheme string

const (
	SchemeExact Scheme = "exact"
)

// Network is the network enum.
type Network string

const (
	NetworkHiveMainnet Network = "hive:mainnet"
)

// Asset symbols.
const (
	AssetHBD = "HBD"
)

// Header names used by the payment handshake.
const (
	HeaderPayment         = "X-PAYMENT"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
)

// InvalidReason is a human readable reason a payment failed verification.
// Callers match on these strings, so the wording is part of the protocol.
type InvalidReason string

const (
	InvalidReasonMissingFields             InvalidReason = "Missing required fields"
	InvalidReasonInvalidRequestBody        InvalidReason = "Invalid request body"
	InvalidReasonRequestBodyTooLarge       InvalidReason = "Request body too large"
	InvalidReasonUnsupportedVersion        InvalidReason = "Unsupported x402 version"
	InvalidReasonInvalidPaymentPayload     InvalidReason = "Invalid payment payload"
	InvalidReasonInvalidRequirements       InvalidReason = "Invalid payment requirements"
	InvalidReasonNonceSpent                InvalidReason = "Nonce already spent (replay detected)"
	InvalidReasonSchemeMismatch            InvalidReason = "Scheme mismatch"
	InvalidReasonNetworkMismatch           InvalidReason = "Network mismatch"
	InvalidReasonExpectedSingleTransfer    InvalidReason = "Expected exactly one transfer operation"
	InvalidReasonWrongAsset                InvalidReason = "Payment must be in " + AssetHBD
	InvalidReasonTransactionExpired        InvalidReason = "Transaction has expired"
	InvalidReasonInvalidExpiration         InvalidReason = "Invalid transaction expiration"
	InvalidReasonRequirementsExpired       InvalidReason = "Payment requirements have expired (validBefore)"
	InvalidReasonInvalidValidBefore        InvalidReason = "Invalid validBefore"
	InvalidReasonNoSignatures              InvalidReason = "No signatures present"
	InvalidReasonInvalidSignature          InvalidReason = "Invalid signature"
	InvalidReasonUnsupportedTransaction    InvalidReason = "Transaction cannot be serialized"
	InvalidReasonVerificationInternalError InvalidReason = "Verification error: internal error"
	InvalidReasonVerificationUnavailable   InvalidReason = "Verification error: ledger network unavailable"
)

// InvalidReasonUnsupportedNetwork reports a network this facilitator does not serve.
func InvalidReasonUnsupportedNetwork(network Network) InvalidReason {
	return InvalidReason(fmt.Sprintf("Unsupported network: %s", network))
}

// InvalidReasonRecipientMismatch reports a transfer sent to the wrong account.
func InvalidReasonRecipientMismatch(expected, got string) InvalidReason {
	return InvalidReason(fmt.Sprintf("Recipient mismatch: expected %s, got %s", expected, got))
}

// InvalidReasonInvalidAmount reports a transfer amount that is not a valid HBD string.
func InvalidReasonInvalidAmount(amount string) InvalidReason {
	return InvalidReason(fmt.Sprintf("Invalid payment amount: %s", amount))
}

// InvalidReasonInvalidRequiredAmount reports a requirement amount that is not a valid HBD string.
func InvalidReasonInvalidRequiredAmount(amount string) InvalidReason {
	return InvalidReason(fmt.Sprintf("Invalid required amount: %s", amount))
}

// InvalidReasonInsufficientPayment reports a transfer below the required amount.
func InvalidReasonInsufficientPayment(required, got string) InvalidReason {
	return InvalidReason(fmt.Sprintf("Insufficient payment: required %s, got %s", required, got))
}

// InvalidReasonAccountNotFound reports a sender that does not exist on chain.
func InvalidReasonAccountNotFound(account string) InvalidReason {
	return InvalidReason(fmt.Sprintf("Account @%s not found on chain", account))
}

// InvalidReasonKeyMismatch reports a signature that recovers to a key the sender does not hold.
func InvalidReasonKeyMismatch(account string) InvalidReason {
	return InvalidReason(fmt.Sprintf("Signature does not match any active key of @%s", account))
}

// ErrorReason is a human readable reason a settlement failed.
type ErrorReason string

const (
	ErrorReasonMissingFields           ErrorReason = "Missing required fields"
	ErrorReasonNonceSpent              ErrorReason = "Nonce already spent (replay detected)"
	ErrorReasonSettlementInProgress    ErrorReason = "Settlement already in progress for nonce"
	ErrorReasonSettlementInternalError ErrorReason = "Settlement error: internal error"
	ErrorReasonSettlementUnavailable   ErrorReason = "Settlement error: ledger network unavailable"
)

// ErrorReasonVerificationFailed wraps the verifier's reason for a rejected settlement.
func ErrorReasonVerificationFailed(reason InvalidReason) ErrorReason {
	return ErrorReason(fmt.Sprintf("Verification failed: %s", reason))
}

// ErrorReasonBroadcastRejected reports a transaction the ledger refused to accept.
func ErrorReasonBroadcastRejected(message string) ErrorReason {
	return ErrorReason(fmt.Sprintf("Broadcast rejected: %s", message))
}
