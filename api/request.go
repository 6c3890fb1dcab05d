package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/raid-guild/hive-x402-facilitator-go/types"
	"github.com/raid-guild/hive-x402-facilitator-go/utils"
)

// decodeRequest decodes and validates a verify or settle request body. The
// returned error is a StatusError wrapping a *requestError.
func decodeRequest(c *gin.Context) (types.PaymentPayload, types.PaymentRequirements, error) {

	// Read the request body
	body, err := c.GetRawData()
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return types.PaymentPayload{}, types.PaymentRequirements{}, rejectRequest(http.StatusRequestEntityTooLarge, types.InvalidReasonRequestBodyTooLarge, err)
		}
		return types.PaymentPayload{}, types.PaymentRequirements{}, rejectRequest(http.StatusBadRequest, types.InvalidReasonInvalidRequestBody, err)
	}

	// Decode the request body
	var requestBody types.RequestBody
	if err := json.Unmarshal(body, &requestBody); err != nil {
		return types.PaymentPayload{}, types.PaymentRequirements{}, rejectRequest(http.StatusBadRequest, types.InvalidReasonInvalidRequestBody, err)
	}

	// Check the x402 version
	if requestBody.X402Version != 0 && requestBody.X402Version != types.X402Version1 {
		return types.PaymentPayload{}, types.PaymentRequirements{}, rejectRequest(http.StatusBadRequest, types.InvalidReasonUnsupportedVersion, fmt.Errorf("version %d", requestBody.X402Version))
	}

	// Check the payment payload and requirements are present
	if isEmpty(requestBody.PaymentPayload) || isEmpty(requestBody.PaymentRequirements) {
		return types.PaymentPayload{}, types.PaymentRequirements{}, rejectRequest(http.StatusBadRequest, types.InvalidReasonMissingFields, nil)
	}

	// Unmarshal the payment payload
	var paymentPayload types.PaymentPayload
	if err := json.Unmarshal(requestBody.PaymentPayload, &paymentPayload); err != nil {
		return types.PaymentPayload{}, types.PaymentRequirements{}, rejectRequest(http.StatusBadRequest, types.InvalidReasonInvalidPaymentPayload, err)
	}
	if err := paymentPayload.Validate(); err != nil {
		return types.PaymentPayload{}, types.PaymentRequirements{}, rejectRequest(http.StatusBadRequest, types.InvalidReasonInvalidPaymentPayload, err)
	}

	// Unmarshal the payment requirements
	var paymentRequirements types.PaymentRequirements
	if err := json.Unmarshal(requestBody.PaymentRequirements, &paymentRequirements); err != nil {
		return types.PaymentPayload{}, types.PaymentRequirements{}, rejectRequest(http.StatusBadRequest, types.InvalidReasonInvalidRequirements, err)
	}
	if err := paymentRequirements.Validate(); err != nil {
		return types.PaymentPayload{}, types.PaymentRequirements{}, rejectRequest(http.StatusBadRequest, types.InvalidReasonInvalidRequirements, err)
	}

	return paymentPayload, paymentRequirements, nil
}

// checkProtocol matches the payload against the requirements and this
// facilitator's scheme and network. It returns an empty reason on success.
func checkProtocol(p types.PaymentPayload, r types.PaymentRequirements) types.InvalidReason {

	// Check the payment network is served here
	if r.Network != types.NetworkHiveMainnet {
		return types.InvalidReasonUnsupportedNetwork(r.Network)
	}

	// Check the payment scheme
	if r.Scheme != types.SchemeExact || p.Scheme != r.Scheme {
		return types.InvalidReasonSchemeMismatch
	}

	// Check the payment network
	if p.Network != r.Network {
		return types.InvalidReasonNetworkMismatch
	}

	return ""
}

func isEmpty(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// requestError is a request rejected before verification. Reason is sent
// to the client, cause is only logged.
type requestError struct {
	reason types.InvalidReason
	cause  error
}

func (e *requestError) Error() string {
	if e.cause == nil {
		return string(e.reason)
	}
	return fmt.Sprintf("%s: %v", e.reason, e.cause)
}

func (e *requestError) Unwrap() error {
	return e.cause
}

func rejectRequest(status int, reason types.InvalidReason, cause error) error {
	return utils.NewStatusError(&requestError{reason: reason, cause: cause}, status)
}

// rejection logs a decodeRequest error and returns the status and reason to
// respond with.
func (h *Handler) rejection(c *gin.Context, err error) (int, types.InvalidReason) {
	h.logger.WithError(err).WithField("requestId", c.GetString(requestIDKey)).Debug("Rejected request")

	reason := types.InvalidReasonInvalidRequestBody
	var re *requestError
	if errors.As(err, &re) {
		reason = re.reason
	}
	return utils.StatusCode(err, http.StatusBadRequest), reason
}
