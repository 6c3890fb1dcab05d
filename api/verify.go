package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/raid-guild/hive-x402-facilitator-go/core"
	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

// Verify checks a payment without touching the ledger state.
func (h *Handler) Verify(c *gin.Context) {

	// Decode the request body
	paymentPayload, paymentRequirements, err := decodeRequest(c)
	if err != nil {
		status, reason := h.rejection(c, err)
		c.AbortWithStatusJSON(status, types.VerifyResponse{
			IsValid:       false,
			InvalidReason: reason,
		})
		return
	}

	// Check the scheme and network
	if reason := checkProtocol(paymentPayload, paymentRequirements); reason != "" {
		c.JSON(http.StatusOK, types.VerifyResponse{
			IsValid:       false,
			InvalidReason: reason,
		})
		return
	}

	// Verify the payment
	response, err := h.facilitator.VerifyExact(c.Request.Context(), paymentPayload.Payload, paymentRequirements)
	if err != nil {
		logger := h.logger.WithError(err).WithField("requestId", c.GetString(requestIDKey))
		if errors.Is(err, core.ErrUpstreamUnavailable) {
			logger.Warn("Verification failed, ledger unavailable")
			c.JSON(http.StatusServiceUnavailable, types.VerifyResponse{
				IsValid:       false,
				InvalidReason: types.InvalidReasonVerificationUnavailable,
			})
			return
		}
		logger.Error("Verification failed")
		c.JSON(http.StatusInternalServerError, types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonVerificationInternalError,
		})
		return
	}

	c.JSON(http.StatusOK, response)
}
