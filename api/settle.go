package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/raid-guild/hive-x402-facilitator-go/core"
	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

// Settle broadcasts a verified payment and consumes its nonce.
func (h *Handler) Settle(c *gin.Context) {

	// Decode the request body
	paymentPayload, paymentRequirements, err := decodeRequest(c)
	if err != nil {
		status, reason := h.rejection(c, err)
		c.AbortWithStatusJSON(status, types.SettleResponse{
			Success:     false,
			ErrorReason: types.ErrorReason(reason),
		})
		return
	}

	// Check the scheme and network
	if reason := checkProtocol(paymentPayload, paymentRequirements); reason != "" {
		c.JSON(http.StatusOK, types.SettleResponse{
			Success:     false,
			ErrorReason: types.ErrorReasonVerificationFailed(reason),
		})
		return
	}

	// Settle the payment
	response, err := h.facilitator.SettleExact(c.Request.Context(), paymentPayload.Payload, paymentRequirements)
	if err != nil {
		logger := h.logger.WithError(err).WithField("requestId", c.GetString(requestIDKey))
		if errors.Is(err, core.ErrUpstreamUnavailable) {
			logger.Warn("Settlement failed, ledger unavailable")
			c.JSON(http.StatusServiceUnavailable, types.SettleResponse{
				Success:     false,
				ErrorReason: types.ErrorReasonSettlementUnavailable,
			})
			return
		}
		logger.Error("Settlement failed")
		c.JSON(http.StatusInternalServerError, types.SettleResponse{
			Success:     false,
			ErrorReason: types.ErrorReasonSettlementInternalError,
		})
		return
	}

	c.JSON(http.StatusOK, response)
}
