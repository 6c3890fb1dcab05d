// Package paywall gates gin routes behind an HBD payment settled through a
// facilitator.
package paywall

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/raid-guild/hive-x402-facilitator-go/facilitatorclient"
	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

// Gin context keys set on a paid request.
const (
	ContextKeyPayer = "x402Payer"
	ContextKeyTxID  = "x402TxId"
)

// Facilitator verifies and settles payments on behalf of the paywall.
type Facilitator interface {
	Verify(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (types.VerifyResponse, error)
	Settle(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (types.SettleResponse, error)
}

// Options is the paywall configuration.
type Options struct {
	Description    string
	MimeType       string
	Resource       string
	Validity       time.Duration
	FacilitatorURL string
	Facilitator    Facilitator
	Logger         *logrus.Entry
	Now            func() time.Time
}

// Option configures the paywall.
type Option func(*Options)

// WithDescription sets the resource description advertised in the challenge.
func WithDescription(description string) Option {
	return func(options *Options) {
		options.Description = description
	}
}

// WithMimeType sets the response mime type advertised in the challenge.
func WithMimeType(mimeType string) Option {
	return func(options *Options) {
		options.MimeType = mimeType
	}
}

// WithResource overrides the resource, which defaults to the request URI.
func WithResource(resource string) Option {
	return func(options *Options) {
		options.Resource = resource
	}
}

// WithValidity sets how long issued requirements stay valid.
func WithValidity(validity time.Duration) Option {
	return func(options *Options) {
		options.Validity = validity
	}
}

// WithFacilitatorURL points the paywall at a facilitator over HTTP.
func WithFacilitatorURL(url string) Option {
	return func(options *Options) {
		options.FacilitatorURL = url
	}
}

// WithFacilitator sets the facilitator used to verify and settle payments.
func WithFacilitator(facilitator Facilitator) Option {
	return func(options *Options) {
		options.Facilitator = facilitator
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(options *Options) {
		options.Logger = logger
	}
}

// PaymentMiddleware requires a settled payment of amount to payTo before the
// next handler runs.
func PaymentMiddleware(amount, payTo string, opts ...Option) gin.HandlerFunc {
	options := &Options{
		Validity: types.DefaultRequirementsValidity,
		Now:      time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.Facilitator == nil {
		options.Facilitator = facilitatorclient.NewFacilitatorClient(options.FacilitatorURL, "")
	}
	if options.Logger == nil {
		options.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger := options.Logger.WithField("prefix", "paywall")

	return func(c *gin.Context) {
		resource := options.Resource
		if resource == "" {
			resource = c.Request.URL.RequestURI()
		}

		requirements := types.NewPaymentRequirements(amount, payTo, resource, options.Validity, options.Now())
		requirements.Description = options.Description
		requirements.MimeType = options.MimeType

		// Challenge callers without a payment
		header := c.GetHeader(types.HeaderPayment)
		if header == "" {
			paymentRequired := types.PaymentRequired{
				X402Version: types.X402Version1,
				Accepts:     []types.PaymentRequirements{requirements},
			}
			encoded, err := types.EncodePaymentRequired(paymentRequired)
			if err != nil {
				logger.WithError(err).Error("failed to encode payment requirements")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Payment processing error"})
				return
			}
			c.Header(types.HeaderPayment, encoded)
			c.AbortWithStatusJSON(http.StatusPaymentRequired, paymentRequired)
			return
		}

		payload, err := types.DecodePayment(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Malformed x-payment header"})
			return
		}

		ctx := c.Request.Context()

		// Verify the payment
		verifyResp, err := options.Facilitator.Verify(ctx, payload, requirements)
		if err != nil {
			abortWithProcessingError(c, logger, err)
			return
		}
		if !verifyResp.IsValid {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":  "Payment verification failed",
				"reason": verifyResp.InvalidReason,
			})
			return
		}

		// Settle the payment
		settleResp, err := options.Facilitator.Settle(ctx, payload, requirements)
		if err != nil {
			abortWithProcessingError(c, logger, err)
			return
		}
		if !settleResp.Success {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":  "Payment settlement failed",
				"reason": settleResp.ErrorReason,
			})
			return
		}

		encoded, err := types.EncodeSettleResponse(settleResp)
		if err != nil {
			abortWithProcessingError(c, logger, err)
			return
		}
		c.Header(types.HeaderPaymentResponse, encoded)
		c.Set(ContextKeyPayer, settleResp.Payer)
		c.Set(ContextKeyTxID, settleResp.TxID)

		logger.WithFields(logrus.Fields{
			"payer":    settleResp.Payer,
			"txId":     settleResp.TxID,
			"resource": resource,
		}).Info("payment settled")

		c.Next()
	}
}

func abortWithProcessingError(c *gin.Context, logger *logrus.Entry, err error) {
	if errors.Is(err, context.Canceled) {
		c.Abort()
		return
	}
	logger.WithError(err).Error("payment processing failed")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":  "Payment processing error",
		"reason": err.Error(),
	})
}
