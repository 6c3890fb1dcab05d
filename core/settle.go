package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/raid-guild/hive-x402-facilitator-go/clients"
	"github.com/raid-guild/hive-x402-facilitator-go/events"
	"github.com/raid-guild/hive-x402-facilitator-go/hive"
	"github.com/raid-guild/hive-x402-facilitator-go/store"
	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

// publishTimeout bounds how long a settlement waits on the event publisher.
const publishTimeout = 5 * time.Second

// FacilitatorConfig is the configuration of a Facilitator.
type FacilitatorConfig struct {
	ChainID   hive.ChainID
	Client    clients.HiveClient
	Store     store.NonceStore
	Publisher events.Publisher
	Logger    *logrus.Entry
	Now       func() time.Time
}

// Facilitator verifies and settles exact HBD payments. A nonce is consumed
// only after its transfer has been broadcast, and at most one settlement per
// nonce runs at a time within the process.
type Facilitator struct {
	config   FacilitatorConfig
	logger   *logrus.Entry
	inFlight sync.Map
}

// NewFacilitator creates a facilitator.
func NewFacilitator(c FacilitatorConfig) *Facilitator {
	if c.Publisher == nil {
		c.Publisher = events.NopPublisher{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	logger := c.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Facilitator{
		config: c,
		logger: logger.WithField("prefix", "facilitator"),
	}
}

func (f *Facilitator) verifyConfig() VerifyExactConfig {
	return VerifyExactConfig{
		ChainID: f.config.ChainID,
		Client:  f.config.Client,
		Now:     f.config.Now,
	}
}

// VerifyExact verifies the payment and rejects nonces that were already settled.
func (f *Facilitator) VerifyExact(ctx context.Context, p types.Payload, r types.PaymentRequirements) (types.VerifyResponse, error) {

	// Verify the nonce is present
	if p.Nonce == "" {
		return types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonMissingFields,
		}, nil
	}

	// Verify the nonce has not been spent
	spent, err := f.config.Store.IsSpent(ctx, p.Nonce)
	if err != nil {
		return types.VerifyResponse{}, fmt.Errorf("failed to check nonce: %w", err)
	}
	if spent {
		return types.VerifyResponse{
			IsValid:       false,
			InvalidReason: types.InvalidReasonNonceSpent,
		}, nil
	}

	return VerifyExact(ctx, f.verifyConfig(), NewVerifyExactParams(p, r))
}

// SettleExact re-verifies the payment, broadcasts the transfer and consumes
// the nonce.
func (f *Facilitator) SettleExact(ctx context.Context, p types.Payload, r types.PaymentRequirements) (types.SettleResponse, error) {

	// Verify the nonce and transaction are present
	if p.Nonce == "" || p.SignedTransaction == nil {
		return types.SettleResponse{
			Success:     false,
			ErrorReason: types.ErrorReasonMissingFields,
		}, nil
	}

	// Verify the nonce has not been spent
	spent, err := f.config.Store.IsSpent(ctx, p.Nonce)
	if err != nil {
		return types.SettleResponse{}, fmt.Errorf("failed to check nonce: %w", err)
	}
	if spent {
		return types.SettleResponse{
			Success:     false,
			ErrorReason: types.ErrorReasonNonceSpent,
		}, nil
	}

	// Verify no other settlement of this nonce is running
	if _, busy := f.inFlight.LoadOrStore(p.Nonce, struct{}{}); busy {
		return types.SettleResponse{
			Success:     false,
			ErrorReason: types.ErrorReasonSettlementInProgress,
		}, nil
	}
	defer f.inFlight.Delete(p.Nonce)

	// Verify the nonce was not spent by a settlement that finished in between
	spent, err = f.config.Store.IsSpent(ctx, p.Nonce)
	if err != nil {
		return types.SettleResponse{}, fmt.Errorf("failed to check nonce: %w", err)
	}
	if spent {
		return types.SettleResponse{
			Success:     false,
			ErrorReason: types.ErrorReasonNonceSpent,
		}, nil
	}

	// Verify the payment again, the claim may have expired since /verify
	verification, err := VerifyExact(ctx, f.verifyConfig(), NewVerifyExactParams(p, r))
	if err != nil {
		return types.SettleResponse{}, err
	}
	if !verification.IsValid {
		return types.SettleResponse{
			Success:     false,
			ErrorReason: types.ErrorReasonVerificationFailed(verification.InvalidReason),
		}, nil
	}
	payer := verification.Payer

	// Broadcast the transaction
	confirmation, err := f.config.Client.BroadcastTransaction(ctx, p.SignedTransaction)
	if err != nil {
		var rpcErr *clients.RPCError
		if errors.As(err, &rpcErr) {
			f.logger.WithFields(logrus.Fields{
				"nonce": p.Nonce,
				"payer": payer,
				"error": rpcErr.Message,
			}).Info("Broadcast rejected")
			return types.SettleResponse{
				Success:     false,
				ErrorReason: types.ErrorReasonBroadcastRejected(rpcErr.Message),
				Payer:       payer,
			}, nil
		}
		// Return an error that will be handled as a service unavailable error
		return types.SettleResponse{}, fmt.Errorf("%w: failed to broadcast transaction: %w", ErrUpstreamUnavailable, err)
	}

	// Verify the transaction made it into a block
	if confirmation.Expired {
		return types.SettleResponse{
			Success:     false,
			ErrorReason: types.ErrorReasonBroadcastRejected("transaction expired before inclusion"),
			Payer:       payer,
		}, nil
	}

	logger := f.logger.WithFields(logrus.Fields{
		"nonce":    p.Nonce,
		"payer":    payer,
		"txId":     confirmation.ID,
		"blockNum": confirmation.BlockNum,
	})

	// The transfer is on chain, bookkeeping failures below are only logged
	bookkeeping := context.WithoutCancel(ctx)

	// Mark the nonce as spent
	if err := f.config.Store.MarkSpent(bookkeeping, p.Nonce); err != nil {
		logger.WithError(err).Error("Failed to mark nonce spent after broadcast")
	}

	// Publish the settlement event
	f.publish(bookkeeping, logger, types.SettlementEvent{
		TxID:      confirmation.ID,
		BlockNum:  confirmation.BlockNum,
		Payer:     payer,
		PayTo:     r.PayTo,
		Amount:    p.SignedTransaction.Operations[0].Transfer.Amount,
		Resource:  r.Resource,
		Nonce:     p.Nonce,
		Network:   r.Network,
		SettledAt: f.config.Now().UTC(),
	})

	logger.Info("Payment settled")

	// Return settle response success with the transaction id
	return types.SettleResponse{
		Success:  true,
		TxID:     confirmation.ID,
		BlockNum: confirmation.BlockNum,
		Payer:    payer,
	}, nil
}

func (f *Facilitator) publish(ctx context.Context, logger *logrus.Entry, event types.SettlementEvent) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := f.config.Publisher.PublishSettlement(ctx, event); err != nil {
		logger.WithError(err).Warn("Failed to publish settlement event")
	}
}

// Ready reports whether the ledger is reachable.
func (f *Facilitator) Ready(ctx context.Context) (types.DynamicGlobalProperties, error) {
	props, err := f.config.Client.GetDynamicGlobalProperties(ctx)
	if err != nil {
		return types.DynamicGlobalProperties{}, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	return props, nil
}
