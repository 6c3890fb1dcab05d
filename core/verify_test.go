package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raid-guild/hive-x402-facilitator-go/hive"
	"github.com/raid-guild/hive-x402-facilitator-go/hive/hivetest"
	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

func mainnetChainID(t *testing.T) hive.ChainID {
	t.Helper()
	id, err := hive.ParseChainID(hive.MainnetChainID)
	require.NoError(t, err)
	return id
}

func requirements(amount string) VerifyExactParams {
	return VerifyExactParams{
		PayTo:             "bob",
		MaxAmountRequired: amount,
		ValidBefore:       time.Now().Add(5 * time.Minute).UTC().Format(time.RFC3339),
	}
}

func TestVerifyExact(t *testing.T) {
	chainID := mainnetChainID(t)
	key := hivetest.NewKey(t)
	other := hivetest.NewKey(t)

	client := hivetest.NewMockClient()
	client.AddAccount("alice", key.Public)

	config := VerifyExactConfig{ChainID: chainID, Client: client}

	tests := []struct {
		name   string
		params func() VerifyExactParams
		valid  bool
		reason types.InvalidReason
	}{
		{
			name: "valid payment",
			params: func() VerifyExactParams {
				p := requirements("0.050 HBD")
				p.Transaction = hivetest.SignedTransfer(t, key, chainID, "alice", "bob", "0.050 HBD", time.Minute)
				return p
			},
			valid: true,
		},
		{
			name: "overpayment is accepted",
			params: func() VerifyExactParams {
				p := requirements("0.050 HBD")
				p.Transaction = hivetest.SignedTransfer(t, key, chainID, "alice", "bob", "1.000 HBD", time.Minute)
				return p
			},
			valid: true,
		},
		{
			name: "missing transaction",
			params: func() VerifyExactParams {
				return requirements("0.050 HBD")
			},
			reason: types.InvalidReasonMissingFields,
		},
		{
			name: "two operations",
			params: func() VerifyExactParams {
				p := requirements("0.050 HBD")
				tx := hivetest.TransferTransaction("alice", "bob", "0.050 HBD", "", time.Minute)
				tx.Operations = append(tx.Operations, tx.Operations[0])
				hivetest.Sign(t, tx, key, chainID)
				p.Transaction = tx
				return p
			},
			reason: types.InvalidReasonExpectedSingleTransfer,
		},
		{
			name: "non transfer operation",
			params: func() VerifyExactParams {
				p := requirements("0.050 HBD")
				tx := hivetest.TransferTransaction("alice", "bob", "0.050 HBD", "", time.Minute)
				tx.Operations = []types.Operation{{Type: "vote", Body: []byte(`{}`)}}
				p.Transaction = tx
				return p
			},
			reason: types.InvalidReasonExpectedSingleTransfer,
		},
		{
			name: "wrong recipient",
			params: func() VerifyExactParams {
				p := requirements("0.050 HBD")
				p.Transaction = hivetest.SignedTransfer(t, key, chainID, "alice", "mallory", "0.050 HBD", time.Minute)
				return p
			},
			reason: types.InvalidReasonRecipientMismatch("bob", "mallory"),
		},
		{
			name: "wrong asset",
			params: func() VerifyExactParams {
				p := requirements("0.050 HBD")
				p.Transaction = hivetest.SignedTransfer(t, key, chainID, "alice", "bob", "0.050 HIVE", time.Minute)
				return p
			},
			reason: types.InvalidReasonWrongAsset,
		},
		{
			name: "insufficient amount",
			params: func() VerifyExactParams {
				p := requirements("0.050 HBD")
				p.Transaction = hivetest.SignedTransfer(t, key, chainID, "alice", "bob", "0.001 HBD", time.Minute)
				return p
			},
			reason: types.InvalidReasonInsufficientPayment("0.050 HBD", "0.001 HBD"),
		},
		{
			name: "malformed amount",
			params: func() VerifyExactParams {
				p := requirements("0.050 HBD")
				p.Transaction = hivetest.SignedTransfer(t, key, chainID, "alice", "bob", "0.05 HBD", time.Minute)
				return p
			},
			reason: types.InvalidReasonInvalidAmount("0.05 HBD"),
		},
		{
			name: "malformed required amount",
			params: func() VerifyExactParams {
				p := requirements("five")
				p.Transaction = hivetest.SignedTransfer(t, key, chainID, "alice", "bob", "0.050 HBD", time.Minute)
				return p
			},
			reason: types.InvalidReasonInvalidRequiredAmount("five"),
		},
		{
			name: "expired transaction",
			params: func() VerifyExactParams {
				p := requirements("0.050 HBD")
				p.Transaction = hivetest.SignedTransfer(t, key, chainID, "alice", "bob", "0.050 HBD", -time.Minute)
				return p
			},
			reason: types.InvalidReasonTransactionExpired,
		},
		{
			name: "malformed expiration",
			params: func() VerifyExactParams {
				p := requirements("0.050 HBD")
				tx := hivetest.SignedTransfer(t, key, chainID, "alice", "bob", "0.050 HBD", time.Minute)
				tx.Expiration = "soon"
				p.Transaction = tx
				return p
			},
			reason: types.InvalidReasonInvalidExpiration,
		},
		{
			name: "expired requirements",
			params: func() VerifyExactParams {
				p := requirements("0.050 HBD")
				p.ValidBefore = time.Now().Add(-time.Second).UTC().Format(time.RFC3339)
				p.Transaction = hivetest.SignedTransfer(t, key, chainID, "alice", "bob", "0.050 HBD", time.Minute)
				return p
			},
			reason: types.InvalidReasonRequirementsExpired,
		},
		{
			name: "malformed valid before",
			params: func() VerifyExactParams {
				p := requirements("0.050 HBD")
				p.ValidBefore = "tomorrow"
				p.Transaction = hivetest.SignedTransfer(t, key, chainID, "alice", "bob", "0.050 HBD", time.Minute)
				return p
			},
			reason: types.InvalidReasonInvalidValidBefore,
		},
		{
			name: "no signatures",
			params: func() VerifyExactParams {
				p := requirements("0.050 HBD")
				p.Transaction = hivetest.TransferTransaction("alice", "bob", "0.050 HBD", "", time.Minute)
				return p
			},
			reason: types.InvalidReasonNoSignatures,
		},
		{
			name: "undecodable signature",
			params: func() VerifyExactParams {
				p := requirements("0.050 HBD")
				tx := hivetest.TransferTransaction("alice", "bob", "0.050 HBD", "", time.Minute)
				tx.Signatures = []string{"not-hex"}
				p.Transaction = tx
				return p
			},
			reason: types.InvalidReasonInvalidSignature,
		},
		{
			name: "unknown sender",
			params: func() VerifyExactParams {
				p := requirements("0.050 HBD")
				p.Transaction = hivetest.SignedTransfer(t, key, chainID, "carol", "bob", "0.050 HBD", time.Minute)
				return p
			},
			reason: types.InvalidReasonAccountNotFound("carol"),
		},
		{
			name: "signed by a key the sender does not hold",
			params: func() VerifyExactParams {
				p := requirements("0.050 HBD")
				p.Transaction = hivetest.SignedTransfer(t, other, chainID, "alice", "bob", "0.050 HBD", time.Minute)
				return p
			},
			reason: types.InvalidReasonKeyMismatch("alice"),
		},
		{
			name: "signed for another chain",
			params: func() VerifyExactParams {
				p := requirements("0.050 HBD")
				p.Transaction = hivetest.SignedTransfer(t, key, hive.ChainID{}, "alice", "bob", "0.050 HBD", time.Minute)
				return p
			},
			reason: types.InvalidReasonKeyMismatch("alice"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response, err := VerifyExact(context.Background(), config, tt.params())
			require.NoError(t, err)
			assert.Equal(t, tt.valid, response.IsValid)
			assert.Equal(t, tt.reason, response.InvalidReason)
			if tt.valid {
				assert.Equal(t, "alice", response.Payer)
			}
		})
	}
}

func TestVerifyExactCheckOrder(t *testing.T) {
	chainID := mainnetChainID(t)
	key := hivetest.NewKey(t)
	client := hivetest.NewMockClient()

	// Wrong recipient and wrong asset and expired: recipient is reported
	p := requirements("0.050 HBD")
	p.Transaction = hivetest.SignedTransfer(t, key, chainID, "alice", "mallory", "1.000 HIVE", -time.Minute)

	response, err := VerifyExact(context.Background(), VerifyExactConfig{ChainID: chainID, Client: client}, p)
	require.NoError(t, err)
	assert.Equal(t, types.InvalidReasonRecipientMismatch("bob", "mallory"), response.InvalidReason)
}

func TestVerifyExactLedgerUnavailable(t *testing.T) {
	chainID := mainnetChainID(t)
	key := hivetest.NewKey(t)

	down := errors.New("dial tcp: connection refused")
	client := hivetest.NewMockClient()
	client.GetAccountsFunc = func(ctx context.Context, names []string) ([]types.Account, error) {
		return nil, down
	}

	p := requirements("0.050 HBD")
	p.Transaction = hivetest.SignedTransfer(t, key, chainID, "alice", "bob", "0.050 HBD", time.Minute)

	_, err := VerifyExact(context.Background(), VerifyExactConfig{ChainID: chainID, Client: client}, p)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, down)
}

func TestVerifyExactUsesInjectedClock(t *testing.T) {
	chainID := mainnetChainID(t)
	key := hivetest.NewKey(t)
	client := hivetest.NewMockClient()
	client.AddAccount("alice", key.Public)

	p := requirements("0.050 HBD")
	p.Transaction = hivetest.SignedTransfer(t, key, chainID, "alice", "bob", "0.050 HBD", time.Minute)

	later := func() time.Time { return time.Now().Add(time.Hour) }
	response, err := VerifyExact(context.Background(), VerifyExactConfig{ChainID: chainID, Client: client, Now: later}, p)
	require.NoError(t, err)
	assert.Equal(t, types.InvalidReasonTransactionExpired, response.InvalidReason)
}
