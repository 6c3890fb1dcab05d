// Package hivetest provides signing keys, transactions and an in-memory ledger
// client for tests that exercise Hive payments without a network.
package hivetest

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/raid-guild/hive-x402-facilitator-go/hive"
	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

// Key is a throwaway signing key and its Hive public key string.
type Key struct {
	Private *ecdsa.PrivateKey
	Public  string
}

// NewKey generates a fresh key.
func NewKey(t testing.TB) Key {
	t.Helper()

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return Key{Private: privateKey, Public: hive.EncodePublicKey(&privateKey.PublicKey)}
}

// TransferTransaction builds an unsigned single transfer transaction expiring
// after expiresIn (negative values produce an expired transaction).
func TransferTransaction(from, to, amount, memo string, expiresIn time.Duration) *types.SignedTransaction {
	return &types.SignedTransaction{
		RefBlockNum:    100,
		RefBlockPrefix: 200,
		Expiration:     types.FormatHiveTime(time.Now().Add(expiresIn)),
		Operations: []types.Operation{
			types.NewTransferOperation(types.TransferOperation{
				From:   from,
				To:     to,
				Amount: amount,
				Memo:   memo,
			}),
		},
		Extensions: []json.RawMessage{},
		Signatures: []string{},
	}
}

// Sign appends a compact signature by key over the transaction digest.
func Sign(t testing.TB, tx *types.SignedTransaction, key Key, chainID hive.ChainID) {
	t.Helper()

	sig, err := hive.SignTransaction(tx, key.Private, chainID)
	if err != nil {
		t.Fatalf("failed to sign transaction: %v", err)
	}
	tx.Signatures = append(tx.Signatures, sig)
}

// SignedTransfer builds and signs a transfer transaction in one step.
func SignedTransfer(t testing.TB, key Key, chainID hive.ChainID, from, to, amount string, expiresIn time.Duration) *types.SignedTransaction {
	t.Helper()

	tx := TransferTransaction(from, to, amount, "x402:test", expiresIn)
	Sign(t, tx, key, chainID)
	return tx
}

// MockClient is an in-memory ledger client. Accounts are looked up from a map
// and broadcasts are counted. The func fields override the default behaviour.
type MockClient struct {
	GetAccountsFunc    func(ctx context.Context, names []string) ([]types.Account, error)
	BroadcastFunc      func(ctx context.Context, tx *types.SignedTransaction) (types.TransactionConfirmation, error)
	GetPropertiesFunc  func(ctx context.Context) (types.DynamicGlobalProperties, error)
	BroadcastDelayFunc func()

	mu         sync.Mutex
	accounts   map[string]types.Account
	broadcasts int
}

// NewMockClient returns a mock client with no accounts.
func NewMockClient() *MockClient {
	return &MockClient{accounts: make(map[string]types.Account)}
}

// AddAccount registers an account whose active authority holds the given keys.
func (m *MockClient) AddAccount(name string, keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	auths := make([]types.WeightedAuth, 0, len(keys))
	for _, k := range keys {
		auths = append(auths, types.WeightedAuth{Name: k, Weight: 1})
	}
	m.accounts[name] = types.Account{
		Name: name,
		Active: types.Authority{
			WeightThreshold: 1,
			AccountAuths:    []types.WeightedAuth{},
			KeyAuths:        auths,
		},
	}
}

// Broadcasts returns how many transactions were broadcast successfully.
func (m *MockClient) Broadcasts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.broadcasts
}

// GetAccounts returns the registered accounts among names.
func (m *MockClient) GetAccounts(ctx context.Context, names []string) ([]types.Account, error) {
	if m.GetAccountsFunc != nil {
		return m.GetAccountsFunc(ctx, names)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	accounts := make([]types.Account, 0, len(names))
	for _, name := range names {
		if account, ok := m.accounts[name]; ok {
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

// BroadcastTransaction records the broadcast and returns a confirmation whose
// id is derived from the transaction signatures.
func (m *MockClient) BroadcastTransaction(ctx context.Context, tx *types.SignedTransaction) (types.TransactionConfirmation, error) {
	if m.BroadcastDelayFunc != nil {
		m.BroadcastDelayFunc()
	}

	var (
		confirmation types.TransactionConfirmation
		err          error
	)
	if m.BroadcastFunc != nil {
		confirmation, err = m.BroadcastFunc(ctx, tx)
	} else {
		sum := sha256.Sum256([]byte(fmt.Sprint(tx.Signatures)))
		confirmation = types.TransactionConfirmation{
			ID:       hex.EncodeToString(sum[:20]),
			BlockNum: 90000000,
		}
	}
	if err != nil {
		return types.TransactionConfirmation{}, err
	}

	m.mu.Lock()
	m.broadcasts++
	m.mu.Unlock()

	return confirmation, nil
}

// GetDynamicGlobalProperties returns a fixed chain head.
func (m *MockClient) GetDynamicGlobalProperties(ctx context.Context) (types.DynamicGlobalProperties, error) {
	if m.GetPropertiesFunc != nil {
		return m.GetPropertiesFunc(ctx)
	}
	return types.DynamicGlobalProperties{
		HeadBlockNumber: 90000000,
		HeadBlockID:     "055d4a80c8b5a0a0f1b1c2d3e4f5a6b7c8d9e0f1",
		Time:            types.FormatHiveTime(time.Now()),
	}, nil
}
