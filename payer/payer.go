// Package payer signs HBD payments for x402 challenges and retries paywalled
// requests with the resulting X-PAYMENT header.
package payer

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"github.com/raid-guild/hive-x402-facilitator-go/hive"
	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

const (
	// DefaultExpiration is how long a signed payment stays broadcastable.
	DefaultExpiration = time.Minute

	// MemoPrefix prefixes the nonce in the transfer memo.
	MemoPrefix = "x402:"

	wifVersion = 0x80
)

// ErrInvalidWIF is returned for a private key that is not a valid WIF string.
var ErrInvalidWIF = errors.New("invalid WIF private key")

// ChainReader reads the chain head used as the transaction reference block.
type ChainReader interface {
	GetDynamicGlobalProperties(ctx context.Context) (types.DynamicGlobalProperties, error)
}

// Signer builds and signs transfer transactions from one account.
type Signer struct {
	account    string
	key        *ecdsa.PrivateKey
	chainID    hive.ChainID
	chain      ChainReader
	expiration time.Duration
	now        func() time.Time
}

// NewSigner creates a signer for account using its active key in WIF form.
func NewSigner(account, wif string, chainID hive.ChainID, chain ChainReader) (*Signer, error) {
	if account == "" {
		return nil, errors.New("account is required")
	}
	key, err := ParseWIF(wif)
	if err != nil {
		return nil, err
	}
	return &Signer{
		account:    account,
		key:        key,
		chainID:    chainID,
		chain:      chain,
		expiration: DefaultExpiration,
		now:        time.Now,
	}, nil
}

// Account returns the paying account.
func (s *Signer) Account() string {
	return s.account
}

// PublicKey returns the Hive public key of the signing key.
func (s *Signer) PublicKey() string {
	return hive.EncodePublicKey(&s.key.PublicKey)
}

// SignPayment signs a transfer of the required amount to the requirement's
// recipient. The transaction is not broadcast.
func (s *Signer) SignPayment(ctx context.Context, r types.PaymentRequirements) (types.PaymentPayload, error) {
	props, err := s.chain.GetDynamicGlobalProperties(ctx)
	if err != nil {
		return types.PaymentPayload{}, fmt.Errorf("failed to get chain head: %w", err)
	}
	refBlockNum, refBlockPrefix, err := hive.RefBlock(props)
	if err != nil {
		return types.PaymentPayload{}, err
	}

	id := uuid.New()
	nonce := hex.EncodeToString(id[:])

	tx := &types.SignedTransaction{
		RefBlockNum:    refBlockNum,
		RefBlockPrefix: refBlockPrefix,
		Expiration:     types.FormatHiveTime(s.now().Add(s.expiration)),
		Operations: []types.Operation{
			types.NewTransferOperation(types.TransferOperation{
				From:   s.account,
				To:     r.PayTo,
				Amount: r.MaxAmountRequired,
				Memo:   MemoPrefix + nonce,
			}),
		},
		Extensions: []json.RawMessage{},
	}

	signature, err := hive.SignTransaction(tx, s.key, s.chainID)
	if err != nil {
		return types.PaymentPayload{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	tx.Signatures = []string{signature}

	return types.PaymentPayload{
		X402Version: types.X402Version1,
		Scheme:      types.SchemeExact,
		Network:     types.NetworkHiveMainnet,
		Payload: types.Payload{
			SignedTransaction: tx,
			Nonce:             nonce,
		},
	}, nil
}

// PaymentHeader signs a payment and encodes it for the X-PAYMENT header.
func (s *Signer) PaymentHeader(ctx context.Context, r types.PaymentRequirements) (string, error) {
	payload, err := s.SignPayment(ctx, r)
	if err != nil {
		return "", err
	}
	return types.EncodePayment(payload)
}

// ParseWIF decodes a WIF encoded secp256k1 private key.
func ParseWIF(wif string) (*ecdsa.PrivateKey, error) {
	raw, err := base58.Decode(wif)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWIF, err)
	}
	if len(raw) != 37 || raw[0] != wifVersion {
		return nil, ErrInvalidWIF
	}
	if !bytes.Equal(raw[33:], wifChecksum(raw[:33])) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidWIF)
	}
	key, err := crypto.ToECDSA(raw[1:33])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWIF, err)
	}
	return key, nil
}

// EncodeWIF encodes a private key in WIF form.
func EncodeWIF(key *ecdsa.PrivateKey) string {
	raw := append([]byte{wifVersion}, crypto.FromECDSA(key)...)
	return base58.Encode(append(raw, wifChecksum(raw)...))
}

func wifChecksum(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:4]
}
