package hive

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // Hive key checksums are ripemd160

	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

// MainnetChainID is the chain id of the Hive main network.
const MainnetChainID = "beeab0de00000000000000000000000000000000000000000000000000000000"

// PublicKeyPrefix is the address prefix of Hive main network public keys.
const PublicKeyPrefix = "STM"

// Compact signature headers: 27 + recovery id, plus 4 for a compressed key.
const (
	compactHeaderBase       = 27
	compactHeaderCompressed = 4
)

// ChainID is the 32 byte identifier mixed into every signing digest.
type ChainID [32]byte

// ParseChainID decodes a hex chain id.
func ParseChainID(s string) (ChainID, error) {
	var id ChainID
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return id, fmt.Errorf("invalid chain id: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("chain id must be %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// Digest computes the signing digest of a transaction: sha256(chain id || serialized tx).
func Digest(tx *types.SignedTransaction, chainID ChainID) ([32]byte, error) {
	serialized, err := Serialize(tx)
	if err != nil {
		return [32]byte{}, err
	}
	h := sha256.New()
	h.Write(chainID[:])
	h.Write(serialized)
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest, nil
}

// RecoverPublicKey recovers the public key that produced a hex encoded
// compact signature over digest.
func RecoverPublicKey(signature string, digest [32]byte) (string, error) {

	// Decode the compact signature
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return "", fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("signature must be exactly 65 bytes, got %d bytes", len(sig))
	}

	// Convert the header byte into a recovery id
	header := sig[0]
	if header < compactHeaderBase || header >= compactHeaderBase+2*compactHeaderCompressed {
		return "", fmt.Errorf("invalid signature header %d", header)
	}
	recoveryID := (header - compactHeaderBase) % compactHeaderCompressed

	// Reorder into r || s || v for recovery
	rsv := make([]byte, 65)
	copy(rsv, sig[1:])
	rsv[64] = recoveryID

	// Recover the public key
	pubkey, err := crypto.Ecrecover(digest[:], rsv)
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", err)
	}
	recovered, err := crypto.UnmarshalPubkey(pubkey)
	if err != nil {
		return "", fmt.Errorf("failed to unmarshal public key: %w", err)
	}

	return EncodePublicKey(recovered), nil
}

// SignTransaction signs the transaction digest with key and returns the hex
// encoded compact signature.
func SignTransaction(tx *types.SignedTransaction, key *ecdsa.PrivateKey, chainID ChainID) (string, error) {
	digest, err := Digest(tx, chainID)
	if err != nil {
		return "", err
	}

	// Sign returns r || s || v, the compact form is header || r || s
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return "", fmt.Errorf("failed to sign digest: %w", err)
	}
	compact := make([]byte, 65)
	compact[0] = sig[64] + compactHeaderBase + compactHeaderCompressed
	copy(compact[1:], sig[:64])

	return hex.EncodeToString(compact), nil
}

// EncodePublicKey formats a secp256k1 public key as a Hive public key string.
func EncodePublicKey(pub *ecdsa.PublicKey) string {
	compressed := crypto.CompressPubkey(pub)
	return PublicKeyPrefix + base58.Encode(append(compressed, checksum(compressed)...))
}

// DecodePublicKey parses a Hive public key string.
func DecodePublicKey(s string) (*ecdsa.PublicKey, error) {
	if !strings.HasPrefix(s, PublicKeyPrefix) {
		return nil, fmt.Errorf("public key must start with %s", PublicKeyPrefix)
	}
	raw, err := base58.Decode(strings.TrimPrefix(s, PublicKeyPrefix))
	if err != nil {
		return nil, fmt.Errorf("invalid public key encoding: %w", err)
	}
	if len(raw) != 37 {
		return nil, fmt.Errorf("public key must be 37 bytes, got %d", len(raw))
	}
	key, sum := raw[:33], raw[33:]
	if !bytes.Equal(sum, checksum(key)) {
		return nil, errors.New("public key checksum mismatch")
	}
	return crypto.DecompressPubkey(key)
}

// RefBlock derives the block reference fields for a new transaction from the
// chain head.
func RefBlock(props types.DynamicGlobalProperties) (uint16, uint32, error) {
	id, err := hex.DecodeString(props.HeadBlockID)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid head block id: %w", err)
	}
	if len(id) < 8 {
		return 0, 0, fmt.Errorf("head block id too short: %d bytes", len(id))
	}
	return uint16(props.HeadBlockNumber & 0xffff), binary.LittleEndian.Uint32(id[4:8]), nil
}

func checksum(b []byte) []byte {
	h := ripemd160.New()
	h.Write(b)
	return h.Sum(nil)[:4]
}
