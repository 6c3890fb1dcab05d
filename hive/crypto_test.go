package hive_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raid-guild/hive-x402-facilitator-go/hive"
	"github.com/raid-guild/hive-x402-facilitator-go/hive/hivetest"
	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

func mainnet(t *testing.T) hive.ChainID {
	t.Helper()
	id, err := hive.ParseChainID(hive.MainnetChainID)
	require.NoError(t, err)
	return id
}

func TestRecoverPublicKey(t *testing.T) {
	chainID := mainnet(t)
	key := hivetest.NewKey(t)
	tx := hivetest.SignedTransfer(t, key, chainID, "alice", "bob", "0.050 HBD", time.Minute)

	digest, err := hive.Digest(tx, chainID)
	require.NoError(t, err)

	t.Run("recovers the signing key", func(t *testing.T) {
		recovered, err := hive.RecoverPublicKey(tx.Signatures[0], digest)
		require.NoError(t, err)
		assert.Equal(t, key.Public, recovered)
	})

	t.Run("different chain id recovers a different key", func(t *testing.T) {
		var other hive.ChainID
		otherDigest, err := hive.Digest(tx, other)
		require.NoError(t, err)

		recovered, err := hive.RecoverPublicKey(tx.Signatures[0], otherDigest)
		require.NoError(t, err)
		assert.NotEqual(t, key.Public, recovered)
	})

	t.Run("tampered transaction recovers a different key", func(t *testing.T) {
		tampered := *tx
		tampered.Operations = []types.Operation{types.NewTransferOperation(types.TransferOperation{
			From: "alice", To: "mallory", Amount: "0.050 HBD", Memo: "x402:test",
		})}
		tamperedDigest, err := hive.Digest(&tampered, chainID)
		require.NoError(t, err)

		recovered, err := hive.RecoverPublicKey(tx.Signatures[0], tamperedDigest)
		require.NoError(t, err)
		assert.NotEqual(t, key.Public, recovered)
	})

	t.Run("rejects non hex signature", func(t *testing.T) {
		_, err := hive.RecoverPublicKey("zz", digest)
		assert.Error(t, err)
	})

	t.Run("rejects short signature", func(t *testing.T) {
		_, err := hive.RecoverPublicKey(hex.EncodeToString(make([]byte, 64)), digest)
		assert.Error(t, err)
	})

	t.Run("rejects invalid header byte", func(t *testing.T) {
		sig, _ := hex.DecodeString(tx.Signatures[0])
		sig[0] = 5
		_, err := hive.RecoverPublicKey(hex.EncodeToString(sig), digest)
		assert.Error(t, err)
	})
}

func TestPublicKeyEncoding(t *testing.T) {
	key := hivetest.NewKey(t)

	assert.True(t, len(key.Public) > len(hive.PublicKeyPrefix))
	assert.Equal(t, hive.PublicKeyPrefix, key.Public[:3])

	decoded, err := hive.DecodePublicKey(key.Public)
	require.NoError(t, err)
	assert.Equal(t, key.Public, hive.EncodePublicKey(decoded))

	t.Run("rejects a corrupted checksum", func(t *testing.T) {
		corrupted := []byte(key.Public)
		last := len(corrupted) - 1
		if corrupted[last] == 'a' {
			corrupted[last] = 'b'
		} else {
			corrupted[last] = 'a'
		}
		_, err := hive.DecodePublicKey(string(corrupted))
		assert.Error(t, err)
	})

	t.Run("rejects a foreign prefix", func(t *testing.T) {
		_, err := hive.DecodePublicKey("TST" + key.Public[3:])
		assert.Error(t, err)
	})
}

func TestSerialize(t *testing.T) {
	tx := hivetest.TransferTransaction("alice", "bob", "0.050 HBD", "memo", time.Minute)

	t.Run("encodes the transfer with the legacy symbol", func(t *testing.T) {
		raw, err := hive.Serialize(tx)
		require.NoError(t, err)

		// ref_block_num 100, ref_block_prefix 200
		assert.Equal(t, []byte{100, 0, 200, 0, 0, 0}, raw[:6])
		// one operation, transfer id 2
		assert.Equal(t, []byte{1, 2}, raw[10:12])

		asset := []byte{50, 0, 0, 0, 0, 0, 0, 0, 3, 'S', 'B', 'D', 0, 0, 0, 0}
		assert.True(t, bytes.Contains(raw, asset), "serialized transfer must contain the asset bytes")
		// trailing empty extensions
		assert.Equal(t, byte(0), raw[len(raw)-1])
	})

	// ref_block_num, ref_block_prefix, expiration 2030-01-01T00:00:00, one
	// transfer (id 2), from, to, amount with precision and legacy symbol,
	// memo, empty extensions.
	t.Run("matches the golden byte layout", func(t *testing.T) {
		tests := []struct {
			name   string
			amount string
			memo   string
			want   string
		}{
			{
				name:   "hbd without memo",
				amount: "0.050 HBD",
				want: "3412" + "04030201" + "80d8db70" + "01" + "02" +
					"05616c696365" + "03626f62" +
					"3200000000000000" + "03" + "53424400000000" +
					"00" + "00",
			},
			{
				name:   "hive with memo",
				amount: "1.000 HIVE",
				memo:   "x402",
				want: "3412" + "04030201" + "80d8db70" + "01" + "02" +
					"05616c696365" + "03626f62" +
					"e803000000000000" + "03" + "535445454d0000" +
					"0478343032" + "00",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				golden := &types.SignedTransaction{
					RefBlockNum:    0x1234,
					RefBlockPrefix: 0x01020304,
					Expiration:     "2030-01-01T00:00:00",
					Operations: []types.Operation{
						types.NewTransferOperation(types.TransferOperation{
							From:   "alice",
							To:     "bob",
							Amount: tt.amount,
							Memo:   tt.memo,
						}),
					},
					Extensions: []json.RawMessage{},
				}

				raw, err := hive.Serialize(golden)
				require.NoError(t, err)
				assert.Equal(t, tt.want, hex.EncodeToString(raw))

				chainID := mainnet(t)
				want := sha256.Sum256(append(append([]byte{}, chainID[:]...), raw...))
				digest, err := hive.Digest(golden, chainID)
				require.NoError(t, err)
				assert.Equal(t, want, digest)
			})
		}
	})

	t.Run("is deterministic", func(t *testing.T) {
		a, err := hive.Serialize(tx)
		require.NoError(t, err)
		b, err := hive.Serialize(tx)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("rejects unsupported operations", func(t *testing.T) {
		vote := *tx
		vote.Operations = []types.Operation{{Type: "vote", Body: []byte(`{"voter":"alice"}`)}}
		_, err := hive.Serialize(&vote)
		assert.ErrorIs(t, err, hive.ErrUnsupportedOperation)
	})

	t.Run("rejects malformed expiration", func(t *testing.T) {
		bad := *tx
		bad.Expiration = "tomorrow"
		_, err := hive.Serialize(&bad)
		assert.Error(t, err)
	})

	t.Run("rejects malformed asset", func(t *testing.T) {
		bad := hivetest.TransferTransaction("alice", "bob", "lots of HBD", "", time.Minute)
		_, err := hive.Serialize(bad)
		assert.Error(t, err)
	})
}

func TestParseChainID(t *testing.T) {
	id, err := hive.ParseChainID(hive.MainnetChainID)
	require.NoError(t, err)
	assert.Equal(t, byte(0xbe), id[0])

	_, err = hive.ParseChainID("beef")
	assert.Error(t, err)

	_, err = hive.ParseChainID("not hex")
	assert.Error(t, err)
}

func TestRefBlock(t *testing.T) {
	num, prefix, err := hive.RefBlock(types.DynamicGlobalProperties{
		HeadBlockNumber: 0x01020304,
		HeadBlockID:     "0102030405060708090a0b0c0d0e0f1011121314",
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0304), num)
	assert.Equal(t, uint32(0x08070605), prefix)

	_, _, err = hive.RefBlock(types.DynamicGlobalProperties{HeadBlockID: "00"})
	assert.Error(t, err)
}
