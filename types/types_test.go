package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationJSON(t *testing.T) {
	t.Run("transfer", func(t *testing.T) {
		raw := `["transfer",{"from":"alice","to":"bob","amount":"0.050 HBD","memo":"x402:abc"}]`

		var op Operation
		require.NoError(t, json.Unmarshal([]byte(raw), &op))
		assert.Equal(t, OperationTransfer, op.Type)
		require.NotNil(t, op.Transfer)
		assert.Equal(t, "bob", op.Transfer.To)

		out, err := json.Marshal(op)
		require.NoError(t, err)
		assert.JSONEq(t, raw, string(out))
	})

	t.Run("other operation kept verbatim", func(t *testing.T) {
		raw := `["vote",{"voter":"alice","author":"bob","permlink":"p","weight":10000}]`

		var op Operation
		require.NoError(t, json.Unmarshal([]byte(raw), &op))
		assert.Equal(t, "vote", op.Type)
		assert.Nil(t, op.Transfer)

		out, err := json.Marshal(op)
		require.NoError(t, err)
		assert.JSONEq(t, raw, string(out))
	})

	t.Run("malformed", func(t *testing.T) {
		for _, raw := range []string{`{}`, `["transfer"]`, `[1,{}]`, `["transfer","x"]`} {
			var op Operation
			assert.Error(t, json.Unmarshal([]byte(raw), &op), raw)
		}
	})
}

func TestAccountJSON(t *testing.T) {
	raw := `{
		"name": "alice",
		"active": {
			"weight_threshold": 1,
			"account_auths": [["bob", 1]],
			"key_auths": [["STM6LLegbAgLAy28EHrffBVuANFWcFgmqRMW13wBmTExqFE9SCkg4", 1]]
		},
		"memo_key": "STM5"
	}`

	var account Account
	require.NoError(t, json.Unmarshal([]byte(raw), &account))
	assert.Equal(t, "alice", account.Name)
	assert.Equal(t, uint32(1), account.Active.WeightThreshold)
	assert.Equal(t, []WeightedAuth{{Name: "bob", Weight: 1}}, account.Active.AccountAuths)
	assert.Equal(t, "STM6LLegbAgLAy28EHrffBVuANFWcFgmqRMW13wBmTExqFE9SCkg4", account.Active.KeyAuths[0].Name)

	out, err := json.Marshal(account.Active.KeyAuths[0])
	require.NoError(t, err)
	assert.JSONEq(t, `["STM6LLegbAgLAy28EHrffBVuANFWcFgmqRMW13wBmTExqFE9SCkg4",1]`, string(out))

	var bad WeightedAuth
	assert.Error(t, json.Unmarshal([]byte(`["only-key"]`), &bad))
}

func TestPaymentPayloadValidate(t *testing.T) {
	payload := testPayload()
	assert.NoError(t, payload.Validate())

	payload.Payload.Nonce = ""
	assert.EqualError(t, payload.Validate(), "payload.nonce is required")

	payload = testPayload()
	payload.X402Version = 2
	assert.EqualError(t, payload.Validate(), "x402Version must equal 1")
}
