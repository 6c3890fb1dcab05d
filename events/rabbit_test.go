package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

type fakeChannel struct {
	exchange string
	key      string
	msgs     []amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.exchange, f.key = exchange, key
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestRabbitPublisher(t *testing.T) {
	event := types.SettlementEvent{
		TxID:      "abc123",
		BlockNum:  42,
		Payer:     "alice",
		PayTo:     "bob",
		Amount:    "0.050 HBD",
		Resource:  "https://example.com/weather",
		Nonce:     "n-1",
		Network:   types.NetworkHiveMainnet,
		SettledAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	t.Run("publishes persistent json", func(t *testing.T) {
		ch := &fakeChannel{}
		p := &RabbitPublisher{channel: ch, exchange: DefaultExchange, routingKey: DefaultRoutingKey}

		require.NoError(t, p.PublishSettlement(context.Background(), event))
		require.Len(t, ch.msgs, 1)

		msg := ch.msgs[0]
		assert.Equal(t, DefaultExchange, ch.exchange)
		assert.Equal(t, DefaultRoutingKey, ch.key)
		assert.Equal(t, "application/json", msg.ContentType)
		assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
		assert.Equal(t, "abc123", msg.MessageId)

		var decoded types.SettlementEvent
		require.NoError(t, json.Unmarshal(msg.Body, &decoded))
		assert.Equal(t, event, decoded)
	})

	t.Run("returns channel errors", func(t *testing.T) {
		ch := &fakeChannel{err: errors.New("channel closed")}
		p := &RabbitPublisher{channel: ch, exchange: DefaultExchange, routingKey: DefaultRoutingKey}

		assert.ErrorIs(t, p.PublishSettlement(context.Background(), event), ch.err)
	})

	t.Run("close closes the channel", func(t *testing.T) {
		ch := &fakeChannel{}
		p := &RabbitPublisher{channel: ch}

		require.NoError(t, p.Close())
		assert.True(t, ch.closed)
	})
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.PublishSettlement(context.Background(), types.SettlementEvent{}))
	assert.NoError(t, p.Close())
}
