package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

// Defaults for the settlement exchange.
const (
	DefaultExchange   = "x402.settlements"
	DefaultRoutingKey = "hive.settled"
)

// amqpChannel is the subset of *amqp.Channel the publisher needs.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher publishes settlement events as persistent JSON messages to
// a durable direct exchange.
type RabbitPublisher struct {
	conn       *amqp.Connection
	channel    amqpChannel
	exchange   string
	routingKey string
}

var _ Publisher = (*RabbitPublisher)(nil)

// NewRabbitPublisher dials the broker and declares the exchange.
func NewRabbitPublisher(amqpURL, exchange, routingKey string) (*RabbitPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &RabbitPublisher{
		conn:       conn,
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

// PublishSettlement publishes the event.
func (r *RabbitPublisher) PublishSettlement(ctx context.Context, event types.SettlementEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.channel.PublishWithContext(ctx,
		r.exchange,
		r.routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.TxID,
			Body:         body,
			Timestamp:    time.Now(),
			DeliveryMode: amqp.Persistent,
		},
	)
}

// Close closes the channel and the connection.
func (r *RabbitPublisher) Close() error {
	err := r.channel.Close()
	if r.conn != nil {
		if cerr := r.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
