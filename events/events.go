// Package events publishes settlement receipts to downstream consumers.
package events

import (
	"context"

	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

// Publisher delivers settlement events.
type Publisher interface {
	PublishSettlement(ctx context.Context, event types.SettlementEvent) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// PublishSettlement does nothing.
func (NopPublisher) PublishSettlement(ctx context.Context, event types.SettlementEvent) error {
	return nil
}

// Close does nothing.
func (NopPublisher) Close() error {
	return nil
}
