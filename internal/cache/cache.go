package cache

import (
	"context"
	"time"
)

// DispatchCache records successful dispatches for fast lookup by
// delivery-report consumers. Writes are best effort.
type DispatchCache interface {
	StoreDispatched(ctx context.Context, messageID, provider, providerMessageID string, sentAt time.Time) error
}

// Noop is used when Redis is not configured.
type Noop struct{}

func (Noop) StoreDispatched(ctx context.Context, messageID, provider, providerMessageID string, sentAt time.Time) error {
	return nil
}
