// Package provider contains the delivery gateway and its concrete
// adapters. Exactly one adapter is active per deployment, selected at
// construction from configuration.
package provider

import (
	"context"
	"fmt"

	"github.com/contactsapp/message-dispatch/internal/config"
)

// Outbound is the provider-facing view of a message.
type Outbound struct {
	Recipient string
	Subject   string
	Body      string
}

// Result is the provider acknowledgement for an accepted message.
type Result struct {
	ProviderMessageID string
}

// Gateway delivers outbound messages. Adapters normalize every native
// failure into *domain.ProviderError so callers never branch on
// provider-specific errors.
type Gateway interface {
	Name() string
	Deliver(ctx context.Context, out Outbound) (Result, error)
}

// FromConfig selects the configured adapter.
func FromConfig(cfg config.EmailConfig) (Gateway, error) {
	switch cfg.Provider {
	case config.ProviderSMTP:
		return NewSMTPGateway(cfg), nil
	case config.ProviderSendGrid:
		return NewSendGridGateway(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported email provider: %q", cfg.Provider)
	}
}
