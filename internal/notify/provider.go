package notify

import (
	"context"

	"ColdChainAPI/internal/config"
	"ColdChainAPI/internal/models"
)

// Message is a channel-agnostic notification ready for delivery.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Provider delivers a message over one channel. The returned id is the
// provider's own message identifier when the channel reports one; email has
// no delivery receipts, so it returns an empty id.
type Provider interface {
	Send(ctx context.Context, msg Message) (providerMessageID string, err error)
}

// Providers maps each configured channel to its provider. Channels without
// a configured gateway are simply absent.
func Providers(cfg config.NotifyConfig) map[string]Provider {
	providers := map[string]Provider{
		models.ChannelEmail: NewEmailProvider(cfg),
	}
	if cfg.SMSGatewayURL != "" {
		providers[models.ChannelSMS] = NewGatewayProvider(cfg.SMSGatewayURL, cfg.SMSGatewayToken)
	}
	if cfg.PushGatewayURL != "" {
		providers[models.ChannelPush] = NewGatewayProvider(cfg.PushGatewayURL, cfg.PushGatewayToken)
	}
	return providers
}
