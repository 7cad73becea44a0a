package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// GatewayProvider posts messages to an HTTP gateway (SMS and push share the
// same contract: POST {to, subject, body}, response carries a message_id).
type GatewayProvider struct {
	client *resty.Client
	url    string
}

type gatewayResponse struct {
	MessageID string `json:"message_id"`
}

func NewGatewayProvider(url, token string) *GatewayProvider {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(0)
	if token != "" {
		client.SetAuthToken(token)
	}

	return &GatewayProvider{
		client: client,
		url:    url,
	}
}

func (p *GatewayProvider) Send(ctx context.Context, msg Message) (string, error) {
	var result gatewayResponse

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"to":      msg.To,
			"subject": msg.Subject,
			"body":    msg.Body,
		}).
		SetResult(&result).
		Post(p.url)
	if err != nil {
		return "", fmt.Errorf("gateway post: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("gateway returned %d: %s", resp.StatusCode(), resp.String())
	}

	return result.MessageID, nil
}
