package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"

	"ColdChainAPI/internal/config"

	"github.com/jordan-wright/email"
)

// EmailProvider delivers over SMTP with STARTTLS.
type EmailProvider struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewEmailProvider(cfg config.NotifyConfig) *EmailProvider {
	return &EmailProvider{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail),
	}
}

func (p *EmailProvider) Send(ctx context.Context, msg Message) (string, error) {
	e := email.NewEmail()
	e.From = p.from
	e.To = []string{msg.To}
	e.Subject = msg.Subject
	e.Text = []byte(msg.Body)

	addr := fmt.Sprintf("%s:%d", p.host, p.port)

	var auth smtp.Auth
	if p.username != "" {
		auth = smtp.PlainAuth("", p.username, p.password, p.host)
	}

	if err := e.SendWithStartTLS(addr, auth, &tls.Config{ServerName: p.host}); err != nil {
		return "", fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}

	// SMTP gives no delivery receipt to correlate callbacks against.
	return "", nil
}
