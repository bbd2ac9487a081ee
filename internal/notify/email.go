package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailAdapter delivers alert notifications via SendGrid.
type EmailAdapter struct {
	fromEmail string
	fromName  string
	client    *sendgrid.Client
}

// EmailConfig configures an EmailAdapter.
type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewEmailAdapter builds a SendGrid-backed email adapter.
func NewEmailAdapter(cfg EmailConfig) (*EmailAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("notify: sendgrid api key is required")
	}
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("notify: from email is required")
	}
	return &EmailAdapter{
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		client:    sendgrid.NewSendClient(cfg.APIKey),
	}, nil
}

// Channel implements Adapter.
func (a *EmailAdapter) Channel() Channel { return ChannelEmail }

// Send implements Adapter by delivering msg to msg.Endpoint as a single
// recipient.
func (a *EmailAdapter) Send(ctx context.Context, msg Message) error {
	if msg.Endpoint == "" {
		return fmt.Errorf("notify: email adapter requires an endpoint address")
	}

	from := mail.NewEmail(a.fromName, a.fromEmail)
	to := mail.NewEmail("", msg.Endpoint)
	m := mail.NewV3Mail()
	m.SetFrom(from)
	m.Subject = msg.Subject
	m.AddPersonalizations(mail.NewPersonalization())
	m.Personalizations[0].AddTos(to)
	m.AddContent(mail.NewContent("text/plain", msg.Body))

	resp, err := a.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify: sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
