// internal/pkg/email/sendgrid.go
package email

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Sender delivers a rendered email
type Sender interface {
	Send(ctx context.Context, email *Email) error
}

// SendGridSender delivers through the SendGrid v3 API
type SendGridSender struct {
	apiKey    string
	fromEmail string
	fromName  string
}

// NewSendGridSender creates a new SendGrid sender
func NewSendGridSender(apiKey, fromEmail, fromName string) *SendGridSender {
	return &SendGridSender{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *SendGridSender) Send(ctx context.Context, email *Email) error {
	if s.apiKey == "" {
		return fmt.Errorf("SendGrid API key not configured")
	}
	if email.To == "" {
		return fmt.Errorf("recipient address is empty")
	}

	message := mail.NewSingleEmail(
		mail.NewEmail(s.fromName, s.fromEmail),
		email.Subject,
		mail.NewEmail("", email.To),
		email.TextContent,
		email.HTMLContent,
	)

	client := sendgrid.NewSendClient(s.apiKey)
	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send error: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}
	return nil
}
