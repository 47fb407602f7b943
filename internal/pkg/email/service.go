// internal/pkg/email/service.go
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-checkout/internal/config"
	"github.com/your-org/storefront-checkout/internal/domain/cart"
)

// EmailService renders and sends checkout notifications
type EmailService struct {
	config    *config.Config
	sender    Sender
	templates map[EmailType]*template.Template
	logger    *logrus.Logger
}

// NewEmailService creates a new email service. Without an API key it only logs.
func NewEmailService(cfg *config.Config, logger *logrus.Logger) *EmailService {
	var sender Sender
	if cfg.External.Email.APIKey != "" {
		sender = NewSendGridSender(cfg.External.Email.APIKey, cfg.External.Email.FromEmail, cfg.External.Email.FromName)
	}
	return NewEmailServiceWithSender(cfg, sender, logger)
}

// NewEmailServiceWithSender creates an email service using sender
func NewEmailServiceWithSender(cfg *config.Config, sender Sender, logger *logrus.Logger) *EmailService {
	return &EmailService{
		config: cfg,
		sender: sender,
		templates: map[EmailType]*template.Template{
			EmailTypePaymentSuccess:  template.Must(template.New("payment_success").Parse(paymentSuccessTemplate)),
			EmailTypePaymentPending:  template.Must(template.New("payment_pending").Parse(paymentPendingTemplate)),
			EmailTypeRefundRequested: template.Must(template.New("refund_requested").Parse(refundRequestedTemplate)),
		},
		logger: logger,
	}
}

// PaymentCompleted notifies the shopper that a cart was closed as PAID or PENDING
func (s *EmailService) PaymentCompleted(ctx context.Context, to string, c *cart.ShoppingCart, status cart.OrderStatus) error {
	emailType := EmailTypePaymentSuccess
	subject := fmt.Sprintf("Your %s order is confirmed", s.config.External.Email.FromName)
	if status == cart.OrderStatusPending {
		emailType = EmailTypePaymentPending
		subject = fmt.Sprintf("Your %s payment is being processed", s.config.External.Email.FromName)
	}
	return s.send(ctx, emailType, to, subject, c, status)
}

// RefundRequested notifies the shopper that a refund was started
func (s *EmailService) RefundRequested(ctx context.Context, to string, c *cart.ShoppingCart) error {
	subject := fmt.Sprintf("Your %s refund has been requested", s.config.External.Email.FromName)
	return s.send(ctx, EmailTypeRefundRequested, to, subject, c, cart.OrderStatusRefundInitiated)
}

func (s *EmailService) send(ctx context.Context, emailType EmailType, to, subject string, c *cart.ShoppingCart, status cart.OrderStatus) error {
	if to == "" {
		return fmt.Errorf("no recipient for %s email", emailType)
	}

	data := s.cartData(to, c, status)
	htmlContent, err := s.renderTemplate(emailType, data)
	if err != nil {
		return fmt.Errorf("failed to render %s email template: %w", emailType, err)
	}

	email := &Email{
		To:          to,
		Subject:     subject,
		HTMLContent: htmlContent,
		TextContent: textSummary(data),
		Type:        emailType,
	}

	if s.sender == nil {
		s.logger.WithFields(logrus.Fields{
			"type": emailType,
			"to":   to,
		}).Info("📧 Email delivery disabled, skipping")
		return nil
	}

	if err := s.sender.Send(ctx, email); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"type":    emailType,
		"to":      to,
		"cart_id": data.CartID,
	}).Info("📧 Email sent")
	return nil
}

func (s *EmailService) cartData(to string, c *cart.ShoppingCart, status cart.OrderStatus) CartEmailData {
	siteURL := strings.TrimRight(s.config.App.PublicURL, "/")
	data := CartEmailData{
		EmailTemplateData: GetBaseTemplateData(s.config.External.Email.FromName, siteURL, to),
		Status:            string(status),
		Currency:          s.config.Checkout.Currency,
		OrdersURL:         siteURL + "/orders",
	}
	if c == nil {
		return data
	}

	data.CartID = c.ID
	data.PaymentReference = c.PaymentReference
	data.Total = c.TotalPrice.StringFixed(2)
	for _, order := range c.Orders {
		name := "Item"
		if order.Product != nil {
			name = order.Product.Name
		}
		data.Items = append(data.Items, EmailItem{
			Name:     name,
			Quantity: order.Quantity,
			Total:    order.TotalPrice.StringFixed(2),
		})
	}
	return data
}

func (s *EmailService) renderTemplate(emailType EmailType, data interface{}) (string, error) {
	tmpl, ok := s.templates[emailType]
	if !ok {
		return "", fmt.Errorf("template %s not found", emailType)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func textSummary(data CartEmailData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order #%d: %s\n", data.CartID, data.Status)
	for _, item := range data.Items {
		fmt.Fprintf(&b, "%d x %s  %s %s\n", item.Quantity, item.Name, item.Total, data.Currency)
	}
	fmt.Fprintf(&b, "Total: %s %s\n", data.Total, data.Currency)
	if data.PaymentReference != "" {
		fmt.Fprintf(&b, "Payment reference: %s\n", data.PaymentReference)
	}
	fmt.Fprintf(&b, "Your orders: %s\n", data.OrdersURL)
	return b.String()
}

const itemsTable = `
<table style="width:100%;border-collapse:collapse">
{{range .Items}}<tr><td>{{.Quantity}} x {{.Name}}</td><td style="text-align:right">{{.Total}} {{$.Currency}}</td></tr>
{{end}}<tr><td><strong>Total</strong></td><td style="text-align:right"><strong>{{.Total}} {{.Currency}}</strong></td></tr>
</table>`

const paymentSuccessTemplate = `<html><body>
<h2>Thank you for your order!</h2>
<p>We received your payment for order #{{.CartID}}.</p>` + itemsTable + `
<p>Payment reference: {{.PaymentReference}}</p>
<p><a href="{{.OrdersURL}}">View your orders</a></p>
<p>&copy; {{.Year}} {{.SiteName}}</p>
</body></html>`

const paymentPendingTemplate = `<html><body>
<h2>Your payment is being processed</h2>
<p>Order #{{.CartID}} is waiting for confirmation from your bank. We will let you know once it is settled.</p>` + itemsTable + `
<p><a href="{{.OrdersURL}}">View your orders</a></p>
<p>&copy; {{.Year}} {{.SiteName}}</p>
</body></html>`

const refundRequestedTemplate = `<html><body>
<h2>Refund requested</h2>
<p>We asked our payment provider to refund order #{{.CartID}}. The amount of {{.Total}} {{.Currency}} will be returned to your original payment method.</p>
<p><a href="{{.OrdersURL}}">View your orders</a></p>
<p>&copy; {{.Year}} {{.SiteName}}</p>
</body></html>`
