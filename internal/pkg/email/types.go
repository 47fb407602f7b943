// internal/pkg/email/types.go
package email

import (
	"time"
)

// EmailType represents the type of email being sent
type EmailType string

const (
	EmailTypePaymentSuccess  EmailType = "payment_success"
	EmailTypePaymentPending  EmailType = "payment_pending"
	EmailTypeRefundRequested EmailType = "refund_requested"
)

// Email represents an email message
type Email struct {
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	HTMLContent string    `json:"html_content"`
	TextContent string    `json:"text_content,omitempty"`
	Type        EmailType `json:"type"`
}

// EmailTemplateData contains common data for all email templates
type EmailTemplateData struct {
	SiteName  string `json:"site_name"`
	SiteURL   string `json:"site_url"`
	UserEmail string `json:"user_email"`
	Year      int    `json:"year"`
}

// CartEmailData is rendered for every cart notification
type CartEmailData struct {
	EmailTemplateData
	CartID           int64       `json:"cart_id"`
	Status           string      `json:"status"`
	PaymentReference string      `json:"payment_reference"`
	Total            string      `json:"total"`
	Currency         string      `json:"currency"`
	OrdersURL        string      `json:"orders_url"`
	Items            []EmailItem `json:"items"`
}

// EmailItem is one line item in a notification
type EmailItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Total    string `json:"total"`
}

// GetBaseTemplateData returns base template data
func GetBaseTemplateData(siteName, siteURL, userEmail string) EmailTemplateData {
	return EmailTemplateData{
		SiteName:  siteName,
		SiteURL:   siteURL,
		UserEmail: userEmail,
		Year:      time.Now().Year(),
	}
}
