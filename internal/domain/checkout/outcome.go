// internal/domain/checkout/outcome.go
package checkout

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/your-org/storefront-checkout/internal/domain/cart"
)

// Page is one of the fixed storefront status pages
type Page string

const (
	PageSuccess Page = "success"
	PagePending Page = "pending"
	PageFailed  Page = "failed"
	PageError   Page = "error"
)

// Outcome is the decision taken for one provider response.
// Exactly one of Page or Action is set.
type Outcome struct {
	Page        Page             `json:"page,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	Location    string           `json:"location,omitempty"`
	CloseStatus cart.OrderStatus `json:"-"`
	Action      json.RawMessage  `json:"-"`
}

// Terminal reports whether the shopper should leave the payment page
func (o Outcome) Terminal() bool {
	return o.Page != ""
}

// ClosesCart reports whether the cart must be closed before navigating
func (o Outcome) ClosesCart() bool {
	return o.CloseStatus != ""
}

// ResolveOutcome maps a provider response to the next step.
// An action always wins over the result code.
func ResolveOutcome(resp *PaymentResponse) Outcome {
	if resp.HasAction() {
		return Outcome{Action: resp.Action}
	}

	reason := string(resp.ResultCode)
	switch resp.ResultCode {
	case ResultAuthorised:
		return Outcome{Page: PageSuccess, Reason: reason, CloseStatus: cart.OrderStatusPaid}
	case ResultPending:
		return Outcome{Page: PagePending, Reason: reason, CloseStatus: cart.OrderStatusPending}
	case ResultRefused:
		return Outcome{Page: PageFailed, Reason: reason}
	default:
		return Outcome{Page: PageError, Reason: reason}
	}
}

// ResolveRedirectOutcome maps the response for a shopper coming back from the provider.
// Received is shown as pending there since asynchronous methods settle later. The cart stays open.
func ResolveRedirectOutcome(resp *PaymentResponse) Outcome {
	if !resp.HasAction() && resp.ResultCode == ResultReceived {
		return Outcome{Page: PagePending, Reason: string(resp.ResultCode)}
	}
	return ResolveOutcome(resp)
}

// FailureOutcome is the error page shown when a round-trip did not complete
func FailureOutcome(err error) Outcome {
	return Outcome{Page: PageError, Reason: err.Error()}
}

// StatusPath builds /<base>/<page>?reason=<reason>
func StatusPath(basePath string, page Page, reason string) string {
	path := strings.TrimRight(basePath, "/") + "/" + string(page)
	if reason == "" {
		return path
	}
	return path + "?reason=" + url.QueryEscape(reason)
}

// RedirectLocation is the absolute status URL used after a provider redirect
func RedirectLocation(host, basePath string, page Page, reason, paymentType string) string {
	location := strings.TrimRight(host, "/") + StatusPath(basePath, page, reason)
	if paymentType == "" {
		return location
	}
	sep := "?"
	if strings.Contains(location, "?") {
		sep = "&"
	}
	return location + sep + "paymentType=" + url.QueryEscape(paymentType)
}
