// internal/domain/checkout/entity.go
package checkout

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrPaymentInProgress = errors.New("a payment for this user is already in progress")
	ErrInvalidTransition = errors.New("invalid checkout state transition")
	ErrEmptyCart         = errors.New("cannot pay for an empty cart")
	ErrNotRefundable     = errors.New("cart cannot be refunded in its current status")
	ErrNoPaymentCache    = errors.New("no pending payment data for this redirect")
	ErrInvalidPayload    = errors.New("invalid payment payload")
)

// ResultCode is the payment provider's outcome string
type ResultCode string

const (
	ResultAuthorised       ResultCode = "Authorised"
	ResultPending          ResultCode = "Pending"
	ResultReceived         ResultCode = "Received"
	ResultRefused          ResultCode = "Refused"
	ResultCancelled        ResultCode = "Cancelled"
	ResultError            ResultCode = "Error"
	ResultRedirectShopper  ResultCode = "RedirectShopper"
	ResultIdentifyShopper  ResultCode = "IdentifyShopper"
	ResultChallengeShopper ResultCode = "ChallengeShopper"
)

// PaymentResponse is what the backend relays from the payment provider.
// Action is kept opaque so it can be replayed into the payment widget untouched.
type PaymentResponse struct {
	ResultCode        ResultCode      `json:"resultCode"`
	PspReference      string          `json:"pspReference,omitempty"`
	MerchantReference string          `json:"merchantReference,omitempty"`
	RefusalReason     string          `json:"refusalReason,omitempty"`
	PaymentData       string          `json:"paymentData,omitempty"`
	Action            json.RawMessage `json:"action,omitempty"`
}

// HasAction reports whether the provider asked for further shopper interaction
func (r *PaymentResponse) HasAction() bool {
	trimmed := bytes.TrimSpace(r.Action)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// ActionPaymentData extracts action.paymentData, needed to finish a redirect flow
func (r *PaymentResponse) ActionPaymentData() string {
	if !r.HasAction() {
		return ""
	}
	var action struct {
		PaymentData string `json:"paymentData"`
	}
	if err := json.Unmarshal(r.Action, &action); err != nil {
		return ""
	}
	return action.PaymentData
}

// Customer identifies the authenticated shopper driving a checkout
type Customer struct {
	Login string
	Email string
}

// PaymentResult is returned to the storefront after each payment round-trip
type PaymentResult struct {
	ResultCode   ResultCode      `json:"resultCode,omitempty"`
	PspReference string          `json:"pspReference,omitempty"`
	Action       json.RawMessage `json:"action,omitempty"`
	Outcome      Outcome         `json:"outcome"`
	// RedirectRef keys the stored payment data when the provider will redirect back.
	RedirectRef string `json:"-"`
}

// PaymentCache holds what is needed to finish a payment after a provider redirect
type PaymentCache struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	OrderRef     string    `json:"order_ref" gorm:"uniqueIndex;not null;size:64"`
	OriginalHost string    `json:"original_host" gorm:"size:255"`
	PaymentData  string    `json:"-" gorm:"type:text;not null"`
	PaymentType  string    `json:"payment_type" gorm:"size:50"`
	UserLogin    string    `json:"user_login" gorm:"index;not null;size:100"`
	UserEmail    string    `json:"-" gorm:"size:255"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"index"`
}

// TableName specifies the table name for PaymentCache
func (PaymentCache) TableName() string {
	return "payment_caches"
}

// BeforeCreate hook for PaymentCache
func (p *PaymentCache) BeforeCreate(tx *gorm.DB) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return nil
}

// IsExpired reports whether the cached payment data can no longer be used
func (p *PaymentCache) IsExpired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// AttemptStage names the round-trip an attempt was recorded for
type AttemptStage string

const (
	StageInitiate AttemptStage = "initiate"
	StageDetails  AttemptStage = "details"
	StageRedirect AttemptStage = "redirect"
	StageRefund   AttemptStage = "refund"
)

// CheckoutAttempt is an append-only journal row for one provider round-trip
type CheckoutAttempt struct {
	ID           uint         `json:"id" gorm:"primaryKey"`
	UserLogin    string       `json:"user_login" gorm:"index;not null;size:100"`
	CartID       int64        `json:"cart_id" gorm:"index"`
	Stage        AttemptStage `json:"stage" gorm:"size:20;not null"`
	ResultCode   string       `json:"result_code,omitempty" gorm:"size:50"`
	PspReference string       `json:"psp_reference,omitempty" gorm:"size:100"`
	Page         Page         `json:"page,omitempty" gorm:"size:20"`
	Reason       string       `json:"reason,omitempty" gorm:"type:text"`
	CreatedAt    time.Time    `json:"created_at" gorm:"index"`
}

// TableName specifies the table name for CheckoutAttempt
func (CheckoutAttempt) TableName() string {
	return "checkout_attempts"
}
