// internal/domain/cart/entity.go
package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle status of a shopping cart
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusPaid            OrderStatus = "PAID"
	OrderStatusRefundInitiated OrderStatus = "REFUND_INITIATED"
	OrderStatusRefundFailed    OrderStatus = "REFUND_FAILED"
	OrderStatusRefunded        OrderStatus = "REFUNDED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
)

// legacyCompleted is what older backends send for a paid cart.
const legacyCompleted = "COMPLETED"

var knownStatuses = map[OrderStatus]bool{
	OrderStatusOpen:            true,
	OrderStatusPending:         true,
	OrderStatusPaid:            true,
	OrderStatusRefundInitiated: true,
	OrderStatusRefundFailed:    true,
	OrderStatusRefunded:        true,
	OrderStatusCancelled:       true,
}

// ParseOrderStatus converts a wire value into a canonical status
func ParseOrderStatus(value string) (OrderStatus, error) {
	if value == legacyCompleted {
		return OrderStatusPaid, nil
	}
	status := OrderStatus(value)
	if !knownStatuses[status] {
		return "", fmt.Errorf("unknown order status %q", value)
	}
	return status, nil
}

// UnmarshalJSON accepts the canonical values plus the legacy COMPLETED alias.
// A missing or null status decodes as OPEN.
func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil || *raw == "" {
		*s = OrderStatusOpen
		return nil
	}
	status, err := ParseOrderStatus(*raw)
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// IsClosingStatus reports whether a cart may be closed with this status
func (s OrderStatus) IsClosingStatus() bool {
	switch s {
	case OrderStatusPaid, OrderStatusPending, OrderStatusCancelled:
		return true
	}
	return false
}

// ErrUnsupportedPaymentType is returned for provider types the storefront does not offer
var ErrUnsupportedPaymentType = errors.New("unsupported payment type")

// PaymentMethod is the storefront's name for a provider payment type
type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentMethodIdeal      PaymentMethod = "IDEAL"
)

// ProviderType returns the payment provider's type string
func (m PaymentMethod) ProviderType() string {
	switch m {
	case PaymentMethodCreditCard:
		return "scheme"
	case PaymentMethodIdeal:
		return "ideal"
	}
	return ""
}

// PaymentMethodFromProvider maps a provider type back to a payment method
func PaymentMethodFromProvider(providerType string) (PaymentMethod, error) {
	switch providerType {
	case "scheme":
		return PaymentMethodCreditCard, nil
	case "ideal":
		return PaymentMethodIdeal, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedPaymentType, providerType)
}

// Size is a product size
type Size string

const (
	SizeS   Size = "S"
	SizeM   Size = "M"
	SizeL   Size = "L"
	SizeXL  Size = "XL"
	SizeXXL Size = "XXL"
)

// ProductCategory groups products in the catalog
type ProductCategory struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Product is a catalog entry
type Product struct {
	ID               int64            `json:"id"`
	Name             string           `json:"name"`
	Description      string           `json:"description,omitempty"`
	Price            decimal.Decimal  `json:"price"`
	ItemSize         Size             `json:"itemSize,omitempty"`
	Image            []byte           `json:"image,omitempty"`
	ImageContentType string           `json:"imageContentType,omitempty"`
	ProductCategory  *ProductCategory `json:"productCategory,omitempty"`
}

// ProductOrder is one line item of a cart
type ProductOrder struct {
	ID         int64           `json:"id"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Product    *Product        `json:"product,omitempty"`
}

// CustomerDetails is the profile attached to a user
type CustomerDetails struct {
	ID           int64  `json:"id"`
	Gender       string `json:"gender,omitempty"`
	Phone        string `json:"phone,omitempty"`
	AddressLine1 string `json:"addressLine1,omitempty"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city,omitempty"`
	Country      string `json:"country,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// User is the account owning customer details
type User struct {
	ID        int64  `json:"id,omitempty"`
	Login     string `json:"login"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
}

// ShoppingCart is a user's order aggregate
type ShoppingCart struct {
	ID                           int64            `json:"id,omitempty"`
	PlacedDate                   *time.Time       `json:"placedDate,omitempty"`
	Status                       OrderStatus      `json:"status"`
	TotalPrice                   decimal.Decimal  `json:"totalPrice"`
	PaymentMethod                PaymentMethod    `json:"paymentMethod,omitempty"`
	PaymentReference             string           `json:"paymentReference,omitempty"`
	PaymentModificationReference string           `json:"paymentModificationReference,omitempty"`
	Orders                       []ProductOrder   `json:"orders"`
	CustomerDetails              *CustomerDetails `json:"customerDetails,omitempty"`
}

// EmptyCart is what a user without an active cart sees
func EmptyCart() *ShoppingCart {
	return &ShoppingCart{
		Status:     OrderStatusOpen,
		TotalPrice: decimal.Zero,
		Orders:     []ProductOrder{},
	}
}

// IsActive reports whether the cart is still accepting line items
func (c *ShoppingCart) IsActive() bool {
	return c.Status == OrderStatusOpen
}

// IsEmpty reports whether the cart has no line items
func (c *ShoppingCart) IsEmpty() bool {
	return len(c.Orders) == 0
}

// CanBeRefunded reports whether a refund may be requested.
// A failed refund may be retried.
func (c *ShoppingCart) CanBeRefunded() bool {
	return c.Status == OrderStatusPaid || c.Status == OrderStatusRefundFailed
}

// HasReceipt reports whether money has moved for this cart
func (c *ShoppingCart) HasReceipt() bool {
	switch c.Status {
	case OrderStatusPaid, OrderStatusPending, OrderStatusRefundInitiated,
		OrderStatusRefundFailed, OrderStatusRefunded:
		return true
	}
	return false
}

// ItemCount returns the number of units across all line items
func (c *ShoppingCart) ItemCount() int {
	count := 0
	for _, order := range c.Orders {
		count += order.Quantity
	}
	return count
}

// LinesTotal sums the line item totals
func (c *ShoppingCart) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, order := range c.Orders {
		total = total.Add(order.TotalPrice)
	}
	return total
}

// FindOrder returns the line item with the given id
func (c *ShoppingCart) FindOrder(orderID int64) (*ProductOrder, bool) {
	for i := range c.Orders {
		if c.Orders[i].ID == orderID {
			return &c.Orders[i], true
		}
	}
	return nil, false
}

// MinorUnits converts an amount to the provider's integer minor units (cents)
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
