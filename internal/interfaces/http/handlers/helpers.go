// internal/interfaces/http/handlers/helpers.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-checkout/internal/domain/cart"
	"github.com/your-org/storefront-checkout/internal/domain/checkout"
	"github.com/your-org/storefront-checkout/internal/infrastructure/backend"
	"github.com/your-org/storefront-checkout/internal/interfaces/http/middleware"
)

// Orchestrator is the checkout behaviour the HTTP layer needs
type Orchestrator interface {
	GetState(ctx context.Context, who checkout.Customer) (checkout.State, error)
	ResetState(ctx context.Context, who checkout.Customer) (checkout.State, error)
	GetActiveCart(ctx context.Context, who checkout.Customer) (*cart.ShoppingCart, error)
	GetCartHistory(ctx context.Context, who checkout.Customer) ([]cart.ShoppingCart, error)
	FindCart(ctx context.Context, who checkout.Customer, cartID int64) (*cart.ShoppingCart, error)
	AddLineItem(ctx context.Context, who checkout.Customer, productID int64) (*cart.ShoppingCart, error)
	RemoveLineItem(ctx context.Context, who checkout.Customer, orderID int64) (*cart.ShoppingCart, error)
	CloseCart(ctx context.Context, who checkout.Customer, paymentType, paymentRef string, status cart.OrderStatus) error
	GetConfig(ctx context.Context, who checkout.Customer) (map[string]any, error)
	GetPaymentMethods(ctx context.Context, who checkout.Customer) (map[string]any, error)
	InitiatePayment(ctx context.Context, who checkout.Customer, payload json.RawMessage, origin string) (*checkout.PaymentResult, error)
	SubmitAdditionalDetails(ctx context.Context, who checkout.Customer, payload json.RawMessage) (*checkout.PaymentResult, error)
	HandleRedirect(ctx context.Context, orderRef string, details checkout.RedirectDetails) (string, error)
	Refund(ctx context.Context, who checkout.Customer, cartID int64) (*cart.ShoppingCart, error)
	ListAttempts(ctx context.Context, who checkout.Customer, limit int) ([]checkout.CheckoutAttempt, error)
}

// ReceiptRenderer turns a settled cart into a PDF
type ReceiptRenderer interface {
	GenerateReceipt(c *cart.ShoppingCart) (*bytes.Buffer, error)
}

var _ Orchestrator = (*checkout.Service)(nil)

// customerFromContext returns the authenticated shopper or writes a 401
func customerFromContext(c *gin.Context) (checkout.Customer, bool) {
	login, ok := middleware.GetUserLoginFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return checkout.Customer{}, false
	}
	email, _ := middleware.GetUserEmailFromContext(c)
	return checkout.Customer{Login: login, Email: email}, true
}

// parseIDParam reads a positive numeric path parameter or writes a 400
func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid " + name,
			"details": c.Param(name),
		})
		return 0, false
	}
	return id, true
}

// errorStatus maps domain and backend errors to HTTP status codes
func errorStatus(err error) int {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, checkout.ErrPaymentInProgress),
		errors.Is(err, checkout.ErrInvalidTransition),
		errors.Is(err, checkout.ErrNotRefundable):
		return http.StatusConflict
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidPayload),
		errors.Is(err, cart.ErrInvalidID),
		errors.Is(err, cart.ErrInvalidCloseStatus),
		errors.Is(err, cart.ErrUnsupportedPaymentType):
		return http.StatusBadRequest
	case errors.Is(err, cart.ErrCartNotFound), errors.Is(err, checkout.ErrNoPaymentCache):
		return http.StatusNotFound
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized,
			apiErr.StatusCode == http.StatusForbidden,
			apiErr.StatusCode == http.StatusNotFound:
			return apiErr.StatusCode
		case apiErr.StatusCode < http.StatusInternalServerError:
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	case errors.Is(err, backend.ErrUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// respondError writes the error envelope and records err on the gin context for the request log
func respondError(c *gin.Context, message string, err error) {
	status := errorStatus(err)
	_ = c.Error(err)

	body := gin.H{"error": message}
	if status < http.StatusInternalServerError {
		body["details"] = err.Error()
	}
	c.JSON(status, body)
}
