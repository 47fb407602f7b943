// internal/domain/cart/service.go
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrCartNotFound       = errors.New("cart not found")
	ErrInvalidID          = errors.New("id must be a positive integer")
	ErrInvalidCloseStatus = errors.New("status cannot be used to close a cart")
)

// Backend is the REST backend that owns carts
type Backend interface {
	ActiveCart(ctx context.Context) (*ShoppingCart, error)
	CartHistory(ctx context.Context) ([]ShoppingCart, error)
	AddProduct(ctx context.Context, productID int64) (*ShoppingCart, error)
	RemoveOrder(ctx context.Context, orderID int64) (*ShoppingCart, error)
	CloseCart(ctx context.Context, paymentType, paymentRef string, status OrderStatus) error
}

// Service handles cart operations for the authenticated shopper in ctx
type Service struct {
	backend Backend
	logger  *logrus.Logger
}

// NewService creates a new cart service
func NewService(backend Backend, logger *logrus.Logger) *Service {
	return &Service{
		backend: backend,
		logger:  logger,
	}
}

// GetActiveCart returns the shopper's open cart, or an empty one
func (s *Service) GetActiveCart(ctx context.Context) (*ShoppingCart, error) {
	cart, err := s.backend.ActiveCart(ctx)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return EmptyCart(), nil
	}
	return normalize(cart), nil
}

// GetCartHistory returns every cart the shopper has owned
func (s *Service) GetCartHistory(ctx context.Context) ([]ShoppingCart, error) {
	carts, err := s.backend.CartHistory(ctx)
	if err != nil {
		return nil, err
	}
	for i := range carts {
		normalize(&carts[i])
	}
	return carts, nil
}

// FindInHistory returns one of the shopper's carts by id
func (s *Service) FindInHistory(ctx context.Context, cartID int64) (*ShoppingCart, error) {
	if cartID <= 0 {
		return nil, ErrInvalidID
	}
	carts, err := s.GetCartHistory(ctx)
	if err != nil {
		return nil, err
	}
	for i := range carts {
		if carts[i].ID == cartID {
			return &carts[i], nil
		}
	}
	return nil, ErrCartNotFound
}

// AddLineItem adds one unit of a product to the active cart
func (s *Service) AddLineItem(ctx context.Context, productID int64) (*ShoppingCart, error) {
	if productID <= 0 {
		return nil, ErrInvalidID
	}
	cart, err := s.backend.AddProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to add product %d: %w", productID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"product_id":  productID,
		"cart_id":     cart.ID,
		"total_price": cart.TotalPrice.String(),
	}).Debug("Product added to cart")

	return normalize(cart), nil
}

// RemoveLineItem removes a line item from the active cart
func (s *Service) RemoveLineItem(ctx context.Context, orderID int64) (*ShoppingCart, error) {
	if orderID <= 0 {
		return nil, ErrInvalidID
	}
	cart, err := s.backend.RemoveOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove order %d: %w", orderID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":    orderID,
		"cart_id":     cart.ID,
		"total_price": cart.TotalPrice.String(),
	}).Debug("Line item removed from cart")

	return normalize(cart), nil
}

// CloseCart finalises the active cart with a terminal status
func (s *Service) CloseCart(ctx context.Context, paymentType, paymentRef string, status OrderStatus) error {
	if !status.IsClosingStatus() {
		return fmt.Errorf("%w: %s", ErrInvalidCloseStatus, status)
	}
	if _, err := PaymentMethodFromProvider(paymentType); err != nil {
		return err
	}

	if err := s.backend.CloseCart(ctx, paymentType, paymentRef, status); err != nil {
		return fmt.Errorf("failed to close cart: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"payment_type": paymentType,
		"payment_ref":  paymentRef,
		"status":       status,
	}).Info("Cart closed")

	return nil
}

// normalize fills the fields older backends leave out
func normalize(c *ShoppingCart) *ShoppingCart {
	if c.Orders == nil {
		c.Orders = []ProductOrder{}
	}
	if c.Status == "" {
		c.Status = OrderStatusOpen
	}
	if c.TotalPrice.IsZero() && !c.IsEmpty() {
		c.TotalPrice = c.LinesTotal()
	}
	c.TotalPrice = c.TotalPrice.Round(2)
	if c.TotalPrice.IsNegative() {
		c.TotalPrice = decimal.Zero
	}
	return c
}
