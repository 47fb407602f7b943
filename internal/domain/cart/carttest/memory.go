// Package carttest provides an in-memory cart backend for tests.
package carttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/your-org/storefront-checkout/internal/domain/cart"
)

// CloseCall records one CloseCart request
type CloseCall struct {
	PaymentType string
	PaymentRef  string
	Status      cart.OrderStatus
}

// MemoryBackend behaves like the storefront backend for a single shopper
type MemoryBackend struct {
	mu          sync.Mutex
	products    map[int64]cart.Product
	active      *cart.ShoppingCart
	history     []cart.ShoppingCart
	nextCartID  int64
	nextOrderID int64

	// Err fails every call when set. CloseErr fails only CloseCart.
	Err      error
	CloseErr error
	Closes   []CloseCall
}

var _ cart.Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates a backend selling the given products
func NewMemoryBackend(products ...cart.Product) *MemoryBackend {
	b := &MemoryBackend{
		products:    make(map[int64]cart.Product),
		nextCartID:  1,
		nextOrderID: 1,
	}
	for _, p := range products {
		b.products[p.ID] = p
	}
	return b
}

// Product builds a catalog product priced in euros
func Product(id int64, name, price string) cart.Product {
	return cart.Product{
		ID:    id,
		Name:  name,
		Price: decimal.RequireFromString(price),
	}
}

// AddHistory appends a closed cart to the shopper's history
func (b *MemoryBackend) AddHistory(c cart.ShoppingCart) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.ID >= b.nextCartID {
		b.nextCartID = c.ID + 1
	}
	b.history = append(b.history, copyCart(c))
}

// SetHistoryStatus changes the status of a cart in history, as a webhook would
func (b *MemoryBackend) SetHistoryStatus(cartID int64, status cart.OrderStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.history {
		if b.history[i].ID == cartID {
			b.history[i].Status = status
		}
	}
}

func (b *MemoryBackend) ActiveCart(ctx context.Context) (*cart.ShoppingCart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	if b.active == nil {
		return nil, nil
	}
	c := copyCart(*b.active)
	return &c, nil
}

func (b *MemoryBackend) CartHistory(ctx context.Context) ([]cart.ShoppingCart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	carts := make([]cart.ShoppingCart, 0, len(b.history)+1)
	for _, c := range b.history {
		carts = append(carts, copyCart(c))
	}
	if b.active != nil {
		carts = append(carts, copyCart(*b.active))
	}
	return carts, nil
}

func (b *MemoryBackend) AddProduct(ctx context.Context, productID int64) (*cart.ShoppingCart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	product, ok := b.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %d not found", productID)
	}

	if b.active == nil {
		b.active = &cart.ShoppingCart{
			ID:     b.nextCartID,
			Status: cart.OrderStatusOpen,
			Orders: []cart.ProductOrder{},
		}
		b.nextCartID++
	}

	merged := false
	for i := range b.active.Orders {
		order := &b.active.Orders[i]
		if order.Product != nil && order.Product.ID == productID {
			order.Quantity++
			order.TotalPrice = order.TotalPrice.Add(product.Price)
			merged = true
			break
		}
	}
	if !merged {
		p := product
		b.active.Orders = append(b.active.Orders, cart.ProductOrder{
			ID:         b.nextOrderID,
			Quantity:   1,
			TotalPrice: product.Price,
			Product:    &p,
		})
		b.nextOrderID++
	}
	b.active.TotalPrice = b.active.LinesTotal()

	c := copyCart(*b.active)
	return &c, nil
}

func (b *MemoryBackend) RemoveOrder(ctx context.Context, orderID int64) (*cart.ShoppingCart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	if b.active == nil {
		return nil, fmt.Errorf("no active cart")
	}

	kept := b.active.Orders[:0]
	found := false
	for _, order := range b.active.Orders {
		if order.ID == orderID {
			found = true
			continue
		}
		kept = append(kept, order)
	}
	if !found {
		return nil, fmt.Errorf("order %d not found", orderID)
	}
	b.active.Orders = kept
	b.active.TotalPrice = b.active.LinesTotal()

	c := copyCart(*b.active)
	return &c, nil
}

func (b *MemoryBackend) CloseCart(ctx context.Context, paymentType, paymentRef string, status cart.OrderStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	if b.CloseErr != nil {
		return b.CloseErr
	}
	if b.active == nil {
		return fmt.Errorf("no active cart")
	}

	method, err := cart.PaymentMethodFromProvider(paymentType)
	if err != nil {
		return err
	}
	b.Closes = append(b.Closes, CloseCall{PaymentType: paymentType, PaymentRef: paymentRef, Status: status})

	closed := copyCart(*b.active)
	closed.Status = status
	closed.PaymentMethod = method
	closed.PaymentReference = paymentRef
	b.history = append(b.history, closed)
	b.active = nil
	return nil
}

// CloseCount returns how many times CloseCart succeeded
func (b *MemoryBackend) CloseCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Closes)
}

func copyCart(c cart.ShoppingCart) cart.ShoppingCart {
	orders := make([]cart.ProductOrder, len(c.Orders))
	copy(orders, c.Orders)
	c.Orders = orders
	return c
}
