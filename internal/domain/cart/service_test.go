package cart_test

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-checkout/internal/domain/cart"
	"github.com/your-org/storefront-checkout/internal/domain/cart/carttest"
	"github.com/your-org/storefront-checkout/internal/pkg/logger"
)

func newService(products ...cart.Product) (*cart.Service, *carttest.MemoryBackend) {
	backend := carttest.NewMemoryBackend(products...)
	return cart.NewService(backend, logger.Discard()), backend
}

func TestGetActiveCart_NoCart(t *testing.T) {
	svc, _ := newService()

	sc, err := svc.GetActiveCart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cart.OrderStatusOpen, sc.Status)
	assert.Empty(t, sc.Orders)
	assert.True(t, sc.TotalPrice.IsZero())
}

func TestAddAndRemoveLineItem(t *testing.T) {
	svc, _ := newService(carttest.Product(1, "Tee", "10.00"))
	ctx := context.Background()

	_, err := svc.AddLineItem(ctx, 1)
	require.NoError(t, err)
	sc, err := svc.AddLineItem(ctx, 1)
	require.NoError(t, err)

	require.Len(t, sc.Orders, 1)
	assert.Equal(t, 2, sc.Orders[0].Quantity)
	assert.Equal(t, "20.00", sc.TotalPrice.StringFixed(2))

	sc, err = svc.RemoveLineItem(ctx, sc.Orders[0].ID)
	require.NoError(t, err)
	assert.Empty(t, sc.Orders)
	assert.Equal(t, "0.00", sc.TotalPrice.StringFixed(2))
}

func TestAddLineItem_InvalidID(t *testing.T) {
	svc, _ := newService()

	_, err := svc.AddLineItem(context.Background(), 0)
	assert.ErrorIs(t, err, cart.ErrInvalidID)

	_, err = svc.RemoveLineItem(context.Background(), -4)
	assert.ErrorIs(t, err, cart.ErrInvalidID)
}

func TestAddLineItem_BackendError(t *testing.T) {
	svc, backend := newService(carttest.Product(1, "Tee", "10.00"))
	backend.Err = errors.New("connection refused")

	_, err := svc.AddLineItem(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.Err)
}

func TestCloseCart(t *testing.T) {
	svc, backend := newService(carttest.Product(1, "Tee", "10.00"))
	ctx := context.Background()
	_, err := svc.AddLineItem(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, svc.CloseCart(ctx, "scheme", "PSP1", cart.OrderStatusPaid))
	require.Len(t, backend.Closes, 1)
	assert.Equal(t, carttest.CloseCall{PaymentType: "scheme", PaymentRef: "PSP1", Status: cart.OrderStatusPaid}, backend.Closes[0])

	active, err := svc.GetActiveCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, active.Orders)

	history, err := svc.GetCartHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, cart.OrderStatusPaid, history[0].Status)
	assert.Equal(t, cart.PaymentMethodCreditCard, history[0].PaymentMethod)
}

func TestCloseCart_Validation(t *testing.T) {
	svc, backend := newService()
	ctx := context.Background()

	err := svc.CloseCart(ctx, "scheme", "PSP1", cart.OrderStatusRefunded)
	assert.ErrorIs(t, err, cart.ErrInvalidCloseStatus)

	err = svc.CloseCart(ctx, "paypal", "PSP1", cart.OrderStatusPaid)
	assert.ErrorIs(t, err, cart.ErrUnsupportedPaymentType)

	assert.Empty(t, backend.Closes)
}

func TestFindInHistory(t *testing.T) {
	svc, backend := newService()
	backend.AddHistory(cart.ShoppingCart{ID: 7, Status: cart.OrderStatusPaid, TotalPrice: decimal.RequireFromString("5")})

	sc, err := svc.FindInHistory(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), sc.ID)
	assert.NotNil(t, sc.Orders)

	_, err = svc.FindInHistory(context.Background(), 8)
	assert.ErrorIs(t, err, cart.ErrCartNotFound)

	_, err = svc.FindInHistory(context.Background(), 0)
	assert.ErrorIs(t, err, cart.ErrInvalidID)
}

func TestGetCartHistory_FillsMissingTotal(t *testing.T) {
	svc, backend := newService()
	backend.AddHistory(cart.ShoppingCart{
		ID:     2,
		Status: cart.OrderStatusPaid,
		Orders: []cart.ProductOrder{
			{ID: 1, Quantity: 1, TotalPrice: decimal.RequireFromString("3.333")},
			{ID: 2, Quantity: 1, TotalPrice: decimal.RequireFromString("1.001")},
		},
	})

	history, err := svc.GetCartHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "4.33", history[0].TotalPrice.StringFixed(2))
}

func TestLineItems_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("total tracks line items and returns to zero", prop.ForAll(
		func(productIDs []int64) bool {
			svc, _ := newService(
				carttest.Product(1, "Tee", "10.00"),
				carttest.Product(2, "Cap", "4.99"),
				carttest.Product(3, "Scarf", "12.50"),
			)
			ctx := context.Background()

			var sc *cart.ShoppingCart
			for _, id := range productIDs {
				var err error
				sc, err = svc.AddLineItem(ctx, id)
				if err != nil || !sc.TotalPrice.Equal(sc.LinesTotal()) {
					return false
				}
			}
			if sc == nil {
				return true
			}
			if sc.ItemCount() != len(productIDs) {
				return false
			}

			for len(sc.Orders) > 0 {
				var err error
				sc, err = svc.RemoveLineItem(ctx, sc.Orders[0].ID)
				if err != nil {
					return false
				}
			}
			return sc.TotalPrice.IsZero()
		},
		gen.SliceOf(gen.Int64Range(1, 3)),
	))

	properties.TestingRun(t)
}
