package cart

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    OrderStatus
		wantErr bool
	}{
		{in: "OPEN", want: OrderStatusOpen},
		{in: "PAID", want: OrderStatusPaid},
		{in: "COMPLETED", want: OrderStatusPaid},
		{in: "REFUND_FAILED", want: OrderStatusRefundFailed},
		{in: "SHIPPED", wantErr: true},
		{in: "paid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOrderStatus(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShoppingCart_UnmarshalStatus(t *testing.T) {
	var sc ShoppingCart
	require.NoError(t, json.Unmarshal([]byte(`{"id":3,"status":null,"totalPrice":12.5,"orders":[]}`), &sc))
	assert.Equal(t, OrderStatusOpen, sc.Status)
	assert.True(t, decimal.RequireFromString("12.5").Equal(sc.TotalPrice))

	require.NoError(t, json.Unmarshal([]byte(`{"id":3,"status":"COMPLETED"}`), &sc))
	assert.Equal(t, OrderStatusPaid, sc.Status)

	err := json.Unmarshal([]byte(`{"id":3,"status":"LOST"}`), &sc)
	assert.Error(t, err)
}

func TestIsClosingStatus(t *testing.T) {
	assert.True(t, OrderStatusPaid.IsClosingStatus())
	assert.True(t, OrderStatusPending.IsClosingStatus())
	assert.True(t, OrderStatusCancelled.IsClosingStatus())
	assert.False(t, OrderStatusOpen.IsClosingStatus())
	assert.False(t, OrderStatusRefunded.IsClosingStatus())
}

func TestPaymentMethodMapping(t *testing.T) {
	assert.Equal(t, "scheme", PaymentMethodCreditCard.ProviderType())
	assert.Equal(t, "ideal", PaymentMethodIdeal.ProviderType())

	m, err := PaymentMethodFromProvider("ideal")
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodIdeal, m)

	_, err = PaymentMethodFromProvider("paypal")
	assert.ErrorIs(t, err, ErrUnsupportedPaymentType)
}

func TestShoppingCart_Refundable(t *testing.T) {
	for status, want := range map[OrderStatus]bool{
		OrderStatusPaid:            true,
		OrderStatusRefundFailed:    true,
		OrderStatusPending:         false,
		OrderStatusRefundInitiated: false,
		OrderStatusRefunded:        false,
		OrderStatusOpen:            false,
	} {
		sc := &ShoppingCart{Status: status}
		assert.Equal(t, want, sc.CanBeRefunded(), status)
	}
}

func TestShoppingCart_Totals(t *testing.T) {
	sc := &ShoppingCart{Orders: []ProductOrder{
		{ID: 1, Quantity: 2, TotalPrice: decimal.RequireFromString("20.00")},
		{ID: 2, Quantity: 1, TotalPrice: decimal.RequireFromString("4.99")},
	}}

	assert.Equal(t, 3, sc.ItemCount())
	assert.True(t, decimal.RequireFromString("24.99").Equal(sc.LinesTotal()))

	order, ok := sc.FindOrder(2)
	require.True(t, ok)
	assert.Equal(t, 1, order.Quantity)

	_, ok = sc.FindOrder(9)
	assert.False(t, ok)
}

func TestEmptyCart(t *testing.T) {
	sc := EmptyCart()
	assert.True(t, sc.IsActive())
	assert.True(t, sc.IsEmpty())
	assert.NotNil(t, sc.Orders)
	assert.True(t, sc.TotalPrice.IsZero())
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(2000), MinorUnits(decimal.RequireFromString("20")))
	assert.Equal(t, int64(1999), MinorUnits(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(1), MinorUnits(decimal.RequireFromString("0.005")))
	assert.Equal(t, int64(0), MinorUnits(decimal.Zero))
}

func TestMinorUnits_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("cents survive conversion", prop.ForAll(
		func(cents int64) bool {
			return MinorUnits(decimal.New(cents, -2)) == cents
		},
		gen.Int64Range(0, 100_000_000),
	))

	properties.TestingRun(t)
}
