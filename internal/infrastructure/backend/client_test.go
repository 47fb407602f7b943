package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-checkout/internal/config"
	"github.com/your-org/storefront-checkout/internal/domain/cart"
	"github.com/your-org/storefront-checkout/internal/domain/checkout"
	"github.com/your-org/storefront-checkout/internal/pkg/auth"
	"github.com/your-org/storefront-checkout/internal/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		Backend: config.BackendConfig{
			BaseURL:             server.URL + "/",
			Timeout:             2 * time.Second,
			BreakerMaxRequests:  1,
			BreakerInterval:     time.Minute,
			BreakerOpenTimeout:  time.Minute,
			BreakerFailureRatio: 0.5,
			BreakerMinRequests:  3,
		},
	}
	return NewClient(cfg, logger.Discard())
}

func TestActiveCart_ForwardsBearer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/shopping-carts/current-user-active", r.URL.Path)
		assert.Equal(t, "Bearer shopper-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":5,"status":"OPEN","totalPrice":20.0,"orders":[{"id":1,"quantity":2,"totalPrice":20.0,"product":{"id":1,"name":"Tee","price":10.0}}]}`)
	})

	ctx := auth.WithBearer(context.Background(), "shopper-token")
	sc, err := client.ActiveCart(ctx)
	require.NoError(t, err)
	require.NotNil(t, sc)
	assert.Equal(t, int64(5), sc.ID)
	assert.True(t, decimal.NewFromInt(20).Equal(sc.TotalPrice))
	require.Len(t, sc.Orders, 1)
	assert.Equal(t, "Tee", sc.Orders[0].Product.Name)
}

func TestActiveCart_EmptyBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	sc, err := client.ActiveCart(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sc)
}

func TestCartHistory_LegacyStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/shopping-carts/current-user", r.URL.Path)
		_, _ = io.WriteString(w, `[{"id":1,"status":"COMPLETED","totalPrice":5},{"id":2,"status":"REFUNDED","totalPrice":7}]`)
	})

	carts, err := client.CartHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, carts, 2)
	assert.Equal(t, cart.OrderStatusPaid, carts[0].Status)
	assert.Equal(t, cart.OrderStatusRefunded, carts[1].Status)
}

func TestAddProductAndRemoveOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/api/shopping-carts/add-product/3":
			_, _ = io.WriteString(w, `{"id":1,"status":"OPEN","totalPrice":9.99,"orders":[{"id":4,"quantity":1,"totalPrice":9.99}]}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/api/shopping-carts/remove-order/4":
			_, _ = io.WriteString(w, `{"id":1,"status":"OPEN","totalPrice":0,"orders":[]}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	sc, err := client.AddProduct(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, sc.Orders, 1)

	sc, err = client.RemoveOrder(ctx, 4)
	require.NoError(t, err)
	assert.Empty(t, sc.Orders)
}

func TestCloseCart_QueryParameters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/shopping-carts/close", r.URL.Path)
		assert.Equal(t, "ideal", r.URL.Query().Get("paymentType"))
		assert.Equal(t, "PSP 1&2", r.URL.Query().Get("paymentRef"))
		assert.Equal(t, "PENDING", r.URL.Query().Get("status"))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.CloseCart(context.Background(), "ideal", "PSP 1&2", cart.OrderStatusPending))
}

func TestInitiatePayment_RelaysPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/checkout/initiate-payment", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"paymentMethod":{"type":"scheme"}}`, string(body))
		_, _ = io.WriteString(w, `{"resultCode":"RedirectShopper","action":{"type":"redirect","paymentData":"PD"}}`)
	})

	resp, err := client.InitiatePayment(context.Background(), json.RawMessage(`{"paymentMethod":{"type":"scheme"}}`))
	require.NoError(t, err)
	assert.Equal(t, checkout.ResultRedirectShopper, resp.ResultCode)
	assert.Equal(t, "PD", resp.ActionPaymentData())
}

func TestRefundPayment_PostsCart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/checkout/refund-payment", r.URL.Path)
		var sc cart.ShoppingCart
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sc))
		assert.Equal(t, int64(9), sc.ID)
		assert.Equal(t, "PSP1", sc.PaymentReference)
		w.WriteHeader(http.StatusOK)
	})

	err := client.RefundPayment(context.Background(), &cart.ShoppingCart{ID: 9, Status: cart.OrderStatusPaid, PaymentReference: "PSP1"})
	require.NoError(t, err)
}

func TestAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"title":"Product not found"}`)
	})

	_, err := client.AddProduct(context.Background(), 42)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "Product not found")
}

func TestCircuitBreaker_OpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := client.Config(ctx)
		require.Error(t, err)
	}

	_, err := client.Config(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCircuitBreaker_IgnoresClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := client.PaymentMethods(ctx)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
	}
	assert.Equal(t, int32(5), calls.Load())
}

func TestTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	cfg := &config.Config{Backend: config.BackendConfig{
		BaseURL:             url,
		Timeout:             time.Second,
		BreakerMaxRequests:  1,
		BreakerInterval:     time.Minute,
		BreakerOpenTimeout:  time.Minute,
		BreakerFailureRatio: 1,
		BreakerMinRequests:  10,
	}}
	client := NewClient(cfg, logger.Discard())

	_, err := client.ActiveCart(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}
