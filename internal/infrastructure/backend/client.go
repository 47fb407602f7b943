// internal/infrastructure/backend/client.go
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"github.com/your-org/storefront-checkout/internal/config"
	"github.com/your-org/storefront-checkout/internal/domain/cart"
	"github.com/your-org/storefront-checkout/internal/domain/checkout"
	"github.com/your-org/storefront-checkout/internal/pkg/auth"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrUnavailable wraps transport failures and an open circuit
var ErrUnavailable = errors.New("backend unavailable")

// APIError is a non-2xx answer from the backend
type APIError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend %s %s returned %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}

// Client talks to the storefront REST backend on behalf of the shopper in ctx
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *logrus.Logger
}

var (
	_ cart.Backend     = (*Client)(nil)
	_ checkout.Gateway = (*Client)(nil)
)

// NewClient creates a new backend client
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	settings := gobreaker.Settings{
		Name:        "storefront-backend",
		MaxRequests: cfg.Backend.BreakerMaxRequests,
		Interval:    cfg.Backend.BreakerInterval,
		Timeout:     cfg.Backend.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.Backend.BreakerMinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.Backend.BreakerFailureRatio
		},
		// Client errors are the caller's problem, not a sick backend.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Backend circuit breaker changed state")
		},
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.Backend.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.Backend.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		logger:  logger,
	}
}

// makeAPICall performs one JSON request through the circuit breaker
func (c *Client) makeAPICall(ctx context.Context, method, endpoint string, data interface{}) ([]byte, error) {
	var reqBody []byte
	if data != nil {
		var err error
		reqBody, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request data: %w", err)
		}
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bytes.NewReader(reqBody))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token := auth.BearerFrom(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return nil, &APIError{
				Method:     method,
				Endpoint:   endpoint,
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(respBody)),
			}
		}
		return respBody, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"method":   method,
			"endpoint": endpoint,
			"error":    err.Error(),
		}).Warn("Backend call failed")
		return nil, err
	}
	return body, nil
}

func decode(body []byte, dest interface{}) error {
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to parse backend response: %w", err)
	}
	return nil
}

func isBlank(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ActiveCart returns nil when the shopper has no active cart
func (c *Client) ActiveCart(ctx context.Context) (*cart.ShoppingCart, error) {
	body, err := c.makeAPICall(ctx, http.MethodGet, "/api/shopping-carts/current-user-active", nil)
	if err != nil {
		return nil, err
	}
	if isBlank(body) {
		return nil, nil
	}
	var sc cart.ShoppingCart
	if err := decode(body, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (c *Client) CartHistory(ctx context.Context) ([]cart.ShoppingCart, error) {
	body, err := c.makeAPICall(ctx, http.MethodGet, "/api/shopping-carts/current-user", nil)
	if err != nil {
		return nil, err
	}
	carts := []cart.ShoppingCart{}
	if isBlank(body) {
		return carts, nil
	}
	if err := decode(body, &carts); err != nil {
		return nil, err
	}
	return carts, nil
}

func (c *Client) AddProduct(ctx context.Context, productID int64) (*cart.ShoppingCart, error) {
	body, err := c.makeAPICall(ctx, http.MethodPut, fmt.Sprintf("/api/shopping-carts/add-product/%d", productID), nil)
	if err != nil {
		return nil, err
	}
	var sc cart.ShoppingCart
	if err := decode(body, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (c *Client) RemoveOrder(ctx context.Context, orderID int64) (*cart.ShoppingCart, error) {
	body, err := c.makeAPICall(ctx, http.MethodDelete, fmt.Sprintf("/api/shopping-carts/remove-order/%d", orderID), nil)
	if err != nil {
		return nil, err
	}
	var sc cart.ShoppingCart
	if err := decode(body, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (c *Client) CloseCart(ctx context.Context, paymentType, paymentRef string, status cart.OrderStatus) error {
	query := url.Values{}
	query.Set("paymentType", paymentType)
	query.Set("paymentRef", paymentRef)
	query.Set("status", string(status))

	_, err := c.makeAPICall(ctx, http.MethodPut, "/api/shopping-carts/close?"+query.Encode(), nil)
	return err
}

func (c *Client) Config(ctx context.Context) (map[string]any, error) {
	body, err := c.makeAPICall(ctx, http.MethodGet, "/api/checkout/config", nil)
	if err != nil {
		return nil, err
	}
	conf := map[string]any{}
	if isBlank(body) {
		return conf, nil
	}
	if err := decode(body, &conf); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Client) PaymentMethods(ctx context.Context) (map[string]any, error) {
	body, err := c.makeAPICall(ctx, http.MethodPost, "/api/checkout/payment-methods", nil)
	if err != nil {
		return nil, err
	}
	methods := map[string]any{}
	if err := decode(body, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

func (c *Client) InitiatePayment(ctx context.Context, payload json.RawMessage) (*checkout.PaymentResponse, error) {
	return c.paymentCall(ctx, "/api/checkout/initiate-payment", payload)
}

func (c *Client) SubmitAdditionalDetails(ctx context.Context, payload json.RawMessage) (*checkout.PaymentResponse, error) {
	return c.paymentCall(ctx, "/api/checkout/submit-additional-details", payload)
}

func (c *Client) paymentCall(ctx context.Context, endpoint string, payload json.RawMessage) (*checkout.PaymentResponse, error) {
	body, err := c.makeAPICall(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, err
	}
	var resp checkout.PaymentResponse
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RefundPayment posts the whole cart, which is what the backend expects
func (c *Client) RefundPayment(ctx context.Context, sc *cart.ShoppingCart) error {
	_, err := c.makeAPICall(ctx, http.MethodPost, "/api/checkout/refund-payment", sc)
	return err
}
