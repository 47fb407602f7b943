package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-checkout/internal/config"
	"github.com/your-org/storefront-checkout/internal/domain/cart"
	"github.com/your-org/storefront-checkout/internal/domain/checkout"
	"github.com/your-org/storefront-checkout/internal/infrastructure/backend"
	"github.com/your-org/storefront-checkout/internal/pkg/auth"
	"github.com/your-org/storefront-checkout/internal/pkg/email"
	"github.com/your-org/storefront-checkout/internal/pkg/logger"
	"github.com/your-org/storefront-checkout/internal/pkg/pdf"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serverConfig(backendURL string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "checkout", Version: "test", Environment: "test", PublicURL: "https://shop.example.com"},
		Server: config.ServerConfig{
			RequestTimeout: 5 * time.Second,
			MaxBodyBytes:   1 << 20,
		},
		JWT: config.JWTConfig{Secret: "test-secret-that-is-long-enough-for-hs512", AccessTokenExpiry: time.Hour},
		Security: config.SecurityConfig{
			RateLimitPerMinute: 100,
			CORSAllowedOrigins: []string{"https://shop.example.com"},
		},
		Backend: config.BackendConfig{
			BaseURL:             backendURL,
			Timeout:             2 * time.Second,
			BreakerMaxRequests:  1,
			BreakerInterval:     time.Minute,
			BreakerOpenTimeout:  time.Minute,
			BreakerFailureRatio: 0.6,
			BreakerMinRequests:  5,
		},
		Checkout: config.CheckoutConfig{
			Currency:        "EUR",
			StatusBasePath:  "/checkout/status",
			SessionTTL:      time.Hour,
			InFlightTTL:     time.Minute,
			PaymentCacheTTL: time.Hour,
		},
	}
}

// fakeStorefront plays the storefront backend for one cart of two €10 shirts.
type fakeStorefront struct {
	mu      sync.Mutex
	bearers []string
	closed  string
}

func (f *fakeStorefront) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.bearers = append(f.bearers, r.Header.Get("Authorization"))
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/shopping-carts/current-user-active":
		_, _ = io.WriteString(w, `{"id":5,"status":"OPEN","totalPrice":20,"orders":[{"id":1,"quantity":2,"totalPrice":20,"product":{"id":1,"name":"Tee","price":10}}]}`)
	case r.Method == http.MethodPost && r.URL.Path == "/api/checkout/initiate-payment":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		amount, _ := body["amount"].(map[string]any)
		if amount["value"] != float64(2000) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"resultCode":"Authorised","pspReference":"PSP-77"}`)
	case r.Method == http.MethodPut && r.URL.Path == "/api/shopping-carts/close":
		f.mu.Lock()
		f.closed = r.URL.Query().Get("status")
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestServer(t *testing.T) (*Server, *fakeStorefront, *config.Config) {
	t.Helper()
	storefront := &fakeStorefront{}
	upstream := httptest.NewServer(storefront)
	t.Cleanup(upstream.Close)

	cfg := serverConfig(upstream.URL)
	log := logger.Discard()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	// Attempt journaling fails against the mock and is only logged.
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	client := backend.NewClient(cfg, log)
	orchestrator := checkout.NewService(checkout.Dependencies{
		Carts:    cart.NewService(client, log),
		Gateway:  client,
		Sessions: checkout.NewSessionStore(rdb, cfg.Checkout.SessionTTL),
		Guard:    checkout.NewInFlightGuard(rdb, cfg.Checkout.InFlightTTL, log),
		Repo:     checkout.NewRepository(db),
		Notifier: email.NewEmailService(cfg, log),
		Tokens:   auth.NewJWTManager(cfg),
	}, cfg, log)

	server := NewServer(cfg, Dependencies{
		Redis:        rdb,
		Orchestrator: orchestrator,
		Receipts:     pdf.NewService(cfg),
	}, log)
	return server, storefront, cfg
}

func TestHealthAndReadiness(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ready"`)
}

func TestHealth_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	mr.Close()

	server := NewServer(serverConfig("http://localhost:1"), Dependencies{Redis: rdb}, logger.Discard())

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis ping failed")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRedirectWithoutCookieLandsOnErrorPage(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/checkout/redirect?payload=abc", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "https://shop.example.com/checkout/status/error?reason="))
}

func TestInitiatePayment_EndToEnd(t *testing.T) {
	server, storefront, cfg := newTestServer(t)
	token, err := auth.NewJWTManager(cfg).GenerateAccessToken("alice", "alice@example.com", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/initiate-payment",
		strings.NewReader(`{"paymentMethod":{"type":"scheme","encryptedCardNumber":"enc"}}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://shop.example.com")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Data checkout.PaymentResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, checkout.ResultAuthorised, body.Data.ResultCode)
	assert.Equal(t, checkout.PageSuccess, body.Data.Outcome.Page)
	assert.True(t, strings.HasPrefix(body.Data.Outcome.Location, "/checkout/status/success"))
	assert.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	storefront.mu.Lock()
	defer storefront.mu.Unlock()
	assert.Equal(t, "PAID", storefront.closed)
	for _, bearer := range storefront.bearers {
		assert.Equal(t, "Bearer "+token, bearer)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/checkout/state", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"phase":"PAID"`)
}
