// internal/config/config.go
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the checkout service
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Security SecurityConfig
	Backend  BackendConfig
	Checkout CheckoutConfig
	External ExternalConfig
	Receipt  ReceiptConfig
	Logging  LoggingConfig
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string
	Version     string
	Environment string
	Debug       bool
	// PublicURL is where the storefront is served; status pages are resolved against it.
	PublicURL string
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	Name         string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	OpTimeout    time.Duration
}

// JWTConfig contains the settings used to validate storefront access tokens
type JWTConfig struct {
	Secret            string
	SecretBase64      bool
	Issuer            string
	AccessTokenExpiry time.Duration
}

// SigningKey returns the HMAC key tokens are signed with.
// JHipster backends keep it base64 encoded, which SecretBase64 selects.
func (j JWTConfig) SigningKey() ([]byte, error) {
	if !j.SecretBase64 {
		return []byte(j.Secret), nil
	}
	key, err := base64.StdEncoding.DecodeString(j.Secret)
	if err != nil {
		return nil, fmt.Errorf("JWT_SECRET is not valid base64: %w", err)
	}
	return key, nil
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	TrustedProxies     []string
}

// BackendConfig describes the REST backend that owns carts and talks to the payment provider
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration

	// Circuit breaker
	BreakerMaxRequests  uint32
	BreakerInterval     time.Duration
	BreakerOpenTimeout  time.Duration
	BreakerFailureRatio float64
	BreakerMinRequests  uint32
}

// CheckoutConfig contains orchestrator behaviour settings
type CheckoutConfig struct {
	Currency        string
	Locale          string
	StatusBasePath  string
	SessionTTL      time.Duration
	InFlightTTL     time.Duration
	PaymentCacheTTL time.Duration
}

// ExternalConfig contains external service configurations
type ExternalConfig struct {
	Email EmailConfig
}

// EmailConfig contains SendGrid notification configuration
type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// ReceiptConfig contains the company details printed on receipts
type ReceiptConfig struct {
	CompanyName    string
	CompanyAddress string
	CompanyEmail   string
	CompanyWebsite string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	config := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Storefront Checkout"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
			Debug:       getEnvAsBool("APP_DEBUG", true),
			PublicURL:   getEnv("APP_PUBLIC_URL", "http://localhost:9000"),
		},
		Server: ServerConfig{
			Port:           getEnv("APP_PORT", "8080"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			MaxBodyBytes:   getEnvAsInt64("SERVER_MAX_BODY_BYTES", 1<<20),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Name:         getEnv("DB_NAME", "checkout_db"),
			User:         getEnv("DB_USER", "checkout_user"),
			Password:     getEnv("DB_PASSWORD", "checkout_password"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 300*time.Second),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			OpTimeout:    getEnvAsDuration("REDIS_OP_TIMEOUT", 3*time.Second),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", "your-super-secret-jwt-key-change-in-production"),
			SecretBase64:      getEnvAsBool("JWT_SECRET_BASE64", false),
			Issuer:            getEnv("JWT_ISSUER", ""),
			AccessTokenExpiry: getEnvAsDuration("JWT_ACCESS_EXPIRE", 24*time.Hour),
		},
		Security: SecurityConfig{
			RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 100),
			CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:9000"}),
			CORSAllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			CORSAllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}),
			TrustedProxies:     getEnvAsSlice("TRUSTED_PROXIES", []string{}),
		},
		Backend: BackendConfig{
			BaseURL:             getEnv("BACKEND_BASE_URL", "http://localhost:8081"),
			Timeout:             getEnvAsDuration("BACKEND_TIMEOUT", 15*time.Second),
			BreakerMaxRequests:  uint32(getEnvAsInt("BACKEND_BREAKER_MAX_REQUESTS", 1)),
			BreakerInterval:     getEnvAsDuration("BACKEND_BREAKER_INTERVAL", 60*time.Second),
			BreakerOpenTimeout:  getEnvAsDuration("BACKEND_BREAKER_OPEN_TIMEOUT", 30*time.Second),
			BreakerFailureRatio: getEnvAsFloat("BACKEND_BREAKER_FAILURE_RATIO", 0.6),
			BreakerMinRequests:  uint32(getEnvAsInt("BACKEND_BREAKER_MIN_REQUESTS", 5)),
		},
		Checkout: CheckoutConfig{
			Currency:        getEnv("CHECKOUT_CURRENCY", "EUR"),
			Locale:          getEnv("CHECKOUT_LOCALE", "en_US"),
			StatusBasePath:  getEnv("CHECKOUT_STATUS_PATH", "/checkout/status"),
			SessionTTL:      getEnvAsDuration("CHECKOUT_SESSION_TTL", 24*time.Hour),
			InFlightTTL:     getEnvAsDuration("CHECKOUT_INFLIGHT_TTL", 60*time.Second),
			PaymentCacheTTL: getEnvAsDuration("CHECKOUT_PAYMENT_CACHE_TTL", time.Hour),
		},
		External: ExternalConfig{
			Email: EmailConfig{
				APIKey:    getEnv("SENDGRID_API_KEY", ""),
				FromEmail: getEnv("FROM_EMAIL", "noreply@example.com"),
				FromName:  getEnv("FROM_NAME", "Storefront"),
			},
		},
		Receipt: ReceiptConfig{
			CompanyName:    getEnv("COMPANY_NAME", "Storefront"),
			CompanyAddress: getEnv("COMPANY_ADDRESS", ""),
			CompanyEmail:   getEnv("COMPANY_EMAIL", "support@example.com"),
			CompanyWebsite: getEnv("COMPANY_WEBSITE", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "debug"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	key, err := c.JWT.SigningKey()
	if err != nil {
		return err
	}
	if len(key) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("APP_PORT is required")
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Checkout.StatusBasePath, "/") {
		return fmt.Errorf("CHECKOUT_STATUS_PATH must start with /")
	}
	if c.Backend.BreakerFailureRatio <= 0 || c.Backend.BreakerFailureRatio > 1 {
		return fmt.Errorf("BACKEND_BREAKER_FAILURE_RATIO must be in (0, 1]")
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		values := make([]string, 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
		return values
	}
	return defaultValue
}
