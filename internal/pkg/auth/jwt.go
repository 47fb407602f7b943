// internal/pkg/auth/jwt.go
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/your-org/storefront-checkout/internal/config"
)

// Claims represents the storefront access token claims.
// The subject is the shopper's login.
type Claims struct {
	Email       string `json:"email,omitempty"`
	Authorities string `json:"auth,omitempty"`
	jwt.RegisteredClaims
}

// Login returns the shopper login carried in the subject
func (c *Claims) Login() string {
	return c.Subject
}

// HasAuthority reports whether the comma separated authorities include role
func (c *Claims) HasAuthority(role string) bool {
	for _, authority := range strings.Split(c.Authorities, ",") {
		if strings.TrimSpace(authority) == role {
			return true
		}
	}
	return false
}

// JWTManager validates tokens issued by the storefront and issues short-lived
// tokens for calls made on a shopper's behalf
type JWTManager struct {
	config *config.Config
	key    []byte
	keyErr error
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(cfg *config.Config) *JWTManager {
	key, err := cfg.JWT.SigningKey()
	return &JWTManager{
		config: cfg,
		key:    key,
		keyErr: err,
	}
}

// GenerateAccessToken issues a token for login valid for ttl
func (j *JWTManager) GenerateAccessToken(login, email string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	if ttl <= 0 {
		ttl = j.config.JWT.AccessTokenExpiry
	}

	claims := &Claims{
		Email:       email,
		Authorities: "ROLE_USER",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.config.JWT.Issuer,
			Subject:   login,
		},
	}

	if j.keyErr != nil {
		return "", j.keyErr
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString(j.key)
}

// IssueFor implements the checkout token issuer used after provider redirects
func (j *JWTManager) IssueFor(login, email string) (string, error) {
	return j.GenerateAccessToken(login, email, 5*time.Minute)
}

// ValidateToken validates and parses a JWT token
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.key, j.keyErr
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("token subject not specified")
	}
	if j.config.JWT.Issuer != "" && claims.Issuer != j.config.JWT.Issuer {
		return nil, fmt.Errorf("unexpected token issuer: %s", claims.Issuer)
	}

	return claims, nil
}

// ExtractTokenFromHeader extracts JWT token from Authorization header
func ExtractTokenFromHeader(authHeader string) string {
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		return authHeader[7:]
	}
	return ""
}

type bearerKey struct{}

// WithBearer returns a context carrying the token to forward to the backend
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

// BearerFrom returns the token stored by WithBearer
func BearerFrom(ctx context.Context) string {
	token, _ := ctx.Value(bearerKey{}).(string)
	return token
}
