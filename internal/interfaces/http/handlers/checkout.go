// internal/interfaces/http/handlers/checkout.go
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-checkout/internal/config"
	"github.com/your-org/storefront-checkout/internal/domain/checkout"
	"github.com/your-org/storefront-checkout/internal/interfaces/http/middleware"
)

const (
	// RedirectCookie carries the payment cache key across the provider redirect
	RedirectCookie     = "checkout_ref"
	redirectCookiePath = "/api/v1/checkout"
	redirectCookieAge  = 3600
)

// CheckoutHandler handles payment endpoints
type CheckoutHandler struct {
	checkout Orchestrator
	config   *config.Config
	logger   *logrus.Logger
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(orchestrator Orchestrator, cfg *config.Config, logger *logrus.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: orchestrator,
		config:   cfg,
		logger:   logger,
	}
}

// Config handles GET /checkout/config
func (h *CheckoutHandler) Config(c *gin.Context) {
	who, ok := customerFromContext(c)
	if !ok {
		return
	}

	conf, err := h.checkout.GetConfig(c.Request.Context(), who)
	if err != nil {
		respondError(c, "Failed to load payment configuration", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment configuration retrieved successfully",
		"data":    conf,
	})
}

// PaymentMethods handles POST /checkout/payment-methods
func (h *CheckoutHandler) PaymentMethods(c *gin.Context) {
	who, ok := customerFromContext(c)
	if !ok {
		return
	}

	methods, err := h.checkout.GetPaymentMethods(c.Request.Context(), who)
	if err != nil {
		respondError(c, "Failed to load payment methods", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment methods retrieved successfully",
		"data":    methods,
	})
}

// InitiatePayment handles POST /checkout/initiate-payment
func (h *CheckoutHandler) InitiatePayment(c *gin.Context) {
	who, ok := customerFromContext(c)
	if !ok {
		return
	}
	payload, ok := readPayload(c)
	if !ok {
		return
	}

	result, err := h.checkout.InitiatePayment(c.Request.Context(), who, payload, h.storefrontOrigin(c))
	if err != nil {
		respondError(c, "Failed to initiate payment", err)
		return
	}

	if result.RedirectRef != "" {
		h.setRedirectCookie(c, result.RedirectRef, redirectCookieAge)
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment processed",
		"data":    result,
	})
}

// SubmitAdditionalDetails handles POST /checkout/submit-additional-details
func (h *CheckoutHandler) SubmitAdditionalDetails(c *gin.Context) {
	who, ok := customerFromContext(c)
	if !ok {
		return
	}
	payload, ok := readPayload(c)
	if !ok {
		return
	}

	result, err := h.checkout.SubmitAdditionalDetails(c.Request.Context(), who, payload)
	if err != nil {
		respondError(c, "Failed to submit payment details", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment details processed",
		"data":    result,
	})
}

// Redirect handles GET and POST /checkout/redirect.
// The shopper always ends up on a status page, even when finishing the payment fails.
func (h *CheckoutHandler) Redirect(c *gin.Context) {
	var details checkout.RedirectDetails
	if err := c.ShouldBind(&details); err != nil {
		h.logger.WithError(err).Warn("Unreadable payment redirect parameters")
	}
	orderRef, _ := c.Cookie(RedirectCookie)

	location, err := h.checkout.HandleRedirect(c.Request.Context(), orderRef, details)
	if err != nil {
		_ = c.Error(err)
		h.logger.WithError(err).WithField("order_ref", orderRef).Error("Payment redirect could not be completed")
	}

	h.setRedirectCookie(c, "", -1)
	c.Redirect(http.StatusFound, location)
}

// Refund handles POST /checkout/refund/:cartId
func (h *CheckoutHandler) Refund(c *gin.Context) {
	who, ok := customerFromContext(c)
	if !ok {
		return
	}
	cartID, ok := parseIDParam(c, "cartId")
	if !ok {
		return
	}

	sc, err := h.checkout.Refund(c.Request.Context(), who, cartID)
	if err != nil {
		respondError(c, "Failed to request refund", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Refund requested successfully",
		"data":    sc,
	})
}

// State handles GET /checkout/state
func (h *CheckoutHandler) State(c *gin.Context) {
	who, ok := customerFromContext(c)
	if !ok {
		return
	}

	state, err := h.checkout.GetState(c.Request.Context(), who)
	if err != nil {
		respondError(c, "Failed to load checkout state", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Checkout state retrieved successfully",
		"data":    state,
	})
}

// Reset handles POST /checkout/reset
func (h *CheckoutHandler) Reset(c *gin.Context) {
	who, ok := customerFromContext(c)
	if !ok {
		return
	}

	state, err := h.checkout.ResetState(c.Request.Context(), who)
	if err != nil {
		respondError(c, "Failed to reset checkout state", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Checkout state reset successfully",
		"data":    state,
	})
}

// Attempts handles GET /checkout/attempts?limit=
func (h *CheckoutHandler) Attempts(c *gin.Context) {
	who, ok := customerFromContext(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	attempts, err := h.checkout.ListAttempts(c.Request.Context(), who, limit)
	if err != nil {
		respondError(c, "Failed to retrieve payment attempts", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment attempts retrieved successfully",
		"data":    attempts,
	})
}

// readPayload reads the widget's JSON body as-is
func readPayload(c *gin.Context) (json.RawMessage, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || !json.Valid(body) {
		details := "body is not valid JSON"
		if err != nil {
			details = err.Error()
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": details,
		})
		return nil, false
	}
	return json.RawMessage(body), true
}

// storefrontOrigin is where the shopper is sent back after a redirect.
// Only allowed origins are trusted, anything else falls back to the public URL.
func (h *CheckoutHandler) storefrontOrigin(c *gin.Context) string {
	candidates := []string{c.GetHeader("Origin")}
	if ref, err := url.Parse(c.GetHeader("Referer")); err == nil && ref.Scheme != "" && ref.Host != "" {
		candidates = append(candidates, ref.Scheme+"://"+ref.Host)
	}
	for _, origin := range candidates {
		if origin != "" && middleware.IsOriginAllowed(origin, h.config.Security.CORSAllowedOrigins) {
			return origin
		}
	}
	return strings.TrimRight(h.config.App.PublicURL, "/")
}

// setRedirectCookie writes the cache key. The provider posts back cross-site, which
// browsers only allow for SameSite=None cookies, and those must be Secure.
// Over plain HTTP the cookie falls back to Lax and only GET redirects carry it.
func (h *CheckoutHandler) setRedirectCookie(c *gin.Context, value string, maxAge int) {
	secure := h.config.IsProduction() || c.Request.TLS != nil ||
		strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
	if secure {
		c.SetSameSite(http.SameSiteNoneMode)
	} else {
		c.SetSameSite(http.SameSiteLaxMode)
	}
	c.SetCookie(RedirectCookie, value, maxAge, redirectCookiePath, "", secure, true)
}
