// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-checkout/internal/config"
	"github.com/your-org/storefront-checkout/internal/interfaces/http/handlers"
	"github.com/your-org/storefront-checkout/internal/interfaces/http/middleware"
)

// SetupCartRoutes sets up shopping cart routes
func SetupCartRoutes(rg *gin.RouterGroup, orchestrator handlers.Orchestrator, receipts handlers.ReceiptRenderer, cfg *config.Config) {
	cartHandler := handlers.NewCartHandler(orchestrator, receipts)

	cart := rg.Group("/cart")
	cart.Use(middleware.AuthMiddleware(cfg))
	{
		cart.GET("", cartHandler.GetCart)
		cart.GET("/history", cartHandler.GetHistory)
		cart.PUT("/products/:productId", cartHandler.AddProduct)
		cart.DELETE("/orders/:orderId", cartHandler.RemoveOrder)
		cart.PUT("/close", cartHandler.Close)
		cart.GET("/:id/receipt", cartHandler.Receipt)
	}
}

// SetupCheckoutRoutes sets up payment routes
func SetupCheckoutRoutes(rg *gin.RouterGroup, orchestrator handlers.Orchestrator, cfg *config.Config, logger *logrus.Logger) {
	checkoutHandler := handlers.NewCheckoutHandler(orchestrator, cfg, logger)

	checkout := rg.Group("/checkout")

	// The provider sends the browser back without a bearer token.
	checkout.GET("/redirect", checkoutHandler.Redirect)
	checkout.POST("/redirect", checkoutHandler.Redirect)

	protected := checkout.Group("")
	protected.Use(middleware.AuthMiddleware(cfg))
	{
		protected.GET("/config", checkoutHandler.Config)
		protected.POST("/payment-methods", checkoutHandler.PaymentMethods)
		protected.POST("/initiate-payment", checkoutHandler.InitiatePayment)
		protected.POST("/submit-additional-details", checkoutHandler.SubmitAdditionalDetails)
		protected.POST("/refund/:cartId", checkoutHandler.Refund)
		protected.GET("/state", checkoutHandler.State)
		protected.POST("/reset", checkoutHandler.Reset)
		protected.GET("/attempts", checkoutHandler.Attempts)
	}
}

// SetupRoutes sets up all API routes
func SetupRoutes(rg *gin.RouterGroup, orchestrator handlers.Orchestrator, receipts handlers.ReceiptRenderer, cfg *config.Config, logger *logrus.Logger) {
	SetupCartRoutes(rg, orchestrator, receipts, cfg)
	SetupCheckoutRoutes(rg, orchestrator, cfg, logger)
}
