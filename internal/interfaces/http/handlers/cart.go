// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-checkout/internal/domain/cart"
)

// CartHandler handles cart endpoints
type CartHandler struct {
	checkout Orchestrator
	receipts ReceiptRenderer
}

// NewCartHandler creates a new cart handler
func NewCartHandler(orchestrator Orchestrator, receipts ReceiptRenderer) *CartHandler {
	return &CartHandler{
		checkout: orchestrator,
		receipts: receipts,
	}
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	who, ok := customerFromContext(c)
	if !ok {
		return
	}

	sc, err := h.checkout.GetActiveCart(c.Request.Context(), who)
	if err != nil {
		respondError(c, "Failed to retrieve cart", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart retrieved successfully",
		"data":    sc,
	})
}

// GetHistory handles GET /cart/history
func (h *CartHandler) GetHistory(c *gin.Context) {
	who, ok := customerFromContext(c)
	if !ok {
		return
	}

	carts, err := h.checkout.GetCartHistory(c.Request.Context(), who)
	if err != nil {
		respondError(c, "Failed to retrieve order history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order history retrieved successfully",
		"data":    carts,
	})
}

// AddProduct handles PUT /cart/products/:productId
func (h *CartHandler) AddProduct(c *gin.Context) {
	who, ok := customerFromContext(c)
	if !ok {
		return
	}
	productID, ok := parseIDParam(c, "productId")
	if !ok {
		return
	}

	sc, err := h.checkout.AddLineItem(c.Request.Context(), who, productID)
	if err != nil {
		respondError(c, "Failed to add product to cart", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Product added to cart successfully",
		"data":    sc,
	})
}

// RemoveOrder handles DELETE /cart/orders/:orderId
func (h *CartHandler) RemoveOrder(c *gin.Context) {
	who, ok := customerFromContext(c)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(c, "orderId")
	if !ok {
		return
	}

	sc, err := h.checkout.RemoveLineItem(c.Request.Context(), who, orderID)
	if err != nil {
		respondError(c, "Failed to remove item from cart", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item removed from cart successfully",
		"data":    sc,
	})
}

// Close handles PUT /cart/close?paymentType=&paymentRef=&status=
func (h *CartHandler) Close(c *gin.Context) {
	who, ok := customerFromContext(c)
	if !ok {
		return
	}

	status, err := cart.ParseOrderStatus(c.Query("status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid status",
			"details": err.Error(),
		})
		return
	}

	if err := h.checkout.CloseCart(c.Request.Context(), who, c.Query("paymentType"), c.Query("paymentRef"), status); err != nil {
		respondError(c, "Failed to close cart", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart closed successfully",
	})
}

// Receipt handles GET /cart/:id/receipt
func (h *CartHandler) Receipt(c *gin.Context) {
	who, ok := customerFromContext(c)
	if !ok {
		return
	}
	cartID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	sc, err := h.checkout.FindCart(c.Request.Context(), who, cartID)
	if err != nil {
		respondError(c, "Failed to retrieve cart", err)
		return
	}
	if !sc.HasReceipt() {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Receipt not available",
			"details": fmt.Sprintf("cart %d is %s", sc.ID, sc.Status),
		})
		return
	}

	buf, err := h.receipts.GenerateReceipt(sc)
	if err != nil {
		respondError(c, "Failed to generate receipt", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=receipt-%d.pdf", sc.ID))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
