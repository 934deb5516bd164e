package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mail-market/internal/service"
)

type buyMailRequest struct {
	Type     string `json:"type" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
}

func (h *Handler) listPrices(c *gin.Context) {
	prices := h.purchases.Prices()
	resp := make(map[string]string, len(prices))
	for _, p := range prices {
		resp[p.ItemType] = p.UnitPrice.StringFixed(2)
	}
	c.JSON(http.StatusOK, gin.H{"prices": resp})
}

func (h *Handler) getStock(c *gin.Context) {
	itemType := c.Query("type")
	available, err := h.purchases.Stock(c.Request.Context(), itemType)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": itemType, "available": available})
}

func (h *Handler) buyMail(c *gin.Context) {
	var req buyMailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type and a positive quantity are required"})
		return
	}

	res, err := h.purchases.Purchase(c.Request.Context(), service.PurchaseRequest{
		UserID:   currentUserID(c),
		ItemType: req.Type,
		Quantity: req.Quantity,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"new_balance": res.NewBalance.StringFixed(2),
		"items":       res.Tokens,
		"purchase":    purchaseToResponse(*res.Purchase),
	})
}

func (h *Handler) purchaseHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	purchases, err := h.purchases.PurchaseHistory(c.Request.Context(), currentUserID(c), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]PurchaseResponse, len(purchases))
	for i := range purchases {
		resp[i] = purchaseToResponse(purchases[i])
	}
	c.JSON(http.StatusOK, resp)
}
