package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"mail-market/internal/domain"
	"mail-market/internal/service"
)

type depositRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	Method    string          `json:"method"`
}

type checkoutRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type webhookRequest struct {
	TransactionID string `json:"transaction_id" form:"transaction_id"`
}

type approveRequest struct {
	Reference string `json:"reference"`
}

func (h *Handler) listPaymentMethods(c *gin.Context) {
	methods, err := h.payments.PaymentMethods(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if methods == nil {
		methods = []domain.PaymentMethod{}
	}
	c.JSON(http.StatusOK, methods)
}

func (h *Handler) requestDeposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount is required"})
		return
	}

	deposit, err := h.deposits.Request(c.Request.Context(), service.DepositRequest{
		UserID:    currentUserID(c),
		Amount:    req.Amount,
		Reference: req.Reference,
		Method:    req.Method,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, depositToResponse(*deposit))
}

func (h *Handler) myDeposits(c *gin.Context) {
	deposits, err := h.deposits.ListForUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, depositsToResponse(deposits))
}

func (h *Handler) startCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount is required"})
		return
	}

	session, err := h.payments.StartCheckout(c.Request.Context(), currentUserID(c), req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// checkoutWebhook accepts the gateway callback as JSON or form data.
func (h *Handler) checkoutWebhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBind(&req); err != nil || strings.TrimSpace(req.TransactionID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transaction_id is required"})
		return
	}

	deposit, err := h.payments.CompleteCheckout(c.Request.Context(), req.TransactionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deposit_id": deposit.ID, "status": deposit.Status})
}

func (h *Handler) replacePaymentMethods(c *gin.Context) {
	var methods []domain.PaymentMethod
	if err := c.ShouldBindJSON(&methods); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a list of payment methods"})
		return
	}

	saved, err := h.payments.ReplacePaymentMethods(c.Request.Context(), methods)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *Handler) pendingDeposits(c *gin.Context) {
	deposits, err := h.deposits.ListPending(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, depositsToResponse(deposits))
}

func (h *Handler) approveDeposit(c *gin.Context) {
	id, ok := depositIDParam(c)
	if !ok {
		return
	}
	var req approveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}

	deposit, balance, err := h.deposits.Approve(c.Request.Context(), id, req.Reference)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deposit":     depositToResponse(*deposit),
		"new_balance": balance.StringFixed(2),
	})
}

func (h *Handler) cancelDeposit(c *gin.Context) {
	id, ok := depositIDParam(c)
	if !ok {
		return
	}
	deposit, err := h.deposits.Cancel(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deposit": depositToResponse(*deposit)})
}

func depositIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deposit id"})
		return 0, false
	}
	return id, true
}
