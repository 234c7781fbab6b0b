package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chance-winner-hub/internal/models"
	"chance-winner-hub/internal/services"
)

type AdminHandler struct {
	withdrawals *services.WithdrawalService
	payments    *services.PaymentService
}

func NewAdminHandler(withdrawals *services.WithdrawalService, payments *services.PaymentService) *AdminHandler {
	return &AdminHandler{
		withdrawals: withdrawals,
		payments:    payments,
	}
}

func (h *AdminHandler) PendingWithdrawals(c *gin.Context) {
	txs, err := h.withdrawals.Pending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"withdrawals": txs,
		"count":       len(txs),
	})
}

func (h *AdminHandler) ResolveWithdrawal(c *gin.Context) {
	var req models.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tx, err := h.withdrawals.Resolve(c.Request.Context(), currentUser(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "transaction": tx})
}

// ResolvePayment is the manual fallback for gateway confirmations that
// never arrived on the queue.
func (h *AdminHandler) ResolvePayment(c *gin.Context) {
	var req models.PaymentResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	details := models.Details{"resolved_by": currentUser(c)}
	for k, v := range req.Details {
		details[k] = v
	}

	tx, err := h.payments.Confirm(c.Request.Context(), c.Param("id"), req.Status, details)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "transaction": tx})
}
