package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chance-winner-hub/internal/models"
	"chance-winner-hub/internal/services"
)

// WalletHandler moves money in and out: deposits, withdrawals, rewards and
// referrals.
type WalletHandler struct {
	payments    *services.PaymentService
	withdrawals *services.WithdrawalService
	rewards     *services.RewardService
}

func NewWalletHandler(payments *services.PaymentService, withdrawals *services.WithdrawalService, rewards *services.RewardService) *WalletHandler {
	return &WalletHandler{
		payments:    payments,
		withdrawals: withdrawals,
		rewards:     rewards,
	}
}

func (h *WalletHandler) Deposit(c *gin.Context) {
	var req models.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tx, err := h.payments.InitiateDeposit(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusAccepted
	if tx.Status == models.TransactionStatusCompleted {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"success": true, "transaction": tx})
}

func (h *WalletHandler) Withdraw(c *gin.Context) {
	var req models.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tx, err := h.withdrawals.Request(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "transaction": tx})
}

func (h *WalletHandler) ListRewards(c *gin.Context) {
	rewards, err := h.rewards.List(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"rewards": rewards,
		"count":   len(rewards),
	})
}

func (h *WalletHandler) ClaimReward(c *gin.Context) {
	tx, err := h.rewards.Claim(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "transaction": tx})
}

func (h *WalletHandler) RegisterReferral(c *gin.Context) {
	var req models.ReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ref, err := h.rewards.RegisterReferral(c.Request.Context(), currentUser(c), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "referral": ref})
}
