package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chance-winner-hub/internal/models"
	"chance-winner-hub/internal/services"
)

type UserHandler struct {
	ledger   *services.LedgerService
	accounts *services.AccountService
}

func NewUserHandler(ledger *services.LedgerService, accounts *services.AccountService) *UserHandler {
	return &UserHandler{
		ledger:   ledger,
		accounts: accounts,
	}
}

func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	acct, err := h.accounts.Get(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}

	balance, err := h.ledger.CurrentBalance(c.Request.Context(), acct.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account": acct,
		"session": gin.H{
			"session_id": c.GetString("session_id"),
			"role":       c.GetString("role"),
		},
		"balance": balance,
	})
}

func (h *UserHandler) GetBalance(c *gin.Context) {
	balance, err := h.ledger.CurrentBalance(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "balance": balance})
}

// GetTransactions lists the caller's history in the partition the account
// is using, newest first.
func (h *UserHandler) GetTransactions(c *gin.Context) {
	ctx := c.Request.Context()

	acct, err := h.accounts.Get(ctx, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}

	filter := models.Partition(acct.UserID, acct.IsDemo())
	filter.Type = models.TransactionType(c.Query("type"))
	filter.Status = models.TransactionStatus(c.Query("status"))
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		filter.Limit = limit
	}

	txs, err := h.ledger.History(ctx, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"transactions": txs,
		"count":        len(txs),
	})
}

func (h *UserHandler) SwitchAccountType(c *gin.Context) {
	var req models.SwitchAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	acct, err := h.accounts.SwitchAccountType(c.Request.Context(), currentUser(c), req.AccountType)
	if err != nil {
		respondError(c, err)
		return
	}

	balance, err := h.ledger.CurrentBalance(c.Request.Context(), acct.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"account": acct,
		"balance": balance,
	})
}
