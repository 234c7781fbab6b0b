package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chance-winner-hub/internal/models"
	"chance-winner-hub/internal/services"
)

// RoundHistory serves finished rounds, newest first.
type RoundHistory interface {
	GetRound(ctx context.Context, roundID string) (*models.Round, error)
	GetRoundHistory(ctx context.Context, userID string, limit int64) ([]*models.Round, error)
}

type GameHandler struct {
	settlement *services.SettlementService
	crash      *services.CrashService
	history    RoundHistory
}

func NewGameHandler(settlement *services.SettlementService, crash *services.CrashService, history RoundHistory) *GameHandler {
	return &GameHandler{
		settlement: settlement,
		crash:      crash,
		history:    history,
	}
}

func (h *GameHandler) PlayDice(c *gin.Context) {
	var req models.DicePlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.settlement.PlayDice(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (h *GameHandler) PlayScratch(c *gin.Context) {
	var req models.ScratchPlayRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	result, err := h.settlement.PlayScratch(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (h *GameHandler) SpinWheel(c *gin.Context) {
	var req models.WheelSpinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.settlement.SpinWheel(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (h *GameHandler) StartCrash(c *gin.Context) {
	var req models.CrashStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.crash.StartRound(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (h *GameHandler) CashoutCrash(c *gin.Context) {
	var req models.CrashRoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.crash.Cashout(c.Request.Context(), currentUser(c), req.RoundID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (h *GameHandler) AbandonCrash(c *gin.Context) {
	var req models.CrashRoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	round, err := h.crash.Abandon(c.Request.Context(), currentUser(c), req.RoundID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "round": round})
}

func (h *GameHandler) GetActiveRounds(c *gin.Context) {
	rounds := h.crash.ActiveRounds(currentUser(c))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"rounds":  rounds,
		"count":   len(rounds),
	})
}

func (h *GameHandler) GetRoundHistory(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if err != nil || limit <= 0 || limit > services.MaxRoundHistory {
		limit = 50
	}

	rounds := []*models.Round{}
	if h.history != nil {
		rounds, err = h.history.GetRoundHistory(c.Request.Context(), currentUser(c), limit)
		if err != nil {
			respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"rounds":  rounds,
		"count":   len(rounds),
	})
}

func (h *GameHandler) GetRound(c *gin.Context) {
	if h.history == nil {
		respondError(c, services.ErrNotFound)
		return
	}

	round, err := h.history.GetRound(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if round.UserID != currentUser(c) {
		respondError(c, services.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "round": round})
}

func (h *GameHandler) GetVerificationData(c *gin.Context) {
	data, err := h.crash.VerificationData(currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func (h *GameHandler) SetClientSeed(c *gin.Context) {
	var req struct {
		ClientSeed string `json:"client_seed" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.crash.SetClientSeed(currentUser(c), req.ClientSeed); err != nil {
		respondError(c, err)
		return
	}
	h.GetVerificationData(c)
}

func (h *GameHandler) VerifyRound(c *gin.Context) {
	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	crashPoint, hash := h.crash.Verify(req)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"verification": gin.H{
			"crash_point":     crashPoint,
			"calculated_hash": hash,
			"client_seed":     req.ClientSeed,
			"server_seed":     req.ServerSeed,
			"nonce":           req.Nonce,
		},
	})
}

// RotateSeed reveals the current server seed so past rounds can be checked
// and starts a new one.
func (h *GameHandler) RotateSeed(c *gin.Context) {
	revealed, err := h.crash.RotateServerSeed()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"revealed_seed": revealed,
		"server_hash":   h.crash.ServerHash(),
	})
}
