package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chance-winner-hub/internal/models"
	"chance-winner-hub/internal/services"
)

type LotteryHandler struct {
	lottery *services.LotteryService
}

func NewLotteryHandler(lottery *services.LotteryService) *LotteryHandler {
	return &LotteryHandler{lottery: lottery}
}

func (h *LotteryHandler) ListDraws(c *gin.Context) {
	status := models.DrawStatus(c.DefaultQuery("status", string(models.DrawStatusOpen)))

	draws, err := h.lottery.ListDraws(c.Request.Context(), status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"draws":   draws,
		"count":   len(draws),
	})
}

func (h *LotteryHandler) BuyTicket(c *gin.Context) {
	ticket, tx, err := h.lottery.BuyTicket(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"ticket":      ticket,
		"transaction": tx,
	})
}

func (h *LotteryHandler) CreateDraw(c *gin.Context) {
	var req models.CreateDrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	draw, err := h.lottery.CreateDraw(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "draw": draw})
}

func (h *LotteryHandler) RunDraw(c *gin.Context) {
	draw, credit, err := h.lottery.RunDraw(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"draw":    draw,
		"credit":  credit,
	})
}
