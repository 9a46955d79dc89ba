package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"wizard_client/internal/domain"
)

// State returns the reconciled view
func (h *Handler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.Game.View())
}

type JoinRequest struct {
	GameID     string `json:"gameId" binding:"required"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName" binding:"required"`
}

func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.PlayerID == "" {
		req.PlayerID = uuid.NewString()
	}

	if err := h.Game.Join(h.Base, req.GameID, req.PlayerID, req.PlayerName); err != nil {
		h.fail(c, "join", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"gameId":     req.GameID,
		"playerId":   req.PlayerID,
		"playerName": req.PlayerName,
	})
}

type PredictRequest struct {
	Prediction *int `json:"prediction" binding:"required,min=0"`
}

func (h *Handler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Game.SubmitPrediction(c.Request.Context(), *req.Prediction); err != nil {
		h.fail(c, "predict", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

type PlayRequest struct {
	Card string `json:"card" binding:"required"`
}

func (h *Handler) Play(c *gin.Context) {
	var req PlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	card, err := domain.ParseCardToken(req.Card)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Game.PlayCard(c.Request.Context(), card.Token()); err != nil {
		h.fail(c, "play", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

// command adapts a no-argument reconciler command to a handler
func (h *Handler) command(op string, fn func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(c.Request.Context()); err != nil {
			h.fail(c, op, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
	}
}

func (h *Handler) Start() gin.HandlerFunc {
	return h.command("start", h.Game.StartGame)
}

func (h *Handler) Proceed() gin.HandlerFunc {
	return h.command("proceed", h.Game.ProceedToNextRound)
}

func (h *Handler) ForceEnd() gin.HandlerFunc {
	return h.command("force-end", h.Game.ForceEndGame)
}

func (h *Handler) ReturnToLobby() gin.HandlerFunc {
	return h.command("return-to-lobby", h.Game.ReturnToLobby)
}

func (h *Handler) ToggleCheat(c *gin.Context) {
	playerID := c.Param("playerId")
	on := h.Game.ToggleCheat(playerID)
	c.JSON(http.StatusOK, gin.H{"playerId": playerID, "cheating": on})
}

func (h *Handler) ClearTrickWinner(c *gin.Context) {
	h.Game.ClearLastTrickWinner()
	c.JSON(http.StatusOK, h.Game.View())
}

func (h *Handler) EndEarly(c *gin.Context) {
	h.Game.EndGameEarly()
	c.JSON(http.StatusOK, h.Game.View())
}

func (h *Handler) Reset(c *gin.Context) {
	h.Game.Reset()
	c.JSON(http.StatusOK, h.Game.View())
}
