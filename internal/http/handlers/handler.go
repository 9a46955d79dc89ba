package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"wizard_client/internal/domain"
	"wizard_client/internal/logger"
	"wizard_client/internal/reconciler"
)

type Handler struct {
	Game *reconciler.Reconciler
	// Base outlives any single request; subscriptions opened by join use it
	Base context.Context
	log  *slog.Logger
}

func NewHandler(base context.Context, game *reconciler.Reconciler, log *slog.Logger) *Handler {
	if log == nil {
		log = logger.Component("http")
	}
	return &Handler{Game: game, Base: base, log: log}
}

// statusFor maps the session error taxonomy onto HTTP
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPreconditionNotMet), errors.Is(err, domain.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCommandRejected), errors.Is(err, domain.ErrConnectionFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	h.log.Warn("Handler: command failed", "op", op, "error", err)
	c.JSON(statusFor(err), gin.H{
		"error":       err.Error(),
		"activeError": h.Game.View().ActiveError,
	})
}
