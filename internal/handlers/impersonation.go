package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cubbscratchstudios/splat/internal/impersonate"
	"github.com/cubbscratchstudios/splat/internal/message"
)

// Impersonator posts replicas of stored messages.
type Impersonator interface {
	RequestImpersonation(ctx context.Context, conversationID, messageID string, target impersonate.Target) (impersonate.Result, error)
}

// ImpersonationHandler exposes impersonation requests.
type ImpersonationHandler struct {
	service Impersonator
	logger  *slog.Logger
}

func NewImpersonationHandler(log *slog.Logger, service Impersonator) *ImpersonationHandler {
	return &ImpersonationHandler{service: service, logger: log.With(slog.String("handler", "impersonation"))}
}

func (h *ImpersonationHandler) Register(e *echo.Echo) {
	e.POST("/conversations/:conversation_id/messages/:message_id/impersonations", h.Create)
}

// Create godoc
// @Summary Re-post a captured message under its author's identity
// @Tags impersonations
// @Param conversation_id path string true "Conversation ID"
// @Param message_id path string true "Message ID"
// @Param payload body impersonate.Target false "Target channel and identity overrides"
// @Success 200 {object} impersonate.Result
// @Success 207 {object} impersonate.Result
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} impersonate.Result
// @Router /conversations/{conversation_id}/messages/{message_id}/impersonations [post]
func (h *ImpersonationHandler) Create(c echo.Context) error {
	var target impersonate.Target
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&target); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	result, err := h.service.RequestImpersonation(c.Request().Context(), c.Param("conversation_id"), c.Param("message_id"), target)
	if err != nil {
		if errors.Is(err, message.ErrNotFound) || errors.Is(err, message.ErrInvalidKey) || errors.Is(err, message.ErrStoreUnavailable) {
			return storeError(err)
		}
		if errors.Is(err, impersonate.ErrNoSink) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		h.logger.Warn("impersonation failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(outcomeStatus(result.Status), result)
}

func outcomeStatus(o impersonate.Outcome) int {
	switch o {
	case impersonate.OutcomeComplete:
		return http.StatusOK
	case impersonate.OutcomePartial:
		return http.StatusMultiStatus
	default:
		return http.StatusBadGateway
	}
}
