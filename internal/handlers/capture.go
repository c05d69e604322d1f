package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cubbscratchstudios/splat/internal/capture"
)

// Capturer queues raw events.
type Capturer interface {
	Capture(ctx context.Context, raw capture.RawEvent) error
}

// CaptureHandler accepts gateway-shaped events over HTTP.
type CaptureHandler struct {
	capturer Capturer
	logger   *slog.Logger
}

// CaptureAccepted is the body of a queued capture.
type CaptureAccepted struct {
	Status         string `json:"status"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

func NewCaptureHandler(log *slog.Logger, capturer Capturer) *CaptureHandler {
	return &CaptureHandler{capturer: capturer, logger: log.With(slog.String("handler", "capture"))}
}

func (h *CaptureHandler) Register(e *echo.Echo) {
	e.POST("/captures", h.Create)
}

// Create godoc
// @Summary Queue a message event for capture
// @Tags captures
// @Param payload body capture.RawEvent true "Raw event"
// @Success 202 {object} CaptureAccepted
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /captures [post]
func (h *CaptureHandler) Create(c echo.Context) error {
	var raw capture.RawEvent
	if err := c.Bind(&raw); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err := h.capturer.Capture(c.Request().Context(), raw)
	switch {
	case err == nil:
	case capture.IsNormalizationError(err):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, capture.ErrQueueFull), errors.Is(err, capture.ErrStopped):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("capture failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, CaptureAccepted{
		Status:         "queued",
		ConversationID: raw.ConversationID,
		MessageID:      raw.MessageID,
	})
}
