package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/cubbscratchstudios/splat/internal/message"
)

// MessageReader is the read side of the message store.
type MessageReader interface {
	Get(ctx context.Context, conversationID, messageID string) (message.CapturedMessage, error)
	List(ctx context.Context, conversationID string, limit int) ([]message.CapturedMessage, error)
}

// MessageHandler serves captured messages.
type MessageHandler struct {
	store  MessageReader
	logger *slog.Logger
}

// ListMessagesResponse wraps a conversation listing, newest first.
type ListMessagesResponse struct {
	Items []message.CapturedMessage `json:"items"`
}

func NewMessageHandler(log *slog.Logger, store MessageReader) *MessageHandler {
	return &MessageHandler{store: store, logger: log.With(slog.String("handler", "message"))}
}

func (h *MessageHandler) Register(e *echo.Echo) {
	g := e.Group("/conversations/:conversation_id/messages")
	g.GET("", h.List)
	g.GET("/:message_id", h.Get)
}

// List godoc
// @Summary List captured messages of a conversation
// @Tags messages
// @Param conversation_id path string true "Conversation ID"
// @Param limit query int false "Max items (default 50, max 500)"
// @Success 200 {object} ListMessagesResponse
// @Failure 400 {object} ErrorResponse
// @Router /conversations/{conversation_id}/messages [get]
func (h *MessageHandler) List(c echo.Context) error {
	conversationID := strings.TrimSpace(c.Param("conversation_id"))
	if conversationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}
	limit := 0
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}
	items, err := h.store.List(c.Request().Context(), conversationID, limit)
	if err != nil {
		return storeError(err)
	}
	if items == nil {
		items = []message.CapturedMessage{}
	}
	return c.JSON(http.StatusOK, ListMessagesResponse{Items: items})
}

// Get godoc
// @Summary Get one captured message
// @Tags messages
// @Param conversation_id path string true "Conversation ID"
// @Param message_id path string true "Message ID"
// @Success 200 {object} message.CapturedMessage
// @Failure 404 {object} ErrorResponse
// @Router /conversations/{conversation_id}/messages/{message_id} [get]
func (h *MessageHandler) Get(c echo.Context) error {
	msg, err := h.store.Get(c.Request().Context(), c.Param("conversation_id"), c.Param("message_id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, msg)
}
