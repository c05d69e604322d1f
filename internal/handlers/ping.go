package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cubbscratchstudios/splat/internal/version"
)

// PingHandler serves the unauthenticated liveness routes and build info.
// /ping and /health stay reachable without the API token for health checks.
type PingHandler struct {
	logger *slog.Logger
}

// NewPingHandler creates a ping handler.
func NewPingHandler(log *slog.Logger) *PingHandler {
	return &PingHandler{logger: log.With(slog.String("handler", "ping"))}
}

// Register mounts GET /ping, HEAD /health and GET /version on the Echo instance.
func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
	e.GET("/version", h.Version)
}

// Ping godoc
// @Summary Liveness check
// @Tags system
// @Success 200 {object} map[string]string
// @Router /ping [get]
func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// PingHead returns 200 No Content for health checks.
func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// Version godoc
// @Summary Build information of the running splat binary
// @Tags system
// @Success 200 {object} version.Info
// @Router /version [get]
func (h *PingHandler) Version(c echo.Context) error {
	return c.JSON(http.StatusOK, version.Get())
}
