package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cubbscratchstudios/splat/internal/message"
)

// ErrorResponse is the standard API error body (message only).
type ErrorResponse struct {
	Message string `json:"message"`
}

// storeError maps store failures to HTTP errors.
func storeError(err error) error {
	switch {
	case errors.Is(err, message.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "message not found")
	case errors.Is(err, message.ErrInvalidKey):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, message.ErrStoreUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "message store unavailable")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
