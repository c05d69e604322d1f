package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cubbscratchstudios/splat/internal/wordfilter"
)

// FilterHandler runs ad hoc word filter checks.
type FilterHandler struct {
	filter *wordfilter.Filter
}

// FilterCheckRequest is the body of POST /filter/check.
type FilterCheckRequest struct {
	Text string `json:"text"`
}

func NewFilterHandler(filter *wordfilter.Filter) *FilterHandler {
	return &FilterHandler{filter: filter}
}

func (h *FilterHandler) Register(e *echo.Echo) {
	e.POST("/filter/check", h.Check)
}

// Check godoc
// @Summary Check text against the banned-term set
// @Tags filter
// @Param payload body FilterCheckRequest true "Text"
// @Success 200 {object} wordfilter.Verdict
// @Router /filter/check [post]
func (h *FilterHandler) Check(c echo.Context) error {
	var req FilterCheckRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if h.filter == nil {
		return c.JSON(http.StatusOK, wordfilter.Verdict{})
	}
	return c.JSON(http.StatusOK, h.filter.Check(req.Text))
}
