package roster

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/visitdesk/visitdesk/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/roster", h.GetRoster)
	api.POST("/roster/delete", h.DeletePatients)
}

func (h *Handler) GetRoster(c echo.Context) error {
	s, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	entries, err := h.svc.Roster(c.Request().Context(), s)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"patients":  []Entry{},
			"retryable": true,
			"error":     err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"patients": entries})
}

func (h *Handler) DeletePatients(c echo.Context) error {
	s, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	var req struct {
		Names []string `json:"names"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.DeletePatients(c.Request().Context(), s, req.Names)
	if errors.Is(err, ErrNoPatients) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
