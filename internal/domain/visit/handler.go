package visit

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/visitdesk/visitdesk/internal/platform/auth"
	"github.com/visitdesk/visitdesk/pkg/pagination"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	rec *Recorder
	loc *time.Location
}

func NewHandler(rec *Recorder, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{rec: rec, loc: loc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/visits", h.CheckIn)
	api.POST("/visits/quick", h.QuickCheckIn)
	api.POST("/visits/scan", h.Scan)
	api.GET("/visits", h.List)
	api.POST("/visits/:id/checkout", h.Checkout)

	staff := auth.RequireRole(auth.StaffRoles...)
	api.GET("/visits/export", h.Export, staff)
	api.GET("/reception-qr", h.ReceptionQR, staff)
}

func created(c echo.Context, rec *Record) error {
	if rec.Degraded {
		return c.JSON(http.StatusAccepted, rec)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) CheckIn(c echo.Context) error {
	s, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	var req CheckInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.rec.CheckIn(c.Request().Context(), s, req)
	if err != nil {
		return httpError(err)
	}
	return created(c, rec)
}

type quickRequest struct {
	SelectedPatient string `json:"selectedPatient"`
}

func (h *Handler) QuickCheckIn(c echo.Context) error {
	s, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	var req quickRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return created(c, h.rec.QuickCheckIn(c.Request().Context(), s, req.SelectedPatient))
}

func (h *Handler) Scan(c echo.Context) error {
	s, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	var req struct {
		Payload         string `json:"payload"`
		SelectedPatient string `json:"selectedPatient"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.rec.Scan(c.Request().Context(), s, req.Payload, req.SelectedPatient)
	if err != nil {
		return httpError(err)
	}
	if res.Visit != nil {
		if res.Visit.Degraded {
			return c.JSON(http.StatusAccepted, res)
		}
		return c.JSON(http.StatusCreated, res)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c echo.Context) error {
	s, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, err := h.rec.List(c.Request().Context(), s)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Window(items, pg), len(items), pg.Limit, pg.Offset))
}

func (h *Handler) Checkout(c echo.Context) error {
	s, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	id := c.Param("id")
	rec, err := h.rec.Checkout(c.Request().Context(), s, id)
	if errors.Is(err, ErrUnavailable) {
		return c.JSON(http.StatusAccepted, map[string]interface{}{
			"id":        id,
			"status":    StatusCheckedOut,
			"persisted": false,
		})
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// Export serves ?from=YYYY-MM-DD&to=YYYY-MM-DD (both inclusive, local dates).
// Without a range the last seven days are exported.
func (h *Handler) Export(c echo.Context) error {
	now := time.Now().In(h.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc)
	from, to := today.AddDate(0, 0, -6), today

	var err error
	if v := c.QueryParam("from"); v != "" {
		if from, err = time.ParseInLocation(time.DateOnly, v, h.loc); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "from must be YYYY-MM-DD")
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if to, err = time.ParseInLocation(time.DateOnly, v, h.loc); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "to must be YYYY-MM-DD")
		}
	}
	if to.Before(from) {
		return echo.NewHTTPError(http.StatusBadRequest, "to is before from")
	}

	var buf bytes.Buffer
	if err := h.rec.Export(c.Request().Context(), &buf, from, to.AddDate(0, 0, 1), h.loc); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	name := fmt.Sprintf("visits-%s-%s.xlsx", from.Format(time.DateOnly), to.Format(time.DateOnly))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}

func (h *Handler) ReceptionQR(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"payload": h.rec.Sentinel()})
}

func httpError(err error) error {
	switch {
	case IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
}
