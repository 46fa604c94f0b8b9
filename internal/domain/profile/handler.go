package profile

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/visitdesk/visitdesk/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/profile", h.GetProfile)
	api.PUT("/profile", h.CompleteProfile)
	api.PUT("/profile/device-token", h.SetDeviceToken)
	api.GET("/profile/qr", h.GetQRCard)
}

// EnsureMiddleware loads the caller's profile, creating it on first sight, and
// adds the stored profile role to the session so role checks see roles
// assigned at signup even when the token does not carry them. Failures are
// logged and the request proceeds with the token's roles.
func EnsureMiddleware(svc *Service, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			s, ok := auth.SessionFromContext(req.Context())
			if !ok || s.UserID == "" {
				return next(c)
			}
			p, err := svc.Ensure(req.Context(), s)
			if err != nil {
				logger.Warn().Err(err).Str("uid", s.UserID).Msg("ensure profile failed")
				return next(c)
			}
			if p.Role != "" && !s.HasRole(p.Role) {
				s.Roles = append(append([]string(nil), s.Roles...), p.Role)
				c.SetRequest(req.WithContext(auth.WithSession(req.Context(), s)))
			}
			return next(c)
		}
	}
}

func (h *Handler) GetProfile(c echo.Context) error {
	s, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Ensure(c.Request().Context(), s)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CompleteProfile(c echo.Context) error {
	s, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	var req CompleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Complete(c.Request().Context(), s.UserID, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SetDeviceToken(c echo.Context) error {
	s, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetDeviceToken(c.Request().Context(), s.UserID, req.Token); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetQRCard(c echo.Context) error {
	s, err := auth.FromEcho(c)
	if err != nil {
		return err
	}
	card, payload, err := h.svc.QRCard(c.Request().Context(), s)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"card": card, "payload": payload})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrIncomplete):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
}
