package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin        = "admin"
	RoleReceptionist = "receptionist"
	RoleHost         = "host"
)

// StaffRoles may manage enquiries and export visits.
var StaffRoles = []string{RoleAdmin, RoleReceptionist}

// RequireRole returns middleware that checks if the session has at least one
// of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, err := FromEcho(c)
			if err != nil {
				return err
			}
			if !s.HasRole(roles...) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
			}
			return next(c)
		}
	}
}
