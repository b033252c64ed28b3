package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Roles known to the system. Clinician and nurse act on clinical records;
// viewer is read-only; admin is the privileged role.
const (
	RoleAdmin     = "admin"
	RoleClinician = "clinician"
	RoleNurse     = "nurse"
	RoleViewer    = "viewer"
)

// IsPrivileged is the single capability predicate for administrative
// override. Every component that offers a role bypass (status transitions,
// facility scoping) consults this rather than re-deriving it.
func IsPrivileged(role string) bool {
	return role == RoleAdmin
}

// RequireRole returns middleware that checks if the caller has one of the
// given roles. A privileged role always passes.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := FromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated principal")
			}
			if IsPrivileged(p.Role) {
				return next(c)
			}
			for _, required := range roles {
				if p.Role == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
