package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

const AdminPasswordHeader = "X-Admin-Password"

// AdminAuth guards operator endpoints (force sync, purge) with a password
// checked against the configured bcrypt hash. An empty hash disables the
// check for development setups.
func AdminAuth(passwordHash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if passwordHash == "" {
				return next(c)
			}
			password := c.Request().Header.Get(AdminPasswordHeader)
			if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid admin password")
			}
			return next(c)
		}
	}
}
