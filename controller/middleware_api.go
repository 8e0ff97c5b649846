package controller

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// APIKeyAuthMiddleware authenticates API calls with a bearer token issued by
// the token management endpoints. Development mode skips the check so that
// local tooling can talk to the API without provisioning a token first.
func (ctrl *controller) APIKeyAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if ctrl.model.Config.Mode == "development" {
				return next(c)
			}
			auth := c.Request().Header.Get("Authorization")
			if auth == "" {
				return c.JSON(http.StatusUnauthorized, apiError("missing_token", "Provide Authorization header"))
			}
			parts := strings.SplitN(auth, " ", 2)
			if len(parts) != 2 || (!strings.EqualFold(parts[0], "Bearer") && !strings.EqualFold(parts[0], "Api-Key")) {
				return c.JSON(http.StatusUnauthorized, apiError("bad_token", "Use Bearer or Api-Key"))
			}
			if _, err := ctrl.model.ValidateAPIToken(parts[1]); err != nil {
				return c.JSON(http.StatusUnauthorized, apiError("unauthorized", "Unauthorized"))
			}
			return next(c)
		}
	}
}
