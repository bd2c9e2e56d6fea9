package middleware

import (
	"net/http"
	"strings"

	"github.com/bsocio/campaign-service/internal/repository"
	echo "github.com/labstack/echo/v4"
)

// AdminIDFromCtx extracts the authenticated admin_id set by APIKeyMiddleware.
func AdminIDFromCtx(c echo.Context) (int64, bool) {
	v := c.Get("admin_id")
	id, ok := v.(int64)
	return id, ok
}

// APIKeyMiddleware authenticates requests using the X-API-Key header.
// On success it stores admin_id in context; suspended accounts are rejected.
func APIKeyMiddleware(admins repository.AdminsRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			adm, err := admins.GetByAPIKey(c.Request().Context(), key)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if adm == nil || adm.Status != "active" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			c.Set("admin_id", adm.ID)
			if adm.RateLimitRPS != nil {
				c.Set("admin_rps", *adm.RateLimitRPS)
			}
			return next(c)
		}
	}
}
