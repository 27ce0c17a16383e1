package middleware

import (
	"errors"
	"net/http"

	"storefront/internal/repository"

	"github.com/labstack/echo/v4"
)

// 退会済み顧客のトークンを拒否する（トークン自体は期限まで有効なため）
func CustomerExistsGuard(users repository.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//CustomerSessionが入れたuser_idを取得する
			userID, ok := c.Get(CtxUserIDKey).(string)
			if !ok || userID == "" {
				return unauthorized(c)
			}

			_, err := users.FindByID(c.Request().Context(), userID)
			if errors.Is(err, repository.ErrNotFound) {
				return unauthorized(c)
			}
			if err != nil {
				return c.JSON(http.StatusServiceUnavailable, errorJSON("service unavailable"))
			}

			return next(c)
		}
	}
}
