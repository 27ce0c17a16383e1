package server

import (
	"context"
	"net/http"
	"time"

	"storefront/internal/handler"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Auth          *handler.AuthHandler
	Products      *handler.ProductHandler
	AdminProducts *handler.AdminProductHandler
	Cart          *handler.CartHandler
	Orders        *handler.OrderHandler
	AdminOrders   *handler.AdminOrderHandler
}

// HealthCheck はDBやRedisの疎通確認
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func RegisterRoutes(e *echo.Echo, h Handlers, guards handler.Guards, checks ...HealthCheck) {
	e.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})
	e.GET("/health", health(checks))

	h.Auth.RegisterRoutes(e, guards)
	h.Products.RegisterRoutes(e)
	h.AdminProducts.RegisterRoutes(e, guards)
	h.Cart.RegisterRoutes(e, guards)
	h.Orders.RegisterRoutes(e, guards)
	h.AdminOrders.RegisterRoutes(e, guards)
}

func health(checks []HealthCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := map[string]string{}
		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result[hc.Name] = "down"
				continue
			}
			result[hc.Name] = "up"
		}

		body := map[string]interface{}{"status": "ok", "checks": result}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		return c.JSON(status, body)
	}
}
