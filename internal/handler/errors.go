package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// 在庫不足のときだけ対象の商品を返す
type InsufficientStockResponse struct {
	Error     string `json:"error"`
	ProductID int64  `json:"product_id"`
}

type SuccessResponse struct {
	OK bool `json:"ok"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if se, ok := usecase.AsInsufficientStock(err); ok {
		return c.JSON(http.StatusConflict, InsufficientStockResponse{Error: "insufficient stock", ProductID: se.ProductID})
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message})
	}

	//500
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// Guards はルート登録時に使う認証ミドルウェアの組
type Guards struct {
	Admin    []echo.MiddlewareFunc
	Customer []echo.MiddlewareFunc
}

func parseID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// page/limitを読む（無ければ既定値）
func pageParams(c echo.Context, defLimit int) (int, int, bool) {
	page := 1
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, false
		}
		page = p
	}

	limit := defLimit
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, false
		}
		limit = l
	}
	return page, limit, true
}

func getUserIDFromContext(c echo.Context) (string, bool) {
	id, ok := c.Get(middleware.CtxUserIDKey).(string)
	return id, ok && id != ""
}

func getAdminIDFromContext(c echo.Context) (string, bool) {
	id, ok := c.Get(middleware.CtxAdminIDKey).(string)
	return id, ok && id != ""
}

// withCustomer はセッションの顧客IDを取り出してから fn を呼ぶ
func withCustomer(fn func(c echo.Context, userID string) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := getUserIDFromContext(c)
		if !ok {
			return unauthorized(c)
		}
		return fn(c, userID)
	}
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
}
