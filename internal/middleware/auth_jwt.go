package middleware

import (
	"net/http"
	"strings"

	"storefront/internal/domain/model"

	"github.com/labstack/echo/v4"
)

const (
	CtxAdminIDKey = "admin_id" // string
	CtxUserIDKey  = "user_id"  // string
)

// 顧客セッションのCookie名
const SessionCookieName = "session"

// トークン検証の約束（infra/tokenが実装）
type TokenValidator interface {
	Validate(raw string, expected model.PrincipalKind) (model.Principal, error)
}

// 管理者用：Authorization: Bearer のトークンを検証する。
// 顧客のトークンは署名鍵が違うので通らない。
func AdminBearer(v TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//Authorizationヘッダを取得
			authz := c.Request().Header.Get("Authorization")

			//Bearer形式か確認してtokenを抜く
			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return unauthorized(c)
			}
			rawToken := strings.TrimSpace(parts[1])

			p, err := v.Validate(rawToken, model.PrincipalAdmin)
			if err != nil {
				return unauthorized(c)
			}

			c.Set(CtxAdminIDKey, p.SubjectID)
			return next(c)
		}
	}
}

// 顧客用：HttpOnly Cookieのトークンを検証する
func CustomerSession(v TokenValidator, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				return unauthorized(c)
			}

			p, err := v.Validate(cookie.Value, model.PrincipalCustomer)
			if err != nil {
				return unauthorized(c)
			}

			c.Set(CtxUserIDKey, p.SubjectID)
			return next(c)
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}

// 理由は返さない
func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
}
