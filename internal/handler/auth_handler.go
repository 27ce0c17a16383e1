package handler

import (
	"net/http"
	"time"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// セッションCookieの設定
type CookieConfig struct {
	Name   string
	Secure bool
}

type AuthHandler struct {
	auth    *usecase.AuthUsecase
	account *usecase.AccountUsecase
	cookie  CookieConfig
}

// DIコンストラクタ
func NewAuthHandler(auth *usecase.AuthUsecase, account *usecase.AccountUsecase, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{auth: auth, account: account, cookie: cookie}
}

// /login/generate のリクエストボディ。
type generateRequest struct {
	Email string `json:"email"`
}

// /login/verify のリクエストボディ。
type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// /admin/login のリクエストボディ。
type adminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	User usecase.UserDTO `json:"user"`
}

func (h *AuthHandler) RegisterRoutes(e *echo.Echo, guards Guards) {
	e.POST("/login/generate", h.generate)
	e.POST("/login/verify", h.verify)
	e.POST("/logout", h.logout)
	e.POST("/admin/login", h.adminLogin)

	me := e.Group("/me", guards.Customer...)
	me.GET("", h.me)
	me.DELETE("", h.deleteMe)
}

// アカウントの有無に関係なく200を返す
func (h *AuthHandler) generate(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	if err := h.auth.RequestCode(c.Request().Context(), req.Email); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{OK: true})
}

func (h *AuthHandler) verify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.auth.VerifyCode(c.Request().Context(), req.Email, req.Code)
	if err != nil {
		return writeError(c, err)
	}

	h.setSessionCookie(c, out.Token, out.ExpiresAt)
	return c.JSON(http.StatusOK, userResponse{User: out.User})
}

// トークンはサーバー側に状態が無いので、Cookieを消すだけ
func (h *AuthHandler) logout(c echo.Context) error {
	h.clearSessionCookie(c)
	return c.JSON(http.StatusOK, SuccessResponse{OK: true})
}

func (h *AuthHandler) adminLogin(c echo.Context) error {
	var req adminLoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.auth.AdminLogin(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuthHandler) me(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.account.Me(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, userResponse{User: out})
}

// 退会：顧客とカートを消し、注文は残す
func (h *AuthHandler) deleteMe(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.account.DeleteMe(c.Request().Context(), userID); err != nil {
		return writeError(c, err)
	}

	h.clearSessionCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// セッショントークンをCookieにセット。
func (h *AuthHandler) setSessionCookie(c echo.Context, token string, exp time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  exp,
	})
}

func (h *AuthHandler) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}
