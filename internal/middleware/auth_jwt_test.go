package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/memory"
	"storefront/internal/infra/token"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenService(t *testing.T) *token.Service {
	t.Helper()
	s, err := token.NewService(token.Options{
		AdminSecret:    "admin-secret",
		AdminTTL:       time.Hour,
		CustomerSecret: "customer-secret",
		CustomerTTL:    time.Hour,
	})
	require.NoError(t, err)
	return s
}

func issue(t *testing.T, s *token.Service, kind model.PrincipalKind, sub string) string {
	t.Helper()
	raw, _, err := s.Issue(model.Principal{SubjectID: sub, Kind: kind})
	require.NoError(t, err)
	return raw
}

// 通過したら主体のIDを返すだけのハンドラ
func echoSubject(key string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get(key).(string))
	}
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAdminBearer(t *testing.T) {
	s := newTokenService(t)
	e := echo.New()
	e.GET("/admin", echoSubject(CtxAdminIDKey), AdminBearer(s))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid admin token", "Bearer " + issue(t, s, model.PrincipalAdmin, "admin-1"), http.StatusOK},
		{"lowercase scheme", "bearer " + issue(t, s, model.PrincipalAdmin, "admin-1"), http.StatusOK},
		{"customer token", "Bearer " + issue(t, s, model.PrincipalCustomer, "user-1"), http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := serve(e, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "admin-1", rec.Body.String())
			} else {
				assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
			}
		})
	}
}

func TestCustomerSession(t *testing.T) {
	s := newTokenService(t)
	e := echo.New()
	e.GET("/me", echoSubject(CtxUserIDKey), CustomerSession(s, SessionCookieName))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: issue(t, s, model.PrincipalCustomer, "user-1")})
	rec := serve(e, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())

	//管理者トークンをCookieに入れても通らない
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: issue(t, s, model.PrincipalAdmin, "admin-1")})
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)

	//Bearerヘッダは顧客には使えない
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, s, model.PrincipalCustomer, "user-1"))
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)
}

func TestCustomerExistsGuard(t *testing.T) {
	s := newTokenService(t)
	store := memory.NewStore()
	now := time.Now()
	require.NoError(t, store.Users().Create(context.Background(), &model.User{ID: "user-1", Email: "a@example.com", CreatedAt: now, UpdatedAt: now}))

	e := echo.New()
	e.GET("/me", echoSubject(CtxUserIDKey), CustomerSession(s, SessionCookieName), CustomerExistsGuard(store.Users()))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: issue(t, s, model.PrincipalCustomer, "user-1")})
	assert.Equal(t, http.StatusOK, serve(e, req).Code)

	//退会済み（トークンはまだ有効）
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: issue(t, s, model.PrincipalCustomer, "user-2")})
	rec := serve(e, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}
