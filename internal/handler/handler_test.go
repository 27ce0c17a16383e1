package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"storefront/internal/infra/memory"
	infrarepo "storefront/internal/infra/repository"
	"storefront/internal/infra/token"
	"storefront/internal/middleware"
	"storefront/internal/usecase"
	"storefront/internal/validator"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAdminEmail    = "admin@example.com"
	testAdminPassword = "correct horse battery"
	testCode          = "424242"
)

type testApp struct {
	e         *echo.Echo
	store     *memory.Store
	mutations *usecase.MutationUsecase
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tokens, err := token.NewService(token.Options{
		AdminSecret:    "admin-secret",
		AdminTTL:       time.Hour,
		CustomerSecret: "customer-secret",
		CustomerTTL:    time.Hour,
	})
	require.NoError(t, err)

	log, _ := test.NewNullLogger()
	store := memory.NewStore()
	clock := usecase.SystemClock{}

	authUC := usecase.NewAuthUsecase(usecase.AuthDeps{
		Otps:      infrarepo.NewOtpRedisRepository(client),
		Users:     store.Users(),
		Admins:    store.Admins(),
		Tokens:    tokens,
		Hasher:    usecase.BcryptHasher{Cost: bcrypt.MinCost},
		Validator: validator.NewAuthValidator(),
		Codes:     func() (string, error) { return testCode, nil },
		Log:       log,
	})
	require.NoError(t, authUC.EnsureAdmin(context.Background(), testAdminEmail, testAdminPassword))

	productUC := usecase.NewProductUsecase(store.Products(), store, clock)
	adminOrderUC := usecase.NewAdminOrderUsecase(store, nil, clock, log)
	mutationUC := usecase.NewMutationUsecase(store.Products(), productUC, adminOrderUC, time.Hour, log)
	t.Cleanup(func() { _ = mutationUC.Close(context.Background()) })

	guards := Guards{
		Admin: []echo.MiddlewareFunc{middleware.AdminBearer(tokens)},
		Customer: []echo.MiddlewareFunc{
			middleware.CustomerSession(tokens, middleware.SessionCookieName),
			middleware.CustomerExistsGuard(store.Users()),
		},
	}

	e := echo.New()
	NewAuthHandler(authUC, usecase.NewAccountUsecase(store), CookieConfig{Name: middleware.SessionCookieName, Secure: true}).RegisterRoutes(e, guards)
	NewProductHandler(productUC).RegisterRoutes(e)
	NewAdminProductHandler(productUC, mutationUC).RegisterRoutes(e, guards)
	NewCartHandler(usecase.NewCartUsecase(store.Carts(), store.Carts(), store.Products())).RegisterRoutes(e, guards)
	NewOrderHandler(usecase.NewOrderUsecase(store, nil, clock, log)).RegisterRoutes(e, guards)
	NewAdminOrderHandler(adminOrderUC, mutationUC, usecase.NewAuditUsecase(store)).RegisterRoutes(e, guards)

	return &testApp{e: e, store: store, mutations: mutationUC}
}

type reqOpt func(*http.Request)

func withBearer(tok string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func withCookie(c *http.Cookie) reqOpt {
	return func(r *http.Request) { r.AddCookie(c) }
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (a *testApp) adminToken(t *testing.T) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/admin/login", map[string]string{"email": testAdminEmail, "password": testAdminPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode(t, rec)["access_token"].(string)
}

func (a *testApp) login(t *testing.T, email string) *http.Cookie {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/login/generate", map[string]string{"email": email})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPost, "/login/verify", map[string]string{"email": email, "code": testCode})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func (a *testApp) createProduct(t *testing.T, admin string, stock int64) int64 {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/admin/products",
		map[string]interface{}{"name": "Mug", "price": "12.50", "stock": stock}, withBearer(admin))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return int64(decode(t, rec)["id"].(float64))
}

func (a *testApp) checkout(t *testing.T, cookie *http.Cookie, productID int64, qty int64) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(t, http.MethodPost, "/checkout", map[string]interface{}{
		"items":          []map[string]int64{{"product_id": productID, "quantity": qty}},
		"payment_method": "COD",
	}, withCookie(cookie))
}

func TestCustomerLoginFlow(t *testing.T) {
	a := newTestApp(t)

	rec := a.do(t, http.MethodPost, "/login/generate", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/login/generate", map[string]string{"email": "buyer@example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/login/verify", map[string]string{"email": "buyer@example.com", "code": "000000"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())

	//1回間違えてもコードは生きている
	rec = a.do(t, http.MethodPost, "/login/verify", map[string]string{"email": "buyer@example.com", "code": testCode})
	require.Equal(t, http.StatusOK, rec.Code)
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	user := decode(t, rec)["user"].(map[string]interface{})
	assert.Equal(t, "buyer@example.com", user["email"])

	rec = a.do(t, http.MethodGet, "/me", nil, withCookie(cookie))
	assert.Equal(t, http.StatusOK, rec.Code)

	//使用済みのコードは通らない
	rec = a.do(t, http.MethodPost, "/login/verify", map[string]string{"email": "buyer@example.com", "code": testCode})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodPost, "/logout", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, "", cleared[0].Value)
	assert.True(t, cleared[0].MaxAge < 0)
}

func TestAdminRoutesRequireAdminBearer(t *testing.T) {
	a := newTestApp(t)
	cookie := a.login(t, "buyer@example.com")

	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/admin/orders", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/admin/orders", nil, withCookie(cookie)).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/admin/orders", nil, withBearer(cookie.Value)).Code)

	rec := a.do(t, http.MethodPost, "/admin/login", map[string]string{"email": testAdminEmail, "password": "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/admin/orders", nil, withBearer(a.adminToken(t))).Code)
}

func TestCheckout_InsufficientStockNamesProduct(t *testing.T) {
	a := newTestApp(t)
	admin := a.adminToken(t)
	productID := a.createProduct(t, admin, 1)
	cookie := a.login(t, "buyer@example.com")

	rec := a.checkout(t, cookie, productID, 2)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "insufficient stock", body["error"])
	assert.Equal(t, float64(productID), body["product_id"])
	assert.Equal(t, int64(1), a.store.Stock(productID))

	rec = a.checkout(t, cookie, productID, 1)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode(t, rec)
	assert.Equal(t, "pending", order["status"])
	assert.Equal(t, int64(0), a.store.Stock(productID))

	rec = a.do(t, http.MethodGet, "/orders", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["total"])

	rec = a.do(t, http.MethodPost, "/checkout", map[string]interface{}{"items": []interface{}{}, "payment_method": "COD"}, withCookie(cookie))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusUnauthorized, a.checkout(t, &http.Cookie{Name: middleware.SessionCookieName, Value: "x"}, productID, 1).Code)
}

func TestCart_AddAndCheckoutClears(t *testing.T) {
	a := newTestApp(t)
	admin := a.adminToken(t)
	productID := a.createProduct(t, admin, 5)
	cookie := a.login(t, "buyer@example.com")

	rec := a.do(t, http.MethodPost, "/cart/items", map[string]int64{"product_id": productID, "quantity": 6}, withCookie(cookie))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPost, "/cart/items", map[string]int64{"product_id": productID, "quantity": 2}, withCookie(cookie))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, float64(2), body["item_count"])
	items := body["items"].([]interface{})
	require.Len(t, items, 1)
	itemID := int64(items[0].(map[string]interface{})["id"].(float64))

	rec = a.do(t, http.MethodPatch, "/cart/items/"+itoa(itemID), map[string]int64{"quantity": 3}, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "37.5", body["total"])
	assert.Equal(t, float64(3), body["item_count"])

	rec = a.do(t, http.MethodPost, "/checkout", map[string]interface{}{
		"items":          []map[string]int64{{"product_id": productID, "quantity": 3}},
		"payment_method": "COD",
		"clear_cart":     true,
	}, withCookie(cookie))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/cart", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["items"])
}

func TestAdminOrderLifecycle(t *testing.T) {
	a := newTestApp(t)
	admin := a.adminToken(t)
	productID := a.createProduct(t, admin, 3)
	cookie := a.login(t, "buyer@example.com")

	rec := a.checkout(t, cookie, productID, 2)
	require.Equal(t, http.StatusCreated, rec.Code)
	orderPath := "/admin/orders/" + itoa(int64(decode(t, rec)["id"].(float64)))

	rec = a.do(t, http.MethodPut, orderPath, map[string]string{"status": "shipped"}, withBearer(admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "shipped", decode(t, rec)["status"])

	rec = a.do(t, http.MethodPut, orderPath, map[string]string{"status": "pending"}, withBearer(admin))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPut, orderPath, map[string]string{"status": "lost"}, withBearer(admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/admin/orders?status=shipped", nil, withBearer(admin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["total"])

	rec = a.do(t, http.MethodGet, "/admin/audit-logs?resource_type=order", nil, withBearer(admin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 1)

	//削除で在庫が戻る
	assert.Equal(t, int64(1), a.store.Stock(productID))
	rec = a.do(t, http.MethodDelete, orderPath, nil, withBearer(admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, decode(t, rec)["partial"])
	assert.Equal(t, int64(3), a.store.Stock(productID))

	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, orderPath, nil, withBearer(admin)).Code)
}

func TestAdminDeleteAllOrders(t *testing.T) {
	a := newTestApp(t)
	admin := a.adminToken(t)
	productID := a.createProduct(t, admin, 4)
	cookie := a.login(t, "buyer@example.com")

	require.Equal(t, http.StatusCreated, a.checkout(t, cookie, productID, 1).Code)
	require.Equal(t, http.StatusCreated, a.checkout(t, cookie, productID, 2).Code)
	assert.Equal(t, int64(1), a.store.Stock(productID))

	rec := a.do(t, http.MethodDelete, "/admin/orders/all", nil, withBearer(admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode(t, rec)["deleted"], 2)
	assert.Equal(t, int64(4), a.store.Stock(productID))
}

func TestCoalescedStockPatch(t *testing.T) {
	a := newTestApp(t)
	admin := a.adminToken(t)
	productID := a.createProduct(t, admin, 5)
	path := "/admin/products/" + itoa(productID) + "/stock"

	for i := 0; i < 3; i++ {
		rec := a.do(t, http.MethodPatch, path, map[string]int64{"delta": 1}, withBearer(admin))
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	}
	rec := a.do(t, http.MethodPatch, path, map[string]int64{"delta": -100}, withBearer(admin))
	assert.Equal(t, http.StatusConflict, rec.Code)

	//窓の間は書き込まれない
	assert.Equal(t, int64(5), a.store.Stock(productID))
	rec = a.do(t, http.MethodGet, "/admin/mutations", nil, withBearer(admin))
	require.Equal(t, http.StatusOK, rec.Code)
	muts := decode(t, rec)["mutations"].([]interface{})
	require.Len(t, muts, 1)
	m := muts[0].(map[string]interface{})
	assert.Equal(t, float64(8), m["local"])
	assert.Equal(t, float64(5), m["confirmed"])
	assert.Equal(t, true, m["pending"])

	require.NoError(t, a.mutations.Close(context.Background()))
	assert.Equal(t, int64(8), a.store.Stock(productID))

	rec = a.do(t, http.MethodPut, path, map[string]int64{"stock": 2}, withBearer(admin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), a.store.Stock(productID))

	rec = a.do(t, http.MethodPut, path, map[string]string{"reason": "no stock"}, withBearer(admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteMe_RevokesSession(t *testing.T) {
	a := newTestApp(t)
	admin := a.adminToken(t)
	productID := a.createProduct(t, admin, 2)
	cookie := a.login(t, "buyer@example.com")
	require.Equal(t, http.StatusCreated, a.checkout(t, cookie, productID, 1).Code)

	rec := a.do(t, http.MethodDelete, "/me", nil, withCookie(cookie))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	//トークンは期限内でも顧客がいないので401
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/me", nil, withCookie(cookie)).Code)

	//注文は残る（user_idはnull）
	rec = a.do(t, http.MethodGet, "/admin/orders", nil, withBearer(admin))
	require.Equal(t, http.StatusOK, rec.Code)
	orders := decode(t, rec)["items"].([]interface{})
	require.Len(t, orders, 1)
	assert.Nil(t, orders[0].(map[string]interface{})["user_id"])
}

func TestPublicProducts(t *testing.T) {
	a := newTestApp(t)
	productID := a.createProduct(t, a.adminToken(t), 2)

	rec := a.do(t, http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]interface{})
	require.Len(t, items, 1)
	item := items[0].(map[string]interface{})
	assert.Equal(t, true, item["in_stock"])
	assert.Equal(t, float64(2), item["stock"])
	//管理用の項目は出さない
	assert.NotContains(t, item, "is_active")

	rec = a.do(t, http.MethodGet, "/products/"+itoa(productID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(productID), decode(t, rec)["id"])
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/products/abc", nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/products/999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/products?page=x", nil).Code)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
