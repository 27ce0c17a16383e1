package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerMiddleware_LevelByStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()
	e := echo.New()
	e.Use(RequestIDMiddleware(), LoggerMiddleware(logger))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/bad", func(c echo.Context) error { return c.NoContent(http.StatusConflict) })
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusInternalServerError, "boom") })

	tests := []struct {
		path  string
		level logrus.Level
		msg   string
	}{
		{"/ok", logrus.InfoLevel, "Request processed"},
		{"/bad", logrus.WarnLevel, "Client error"},
		{"/boom", logrus.ErrorLevel, "Server error"},
	}
	for _, tt := range tests {
		hook.Reset()
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

		entry := hook.LastEntry()
		require.NotNil(t, entry, tt.path)
		assert.Equal(t, tt.level, entry.Level, tt.path)
		assert.Equal(t, tt.msg, entry.Message)
		assert.Equal(t, tt.path, entry.Data["path"])
		assert.NotEmpty(t, entry.Data["request_id"])
	}
}

func TestRequestIDMiddleware_KeepsIncomingID(t *testing.T) {
	e := echo.New()
	e.Use(RequestIDMiddleware())
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get(CtxRequestIDKey).(string))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Body.String())
	assert.Equal(t, "req-123", rec.Header().Get(echo.HeaderXRequestID))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Body.String(), 36)
}
