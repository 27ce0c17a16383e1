package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthAndPing(t *testing.T) {
	log, _ := test.NewNullLogger()
	e := New(log)
	redisDown := false
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
	e.GET("/health", health([]HealthCheck{
		{Name: "postgres", Check: func(context.Context) error { return nil }},
		{Name: "redis", Check: func(context.Context) error {
			if redisDown {
				return errors.New("connection refused")
			}
			return nil
		}},
	}))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, "pong", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"postgres":"up","redis":"up"}}`, rec.Body.String())

	redisDown = true
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"postgres":"up","redis":"down"}}`, rec.Body.String())
}

func TestShutdownManager_RunsAllInOrder(t *testing.T) {
	log, hook := test.NewNullLogger()
	sm := NewShutdownManager(log)

	var order []string
	boom := errors.New("boom")
	sm.Register("mutations", func(context.Context) error {
		order = append(order, "mutations")
		return boom
	})
	sm.Register("notifications", func(context.Context) error {
		order = append(order, "notifications")
		return nil
	})

	err := sm.Shutdown(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"mutations", "notifications"}, order)

	var failed bool
	for _, e := range hook.AllEntries() {
		if e.Message == "Error during component shutdown" {
			failed = true
			assert.Equal(t, "mutations", e.Data["component"])
		}
	}
	assert.True(t, failed)
}
