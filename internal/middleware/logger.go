package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const CtxRequestIDKey = "request_id"

// LoggerMiddleware はアクセスログを出す（ステータスでレベルを変える）
func LoggerMiddleware(logger logrus.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			path := c.Request().URL.Path
			if raw := c.Request().URL.RawQuery; raw != "" {
				path = path + "?" + raw
			}

			err := next(c)
			if err != nil {
				//echoのエラーハンドラに先に書かせてステータスを確定させる
				c.Error(err)
			}

			fields := logrus.Fields{
				"status":     c.Response().Status,
				"latency":    time.Since(start).String(),
				"client_ip":  c.RealIP(),
				"method":     c.Request().Method,
				"path":       path,
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			}
			//Cookieやトークンは出さない。主体のIDだけ
			if id, ok := c.Get(CtxAdminIDKey).(string); ok {
				fields["admin_id"] = id
			}
			if id, ok := c.Get(CtxUserIDKey).(string); ok {
				fields["user_id"] = id
			}
			entry := logger.WithFields(fields)

			status := c.Response().Status
			switch {
			case status >= 500:
				entry.Error("Server error")
			case status >= 400:
				entry.Warn("Client error")
			default:
				entry.Info("Request processed")
			}
			return nil
		}
	}
}

// RequestIDMiddleware はリクエストIDを付ける（ヘッダにあればそれを使う）
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(echo.HeaderXRequestID)
			if requestID == "" || len(requestID) > 128 {
				requestID = uuid.NewString()
			}

			c.Response().Header().Set(echo.HeaderXRequestID, requestID)
			c.Set(CtxRequestIDKey, requestID)
			return next(c)
		}
	}
}
