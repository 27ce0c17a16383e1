package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"storefront/internal/middleware"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

// New はミドルウェアを積んだechoを返す
func New(log *logrus.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(middleware.RequestIDMiddleware())
	e.Use(middleware.LoggerMiddleware(log))
	return e
}

// GracefulServer はシグナル（ctxのキャンセル）でechoを止める
type GracefulServer struct {
	echo    *echo.Echo
	log     logrus.FieldLogger
	addr    string
	timeout time.Duration
}

func NewGracefulServer(e *echo.Echo, log logrus.FieldLogger, addr string) *GracefulServer {
	return &GracefulServer{echo: e, log: log, addr: addr, timeout: 30 * time.Second}
}

// Start はctxが終わるまでブロックし、その後Shutdownする
func (s *GracefulServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("address", s.addr).Info("Starting HTTP server")
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
		s.log.Info("Received shutdown signal")
	}
	return s.Shutdown()
}

func (s *GracefulServer) Shutdown() error {
	s.log.Info("Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.WithError(err).Error("Server forced to shutdown")
		return err
	}

	s.log.Info("Server shutdown completed")
	return nil
}

// ShutdownManager は後片付けを登録順に実行する
type ShutdownManager struct {
	log       logrus.FieldLogger
	functions []namedFunc
}

type namedFunc struct {
	name string
	fn   func(context.Context) error
}

func NewShutdownManager(log logrus.FieldLogger) *ShutdownManager {
	return &ShutdownManager{log: log}
}

func (sm *ShutdownManager) Register(name string, fn func(context.Context) error) {
	sm.functions = append(sm.functions, namedFunc{name: name, fn: fn})
}

// Shutdown は1つ失敗しても残りを続ける。失敗はまとめて返す
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	sm.log.WithField("components", len(sm.functions)).Info("Starting graceful shutdown of components")

	var errs []error
	for _, f := range sm.functions {
		if err := f.fn(ctx); err != nil {
			sm.log.WithError(err).WithField("component", f.name).Error("Error during component shutdown")
			errs = append(errs, err)
		}
	}

	sm.log.Info("All components shutdown completed")
	return errors.Join(errs...)
}
