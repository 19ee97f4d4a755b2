package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"medride/internal/config"
	"medride/internal/handler"
	"medride/internal/lib/sl"
	"medride/internal/middleware"
	"medride/internal/repository"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const (
	bodyLimit    = "1M"
	readyTimeout = 2 * time.Second
)

// 保存先に届くか確認する
type ReadinessFunc func(ctx context.Context) error

// サーバーが使う部品
type Deps struct {
	Auth      *handler.AuthHandler
	Verifier  middleware.AccessTokenVerifier
	AuditLogs repository.AuditLogRepository
	AuditKey  []byte
	Metrics   *middleware.Metrics
	Ready     ReadinessFunc
}

type Server struct {
	logger *slog.Logger
	cfg    config.HTTPConfig
	echo   *echo.Echo
}

// DI
func New(logger *slog.Logger, cfg config.HTTPConfig, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	//共通ミドルウェア
	if deps.Metrics != nil {
		e.Use(deps.Metrics.Middleware())
	}
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		TargetHeader: middleware.HeaderCorrelationID,
		Generator:    uuid.NewString,
	}))
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.Secure())
	e.Use(echomw.BodyLimit(bodyLimit))
	if cfg.RequestTimeout > 0 {
		e.Use(echomw.ContextTimeout(cfg.RequestTimeout))
	}
	if deps.AuditLogs != nil {
		e.Use(middleware.Audit(deps.AuditLogs, deps.AuditKey, logger))
	}

	//ヘルスチェック
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/readyz", readyz(logger, deps.Ready))
	if deps.Metrics != nil {
		e.GET("/metrics", deps.Metrics.Handler())
	}

	//認証API
	g := e.Group("/auth")
	if cfg.RequireTLS {
		g.Use(middleware.RequireTLS())
	}
	if cfg.AuthRateLimit > 0 && cfg.AuthRateWindow > 0 {
		g.Use(authRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow))
	}
	deps.Auth.RegisterRoutes(g, deps.Verifier)

	return &Server{
		logger: logger,
		cfg:    cfg,
		echo:   e,
	}
}

// テストからhttptestで叩く用
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Startはブロックする。Shutdownで止まったらnil
func (s *Server) Start() error {
	const op = "server.Start"
	log := s.logger.With(slog.String("op", op))

	log.Info("http server is running", slog.String("addr", s.cfg.Addr))

	if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// 処理中のリクエストを待ってから止める
func (s *Server) Shutdown(ctx context.Context) error {
	const op = "server.Shutdown"
	log := s.logger.With(slog.String("op", op))

	log.Info("stopping http server")

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func readyz(logger *slog.Logger, ready ReadinessFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ready == nil {
			return c.JSON(http.StatusOK, map[string]string{"storage": "ok"})
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), readyTimeout)
		defer cancel()

		if err := ready(ctx); err != nil {
			logger.Warn("storage is not ready", sl.Err(err))
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"storage": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"storage": "ok"})
	}
}

// IPごとに window あたり limit 回まで
func authRateLimiter(limit int, window time.Duration) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(limit) / window.Seconds()),
		Burst:     limit,
		ExpiresIn: window,
	})

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, handler.ErrorResponse{Error: "forbidden"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, handler.ErrorResponse{Error: "too many requests"})
		},
	})
}
