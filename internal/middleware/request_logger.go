package middleware

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// 相関ID。来ていればそのまま使い、レスポンスにも返す
const HeaderCorrelationID = "X-Correlation-Id"

// アクセスログをslogで出す
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogURIPath:   true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			requestID := v.RequestID
			if requestID == "" {
				requestID = c.Response().Header().Get(HeaderCorrelationID)
			}

			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("path", v.URIPath),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", requestID),
				slog.String("remote_ip", v.RemoteIP),
			}

			level := slog.LevelInfo
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}

			logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}

// TLS終端の後ろでもX-Forwarded-Protoがhttpsなら通す
func RequireTLS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.TLS != nil || req.Header.Get(echo.HeaderXForwardedProto) == "https" {
				return next(c)
			}
			return c.JSON(http.StatusUpgradeRequired, errorJSON("https required"))
		}
	}
}
