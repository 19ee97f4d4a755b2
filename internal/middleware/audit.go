package middleware

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"medride/internal/domain/model"
	"medride/internal/lib/sl"
	"medride/internal/repository"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const auditWriteTimeout = 3 * time.Second

// 書き込み系リクエストを監査ログに残す。
// 本文はkeyでHMAC-SHA256した値だけ保存する。保存に失敗してもレスポンスは変えない。
func Audit(logs repository.AuditLogRepository, key []byte, logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isMutating(req.Method) {
				return next(c)
			}

			var body []byte
			if req.Body != nil {
				b, err := io.ReadAll(req.Body)
				if err != nil {
					//BodyLimit超過は413のまま返す
					var he *echo.HTTPError
					if errors.As(err, &he) {
						return he
					}
					return c.JSON(http.StatusBadRequest, errorJSON("invalid body"))
				}
				body = b
				req.Body = io.NopCloser(bytes.NewReader(b))
			}

			err := next(c)

			entry := model.AuditLog{
				ID:        uuid.NewString(),
				Action:    model.AuditActionRequest,
				Method:    req.Method,
				Path:      req.URL.Path,
				BodyHash:  bodyMAC(key, body),
				CreatedAt: time.Now(),
			}
			if id, ok := IdentityFrom(c); ok {
				entry.UserID = &id.UserID
			}

			//リクエストのctxが切れていても書く
			ctx, cancel := context.WithTimeout(context.WithoutCancel(req.Context()), auditWriteTimeout)
			defer cancel()
			if aerr := logs.Create(ctx, entry); aerr != nil {
				logger.Warn("failed to write audit log",
					slog.String("method", entry.Method),
					slog.String("path", entry.Path),
					sl.Err(aerr),
				)
			}

			return err
		}
	}
}

// パスワード入りの本文もあるので鍵なしのハッシュにはしない
func bodyMAC(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
