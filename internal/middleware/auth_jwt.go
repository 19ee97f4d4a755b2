package middleware

import (
	"context"
	"net/http"
	"strings"

	"medride/internal/domain/model"

	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey   = "user_id"   // string
	CtxUserRoleKey = "user_role" // model.Role
)

type identityCtxKey struct{}

// アクセストークンを検証する約束
type AccessTokenVerifier interface {
	VerifyAccessToken(raw string) (model.Identity, error)
}

// bearerAuth用のJWT検証ミドルウェア。
// 署名と期限とtype=accessだけを見る。DBは引かない。
func Authenticate(verifier AccessTokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rawToken, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			//JWTをパースして検証する
			id, err := verifier.VerifyAccessToken(rawToken)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			//contextへ保存
			c.Set(CtxUserIDKey, id.UserID)
			c.Set(CtxUserRoleKey, id.Role)
			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), id)))

			return next(c)
		}
	}
}

// Bearer形式か確認してtokenを抜く
func bearerToken(authz string) (string, bool) {
	if authz == "" {
		return "", false
	}
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	raw := strings.TrimSpace(parts[1])
	return raw, raw != ""
}

// usecase側でも主体を取り出せるようにctxに載せる
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(model.Identity)
	return id, ok
}

// Authenticateを通ったリクエストの主体
func IdentityFrom(c echo.Context) (model.Identity, bool) {
	userID, ok := c.Get(CtxUserIDKey).(string)
	if !ok || userID == "" {
		return model.Identity{}, false
	}
	role, ok := c.Get(CtxUserRoleKey).(model.Role)
	if !ok {
		return model.Identity{}, false
	}
	return model.Identity{UserID: userID, Role: role}, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}
