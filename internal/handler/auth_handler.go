package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"medride/internal/domain/model"
	"medride/internal/lib/sl"
	"medride/internal/middleware"
	auth "medride/internal/usecase/auth_usecase"
	"medride/internal/validator"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// GET /auth/me のレスポンス
type MeResponse struct {
	UserID string     `json:"userId"`
	Role   model.Role `json:"role"`
}

// /auth 配下のAPI
type AuthHandler struct {
	logger     *slog.Logger
	registerUC *auth.RegisterUserUsecase // 会員登録usecase
	loginUC    *auth.LoginUsecase        // ログインusecase
	refreshUC  *auth.RefreshUsecase      // トークン更新usecase
	logoutUC   *auth.LogoutUsecase       // ログアウトusecase
}

// DIコンストラクタ
func NewAuthHandler(
	logger *slog.Logger,
	registerUC *auth.RegisterUserUsecase,
	loginUC *auth.LoginUsecase,
	refreshUC *auth.RefreshUsecase,
	logoutUC *auth.LogoutUsecase,
) *AuthHandler {
	return &AuthHandler{
		logger:     logger,
		registerUC: registerUC,
		loginUC:    loginUC,
		refreshUC:  refreshUC,
		logoutUC:   logoutUC,
	}
}

// 認証系のルートを登録
func (h *AuthHandler) RegisterRoutes(g *echo.Group, verifier middleware.AccessTokenVerifier) {
	g.POST("/register", h.register)
	g.POST("/login", h.login)
	g.POST("/token", h.token)
	g.POST("/logout", h.logout)
	g.GET("/me", h.me,
		middleware.Authenticate(verifier),
		middleware.Authorize(model.RolePatient, model.RoleDriver),
	)
}

// POST /auth/register
func (h *AuthHandler) register(c echo.Context) error {
	var req validator.RegisterRequest
	if err := decodeJSON(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
	}

	in, err := validator.ValidateRegister(req)
	if err != nil {
		return h.writeError(c, err, "invalid credentials")
	}

	pair, err := h.registerUC.Execute(c.Request().Context(), in)
	if err != nil {
		return h.writeError(c, err, "invalid credentials")
	}

	return c.JSON(http.StatusCreated, pair)
}

// POST /auth/login
func (h *AuthHandler) login(c echo.Context) error {
	var req validator.LoginRequest
	if err := decodeJSON(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
	}

	in, err := validator.ValidateLogin(req)
	if err != nil {
		return h.writeError(c, err, "invalid credentials")
	}

	pair, err := h.loginUC.Execute(c.Request().Context(), in)
	if err != nil {
		return h.writeError(c, err, "invalid credentials")
	}

	return c.JSON(http.StatusOK, pair)
}

// POST /auth/token
// 200か401だけ。本文が壊れていてもトークンなしでも401
func (h *AuthHandler) token(c echo.Context) error {
	var req validator.RefreshRequest
	if err := decodeJSON(c, &req); err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
	}

	raw, err := validator.ValidateRefresh(req)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
	}

	pair, err := h.refreshUC.Execute(c.Request().Context(), raw)
	if err != nil {
		return h.writeError(c, err, "invalid token")
	}

	return c.JSON(http.StatusOK, pair)
}

// POST /auth/logout
// 何が来ても204。不正なトークンでも失効済みでも同じ
func (h *AuthHandler) logout(c echo.Context) error {
	var req validator.RefreshRequest
	if err := decodeJSON(c, &req); err != nil {
		return c.NoContent(http.StatusNoContent)
	}

	raw, err := validator.ValidateRefresh(req)
	if err != nil {
		return c.NoContent(http.StatusNoContent)
	}

	if err := h.logoutUC.Execute(c.Request().Context(), raw); err != nil {
		h.logger.Warn("logout could not revoke session", sl.Err(err))
	}

	return c.NoContent(http.StatusNoContent)
}

// GET /auth/me
func (h *AuthHandler) me(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	return c.JSON(http.StatusOK, MeResponse{UserID: id.UserID, Role: id.Role})
}

// エラーの種類をHTTPステータスに変換する。
// 401の文言はエンドポイントごとに変える
func (h *AuthHandler) writeError(c echo.Context, err error, unauthorizedMsg string) error {
	switch auth.KindOf(err) {
	case auth.KindValidation:
		var fe *validator.FieldError
		if errors.As(err, &fe) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: fe.Error()})
		}
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid input"})
	case auth.KindNeedsOTP:
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "otp sent"})
	case auth.KindInvalidCredentials:
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: unauthorizedMsg})
	case auth.KindForbidden:
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	case auth.KindConflict:
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "email already registered"})
	default:
		//500
		h.logger.Error("request failed",
			slog.String("path", c.Path()),
			slog.String("kind", auth.KindOf(err).String()),
			sl.Err(err),
		)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

// リクエストボディのJSONを読み取り。未知のフィールドは弾く
func decodeJSON(c echo.Context, dst interface{}) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
