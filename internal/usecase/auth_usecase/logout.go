package auth

import (
	"context"
	"fmt"
	"log/slog"

	"medride/internal/lib/sl"
)

type LogoutUsecase struct {
	logger   *slog.Logger
	registry *SessionRegistry
}

func NewLogoutUsecase(logger *slog.Logger, registry *SessionRegistry) *LogoutUsecase {
	return &LogoutUsecase{logger: logger, registry: registry}
}

// セッションを失効させる。無効なトークンなら何もしない。
// 返すのは保存先の失敗だけ。
func (u *LogoutUsecase) Execute(ctx context.Context, refreshToken string) error {
	const op = "auth.Logout"

	session, err := u.registry.FindValidSession(ctx, refreshToken)
	if err != nil {
		if KindOf(err) == KindPersistence {
			u.logger.Error("failed to look up session", slog.String("op", op), sl.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}
	if session == nil {
		return nil
	}

	if err := u.registry.RevokeSession(ctx, session.ID); err != nil {
		u.logger.Error("failed to revoke session", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
