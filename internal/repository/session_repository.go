package repository

import (
	"context"
	"errors"
	"time"

	"medride/internal/domain/model"
)

var ErrSessionNotFound = errors.New("session not found")

// セッションの保存・取得・失効
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	FindByID(ctx context.Context, sessionID string) (*model.Session, error)

	// revoked_atが未設定の行だけ更新する。
	// この呼び出しで失効させた場合だけtrue。
	Revoke(ctx context.Context, sessionID string, revokedAt time.Time) (bool, error)
}
