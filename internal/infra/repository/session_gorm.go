package repository

import (
	"context"
	"errors"
	"time"

	"medride/internal/domain/model"
	repo "medride/internal/repository"

	"gorm.io/gorm"
)

type sessionGormRepository struct {
	db *gorm.DB //DB接続（GORM）
}

// GORM実装
func NewSessionGormRepository(db *gorm.DB) repo.SessionRepository {
	return &sessionGormRepository{db: db}
}

// セッションを保存
func (r *sessionGormRepository) Create(ctx context.Context, session *model.Session) error {
	//タイムアウトやキャンセルをDB処理に伝える
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return err
	}
	return nil
}

// IDで1件検索します。
func (r *sessionGormRepository) FindByID(ctx context.Context, sessionID string) (*model.Session, error) {
	var s model.Session

	err := r.db.WithContext(ctx).
		Where("id = ?", sessionID).
		First(&s).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repo.ErrSessionNotFound
		}
		return nil, err
	}

	return &s, nil
}

// revoked_atをセットして無効。
// 同じ行を並行に更新しても、WHEREを満たして更新できるのは1つだけ。
func (r *sessionGormRepository) Revoke(ctx context.Context, sessionID string, revokedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", revokedAt)

	if result.Error != nil {
		return false, result.Error
	}

	// 更新件数が0なら「すでに失効済み/存在しない」
	return result.RowsAffected == 1, nil
}
