package repository

import (
	"context"
	"errors"

	"medride/internal/domain/model"
)

var (
	// ユーザーが見つかりませんを統一
	ErrUserNotFound = errors.New("user not found")

	// email一意制約違反
	ErrUserAlreadyExists = errors.New("user already exists")
)

// 保存・取得を約束
type UserRepository interface {
	//新規ユーザー作成。email重複はErrUserAlreadyExists
	Create(ctx context.Context, user *model.User) error
	// IDからユーザーを1件取得する。
	FindByID(ctx context.Context, userID string) (*model.User, error)
	//メールからユーザーを一件取得する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}
