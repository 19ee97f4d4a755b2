package auth

import (
	"context"
	"time"

	"medride/internal/domain/model"
	"medride/internal/infra/token"

	"github.com/google/uuid"
)

// 現在の時間
type Clock interface {
	Now() time.Time
}

// UUID 等のIDを作る約束
type IDGenerator interface {
	NewID() string
}

// 平文パスワードからハッシュへ。
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// 入力パスワードと保存したハッシュを比べる約束
type PasswordVerifier interface {
	Verify(plain string, hashed string) bool
}

// JWTの発行・検証の約束
type TokenIssuer interface {
	IssueAccessToken(userID string, role model.Role) (string, error)
	IssueRefreshToken(userID string) (token.RefreshToken, error)
	VerifyRefreshToken(raw string) (token.RefreshClaims, error)
}

// SMS送信の約束
type SMSSender interface {
	Send(ctx context.Context, to string, body string) error
}

// 実時間
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// UUIDv4
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }
