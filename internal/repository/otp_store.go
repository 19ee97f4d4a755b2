package repository

import (
	"context"
	"time"

	"medride/internal/domain/model"
)

// email単位のOTPチャレンジ置き場
type OTPStore interface {
	// 同じemailの既存チャレンジは上書きする
	Save(ctx context.Context, challenge model.OTPChallenge, ttl time.Duration) error

	// 期限内でハッシュが一致した時だけ削除してtrue。
	// 同じチャレンジに対して並行に呼ばれてもtrueは1回だけ。
	Consume(ctx context.Context, email string, codeHash string, now time.Time) (bool, error)
}
