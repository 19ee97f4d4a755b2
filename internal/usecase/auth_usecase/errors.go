package auth

import (
	"errors"

	"medride/internal/infra/token"
)

var (
	// 入力が不正
	ErrValidation = errors.New("validation error")

	// emailまたはパスワード/OTP/トークンが違う
	ErrInvalidCredentials = errors.New("invalid credentials")

	// パスワードが通らなかったのでOTPを送った
	ErrOTPRequired = errors.New("otp sent")

	// 認証済みだが権限が無い
	ErrForbidden = errors.New("forbidden")

	// 競合
	ErrEmailAlreadyExists = errors.New("email already exists")

	// 保存先の失敗・タイムアウト
	ErrPersistence = errors.New("persistence error")

	// 鍵やclaimsなど設定ミス
	ErrConfiguration = errors.New("configuration error")
)

// 呼び出し側が分岐に使うエラーの種類
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindNeedsOTP
	KindInvalidCredentials
	KindForbidden
	KindConflict
	KindPersistence
	KindConfiguration
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindNeedsOTP:
		return "needs_otp"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindPersistence:
		return "persistence"
	case KindConfiguration:
		return "configuration"
	default:
		return "internal"
	}
}

// errをKindに分類する
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrOTPRequired):
		return KindNeedsOTP
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, token.ErrInvalidToken):
		return KindInvalidCredentials
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrEmailAlreadyExists):
		return KindConflict
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrConfiguration), errors.Is(err, token.ErrInvalidClaims), errors.Is(err, token.ErrMissingSecret):
		return KindConfiguration
	default:
		return KindInternal
	}
}
