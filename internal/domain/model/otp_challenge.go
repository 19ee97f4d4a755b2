package model

import "time"

// email単位のワンタイムパスコード。コードはハッシュだけ持つ。
type OTPChallenge struct {
	Email     string
	CodeHash  string
	ExpiresAt time.Time
}

func (c OTPChallenge) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
