package model

import "time"

// リフレッシュトークン1本に対応するセッション。
// 物理削除はせず、revoked_atで無効にする。
type Session struct {
	//リフレッシュトークンのjtiと同じ値
	ID string `gorm:"type:varchar(36);primaryKey" json:"id"`

	UserID string `gorm:"type:varchar(36);not null;index" json:"userId"`

	//トークン文字列全体のsha256(hex)
	TokenHash string `gorm:"type:varchar(64);not null;uniqueIndex" json:"-"`

	ExpiresAt time.Time  `gorm:"not null;index" json:"expiresAt"`
	RevokedAt *time.Time `gorm:"index" json:"revokedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// 未失効かつ期限内ならtrue
func (s *Session) ActiveAt(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
