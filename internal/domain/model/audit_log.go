package model

import "time"

// 何をしたか
type AuditAction string

const (
	AuditActionRegister AuditAction = "auth.register"
	AuditActionLogin    AuditAction = "auth.login"
	AuditActionRefresh  AuditAction = "auth.refresh"

	//書き込み系HTTPリクエスト
	AuditActionRequest AuditAction = "http.request"
)

// 監査ログ。
// 「誰が」「何を」「どこに」したかを残す。本文はハッシュだけ持つ。
type AuditLog struct {
	ID string `gorm:"type:varchar(36);primaryKey" json:"id"`

	//未認証ならnil
	UserID *string `gorm:"type:varchar(36);index" json:"userId,omitempty"`

	Action AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`

	Method string `gorm:"type:varchar(10)" json:"method,omitempty"`
	Path   string `gorm:"type:text" json:"path,omitempty"`

	//リクエストボディのsha256(hex)
	BodyHash string `gorm:"type:varchar(64)" json:"bodyHash,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
}
