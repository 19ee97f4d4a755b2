package model

import (
	"strings"
	"time"
)

// ユーザーの役割
type Role string

const (
	RolePatient Role = "patient"
	RoleDriver  Role = "driver"
)

// patient/driverのどちらかならtrue
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDriver
}

// 登録済みユーザー
type User struct {
	ID string `gorm:"type:varchar(36);primaryKey" json:"id"`

	//小文字に正規化して保存する
	Email string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`

	//OTPの送信先
	Phone string `gorm:"type:varchar(32);not null" json:"phone"`

	//bcryptハッシュ。平文は保存しない
	PasswordHash string `gorm:"column:password_hash;not null" json:"-"`

	Role Role `gorm:"type:varchar(20);not null" json:"role"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// emailを比較用の形にそろえる
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
