package model

// 認証済みリクエストの主体
type Identity struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}
