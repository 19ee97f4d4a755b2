package validator

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"medride/internal/domain/model"
	auth "medride/internal/usecase/auth_usecase"
)

const (
	minPasswordLen = 8
	// bcryptが扱える上限
	maxPasswordLen = 72
	maxEmailLen    = 254
	maxPhoneLen    = 32
	otpLen         = 6
)

var (
	// 入力が不正
	ErrInvalidInput = errors.New("invalid input")
)

// どの項目がなぜ不正か
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + " " + e.Message
}

func (e *FieldError) Unwrap() []error {
	return []error{ErrInvalidInput, auth.ErrValidation}
}

func invalid(field, msg string) error {
	return &FieldError{Field: field, Message: msg}
}

// /auth/register のリクエストボディ。
type RegisterRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// /auth/login のリクエストボディ。
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	OTP      string `json:"otp,omitempty"`
}

// /auth/token, /auth/logout のリクエストボディ。
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// サインアップの入力を検証
func ValidateRegister(req RegisterRequest) (auth.RegisterUserInput, error) {
	email, err := validateEmail(req.Email)
	if err != nil {
		return auth.RegisterUserInput{}, err
	}

	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		return auth.RegisterUserInput{}, invalid("phone", "is required")
	}
	if len(phone) > maxPhoneLen {
		return auth.RegisterUserInput{}, invalid("phone", "is too long")
	}

	// パスワード最低文字数
	if len(req.Password) < minPasswordLen {
		return auth.RegisterUserInput{}, invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	}
	if len(req.Password) > maxPasswordLen {
		return auth.RegisterUserInput{}, invalid("password", fmt.Sprintf("must be at most %d bytes", maxPasswordLen))
	}

	role := model.Role(req.Role)
	if !role.Valid() {
		return auth.RegisterUserInput{}, invalid("role", "must be patient or driver")
	}

	return auth.RegisterUserInput{
		Email:    email,
		Phone:    phone,
		Password: req.Password,
		Role:     role,
	}, nil
}

// ログインの入力を検証。passwordとotpはどちらも省略できる
func ValidateLogin(req LoginRequest) (auth.LoginInput, error) {
	email, err := validateEmail(req.Email)
	if err != nil {
		return auth.LoginInput{}, err
	}

	if len(req.Password) > maxPasswordLen {
		return auth.LoginInput{}, invalid("password", fmt.Sprintf("must be at most %d bytes", maxPasswordLen))
	}

	if req.OTP != "" && !isDigits(req.OTP, otpLen) {
		return auth.LoginInput{}, invalid("otp", fmt.Sprintf("must be %d digits", otpLen))
	}

	return auth.LoginInput{
		Email:    email,
		Password: req.Password,
		OTP:      req.OTP,
	}, nil
}

// refresh 入力を検証
func ValidateRefresh(req RefreshRequest) (string, error) {
	raw := strings.TrimSpace(req.RefreshToken)
	if raw == "" {
		return "", invalid("refreshToken", "is required")
	}
	return raw, nil
}

func validateEmail(s string) (string, error) {
	email := model.NormalizeEmail(s)
	if email == "" {
		return "", invalid("email", "is required")
	}
	if len(email) > maxEmailLen {
		return "", invalid("email", "is too long")
	}

	//表示名付き（"Name <a@b>"）は受け付けない
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", invalid("email", "is invalid")
	}
	return email, nil
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
