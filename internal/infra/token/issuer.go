package token

import (
	"errors"
	"fmt"
	"time"

	"medride/internal/domain/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// トークンの種類。claimsの"type"に入る
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

const MinSecretLen = 32

var (
	// 署名・期限・種類のどれかが不正
	ErrInvalidToken = errors.New("invalid token")

	// 発行時の入力不足（設定ミス扱い）
	ErrInvalidClaims = errors.New("invalid token claims")

	// 署名鍵が無い/短い
	ErrMissingSecret = errors.New("jwt secret is missing or too short")
)

type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// 発行したリフレッシュトークン
type RefreshToken struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
}

// 検証済みリフレッシュトークンの中身
type RefreshClaims struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

type claims struct {
	Role model.Role `json:"role,omitempty"`
	Type Type       `json:"type"`
	jwt.RegisteredClaims
}

// HS256でアクセス/リフレッシュトークンを発行・検証する。
// 状態を持たないので並行に使ってよい。
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

// DI
func NewIssuer(cfg Config, now func() time.Time) (*Issuer, error) {
	if len(cfg.Secret) < MinSecretLen {
		return nil, ErrMissingSecret
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", ErrInvalidClaims)
	}
	if now == nil {
		now = time.Now
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(now),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &Issuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        now,
		parser:     jwt.NewParser(opts...),
	}, nil
}

// アクセストークンを発行する
func (i *Issuer) IssueAccessToken(userID string, role model.Role) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: empty user id", ErrInvalidClaims)
	}
	if !role.Valid() {
		return "", fmt.Errorf("%w: role %q", ErrInvalidClaims, role)
	}

	now := i.now()
	return i.sign(claims{
		Role: role,
		Type: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
			ID:        uuid.NewString(),
		},
	})
}

// リフレッシュトークンを発行する。jtiがそのままセッションIDになる
func (i *Issuer) IssueRefreshToken(userID string) (RefreshToken, error) {
	if userID == "" {
		return RefreshToken{}, fmt.Errorf("%w: empty user id", ErrInvalidClaims)
	}

	now := i.now()
	sessionID := uuid.NewString()
	exp := jwt.NewNumericDate(now.Add(i.refreshTTL))

	raw, err := i.sign(claims{
		Type: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
			ID:        sessionID,
		},
	})
	if err != nil {
		return RefreshToken{}, err
	}

	return RefreshToken{Token: raw, SessionID: sessionID, ExpiresAt: exp.Time}, nil
}

// アクセストークンを検証して主体を返す
func (i *Issuer) VerifyAccessToken(raw string) (model.Identity, error) {
	c, err := i.parse(raw, TypeAccess)
	if err != nil {
		return model.Identity{}, err
	}
	if !c.Role.Valid() {
		return model.Identity{}, fmt.Errorf("%w: role", ErrInvalidToken)
	}
	return model.Identity{UserID: c.Subject, Role: c.Role}, nil
}

// リフレッシュトークンを検証して中身を返す
func (i *Issuer) VerifyRefreshToken(raw string) (RefreshClaims, error) {
	c, err := i.parse(raw, TypeRefresh)
	if err != nil {
		return RefreshClaims{}, err
	}
	if c.ID == "" {
		return RefreshClaims{}, fmt.Errorf("%w: missing jti", ErrInvalidToken)
	}
	return RefreshClaims{UserID: c.Subject, SessionID: c.ID, ExpiresAt: c.ExpiresAt.Time}, nil
}

func (i *Issuer) sign(c claims) (string, error) {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("%w: sign: %v", ErrInvalidClaims, err)
	}
	return s, nil
}

func (i *Issuer) parse(raw string, want Type) (*claims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	var c claims
	t, err := i.parser.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !t.Valid {
		return nil, ErrInvalidToken
	}

	//アクセスとリフレッシュの取り違えを拒否
	if c.Type != want {
		return nil, fmt.Errorf("%w: type %q", ErrInvalidToken, c.Type)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &c, nil
}
