package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"medride/internal/domain/model"
	"medride/internal/repository"
)

// リフレッシュトークンとセッション行を対応づける
type SessionRegistry struct {
	sessions repository.SessionRepository
	tokens   TokenIssuer
	clock    Clock
}

// DI
func NewSessionRegistry(sessions repository.SessionRepository, tokens TokenIssuer, clock Clock) *SessionRegistry {
	return &SessionRegistry{sessions: sessions, tokens: tokens, clock: clock}
}

// トランザクション用のrepoに差し替えたコピーを返す
func (r *SessionRegistry) WithRepository(sessions repository.SessionRepository) *SessionRegistry {
	cp := *r
	cp.sessions = sessions
	return &cp
}

// 発行したばかりのリフレッシュトークンからセッションを作る
func (r *SessionRegistry) CreateSession(ctx context.Context, userID string, refreshToken string) (*model.Session, error) {
	const op = "auth.CreateSession"

	claims, err := r.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrConfiguration, err)
	}
	if claims.UserID != userID {
		return nil, fmt.Errorf("%s: %w: subject mismatch", op, ErrConfiguration)
	}

	s := &model.Session{
		ID:        claims.SessionID,
		UserID:    userID,
		TokenHash: HashRefreshToken(refreshToken),
		ExpiresAt: claims.ExpiresAt,
		CreatedAt: r.clock.Now(),
	}
	if err := r.sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
	}
	return s, nil
}

// 有効なセッションを返す。
// 署名やtypeが不正ならErrInvalidCredentials、失効/期限切れ/不一致ならnil。
func (r *SessionRegistry) FindValidSession(ctx context.Context, refreshToken string) (*model.Session, error) {
	const op = "auth.FindValidSession"

	claims, err := r.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidCredentials, err)
	}

	s, err := r.sessions.FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
	}

	hash := HashRefreshToken(refreshToken)
	if subtle.ConstantTimeCompare([]byte(s.TokenHash), []byte(hash)) != 1 {
		return nil, nil
	}
	if !s.ActiveAt(r.clock.Now()) {
		return nil, nil
	}
	return s, nil
}

// 失効させる。何度呼んでもよい
func (r *SessionRegistry) RevokeSession(ctx context.Context, sessionID string) error {
	if _, err := r.claim(ctx, sessionID); err != nil {
		return err
	}
	return nil
}

// 未失効なら失効させてtrue。並行呼び出しでtrueになるのは1つだけ
func (r *SessionRegistry) claim(ctx context.Context, sessionID string) (bool, error) {
	ok, err := r.sessions.Revoke(ctx, sessionID, r.clock.Now())
	if err != nil {
		return false, fmt.Errorf("auth.RevokeSession: %w: %w", ErrPersistence, err)
	}
	return ok, nil
}

// トークン文字列全体のsha256(hex)
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
