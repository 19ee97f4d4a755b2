package auth

import (
	"context"
	"fmt"

	"medride/internal/domain/model"
	"medride/internal/repository"
)

// handlerがJSONにして返す
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// アクセス/リフレッシュを発行して、リフレッシュ側のセッションを保存する
type pairIssuer struct {
	tokens   TokenIssuer
	registry *SessionRegistry
}

func (p pairIssuer) issue(ctx context.Context, sessions repository.SessionRepository, user *model.User) (TokenPair, error) {
	access, err := p.tokens.IssueAccessToken(user.ID, user.Role)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	refresh, err := p.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	if _, err := p.registry.WithRepository(sessions).CreateSession(ctx, user.ID, refresh.Token); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh.Token}, nil
}

func newAuditLog(idGen IDGenerator, clock Clock, userID string, action model.AuditAction) model.AuditLog {
	return model.AuditLog{
		ID:        idGen.NewID(),
		UserID:    &userID,
		Action:    action,
		CreatedAt: clock.Now(),
	}
}

// 既に分類済みのエラーはそのまま、それ以外は保存失敗として包む
func persistenceError(op string, err error) error {
	if KindOf(err) != KindInternal {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
