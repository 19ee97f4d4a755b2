package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"medride/internal/domain/model"
	"medride/internal/lib/sl"
	"medride/internal/repository"
)

// 使用済み/同時使用されたリフレッシュトークン
var errRefreshReplayed = errors.New("refresh token already used")

type RefreshUsecase struct {
	logger   *slog.Logger
	userRepo repository.UserRepository
	txm      repository.TransactionManager
	registry *SessionRegistry
	pairs    pairIssuer
	idGen    IDGenerator
	clock    Clock
}

func NewRefreshUsecase(
	logger *slog.Logger,
	userRepo repository.UserRepository,
	txm repository.TransactionManager,
	tokens TokenIssuer,
	registry *SessionRegistry,
	idGen IDGenerator,
	clock Clock,
) *RefreshUsecase {
	return &RefreshUsecase{
		logger:   logger,
		userRepo: userRepo,
		txm:      txm,
		registry: registry,
		pairs:    pairIssuer{tokens: tokens, registry: registry},
		idGen:    idGen,
		clock:    clock,
	}
}

// リフレッシュトークンを1回だけ新しいペアに交換する。
// 古いセッションの失効と新しいセッションの作成は同じTx。
func (u *RefreshUsecase) Execute(ctx context.Context, refreshToken string) (TokenPair, error) {
	const op = "auth.Refresh"
	log := u.logger.With(slog.String("op", op))

	session, err := u.registry.FindValidSession(ctx, refreshToken)
	if err != nil {
		if KindOf(err) == KindPersistence {
			log.Error("failed to look up session", sl.Err(err))
		}
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}
	if session == nil {
		return TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := u.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to look up user", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
	}

	var pair TokenPair
	err = u.txm.WithinTx(ctx, func(r repository.TxRepos) error {
		//失効できた呼び出しだけが続行できる
		claimed, err := u.registry.WithRepository(r.Sessions()).claim(ctx, session.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return errRefreshReplayed
		}

		p, err := u.pairs.issue(ctx, r.Sessions(), user)
		if err != nil {
			return err
		}
		if err := r.AuditLogs().Create(ctx, newAuditLog(u.idGen, u.clock, user.ID, model.AuditActionRefresh)); err != nil {
			return err
		}
		pair = p
		return nil
	})
	if err != nil {
		if errors.Is(err, errRefreshReplayed) {
			log.Warn("refresh token replay detected",
				slog.String("user_id", user.ID),
				slog.String("session_id", session.ID),
			)
			return TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrInvalidCredentials, err)
		}
		err = persistenceError(op, err)
		log.Error("failed to rotate session", sl.Err(err))
		return TokenPair{}, err
	}

	return pair, nil
}
