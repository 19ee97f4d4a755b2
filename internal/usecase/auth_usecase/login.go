package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"medride/internal/domain/model"
	"medride/internal/lib/sl"
	"medride/internal/repository"
)

// handlerからusecaseに渡す入力（検証済み）。空文字は未指定
type LoginInput struct {
	Email    string
	Password string
	OTP      string
}

type LoginUsecase struct {
	logger   *slog.Logger
	userRepo repository.UserRepository
	txm      repository.TransactionManager
	hasher   PasswordHasher
	verifier PasswordVerifier
	otp      *OTPChallengeManager
	pairs    pairIssuer
	idGen    IDGenerator
	clock    Clock

	dummyOnce sync.Once
	dummyHash string
}

func NewLoginUsecase(
	logger *slog.Logger,
	userRepo repository.UserRepository,
	txm repository.TransactionManager,
	hasher PasswordHasher,
	verifier PasswordVerifier,
	otp *OTPChallengeManager,
	tokens TokenIssuer,
	registry *SessionRegistry,
	idGen IDGenerator,
	clock Clock,
) *LoginUsecase {
	return &LoginUsecase{
		logger:   logger,
		userRepo: userRepo,
		txm:      txm,
		hasher:   hasher,
		verifier: verifier,
		otp:      otp,
		pairs:    pairIssuer{tokens: tokens, registry: registry},
		idGen:    idGen,
		clock:    clock,
	}
}

// ログイン処理を実行する。
// パスワード → OTP の順に試し、どちらも通らなければOTPを送ってErrOTPRequired。
func (u *LoginUsecase) Execute(ctx context.Context, in LoginInput) (TokenPair, error) {
	const op = "auth.Login"
	log := u.logger.With(slog.String("op", op))

	//emailでユーザー取得
	user, err := u.userRepo.FindByEmail(ctx, model.NormalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			//存在しないemailでもbcrypt1回分の時間をかける
			u.verifier.Verify(in.Password, u.timingHash())
			return TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to look up user", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
	}

	method := ""
	switch {
	case in.Password != "" && u.verifier.Verify(in.Password, user.PasswordHash):
		method = "password"
	case in.OTP != "" && u.otp.ConsumeChallenge(ctx, user.Email, in.OTP):
		method = "otp"
	}

	if method == "" {
		if err := u.otp.IssueChallenge(ctx, user); err != nil {
			log.Error("failed to issue otp challenge", sl.Err(err))
			return TokenPair{}, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("otp challenge issued", slog.String("user_id", user.ID))
		return TokenPair{}, fmt.Errorf("%s: %w", op, ErrOTPRequired)
	}

	var pair TokenPair
	err = u.txm.WithinTx(ctx, func(r repository.TxRepos) error {
		p, err := u.pairs.issue(ctx, r.Sessions(), user)
		if err != nil {
			return err
		}
		if err := r.AuditLogs().Create(ctx, newAuditLog(u.idGen, u.clock, user.ID, model.AuditActionLogin)); err != nil {
			return err
		}
		pair = p
		return nil
	})
	if err != nil {
		err = persistenceError(op, err)
		log.Error("failed to issue tokens", sl.Err(err))
		return TokenPair{}, err
	}

	log.Info("user logged in", slog.String("user_id", user.ID), slog.String("method", method))
	return pair, nil
}

func (u *LoginUsecase) timingHash() string {
	u.dummyOnce.Do(func() {
		h, err := u.hasher.Hash("medride-timing-equalizer")
		if err != nil {
			u.logger.Warn("failed to prepare timing hash", sl.Err(err))
			return
		}
		u.dummyHash = h
	})
	return u.dummyHash
}
