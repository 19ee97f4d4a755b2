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

// 会員登録の入力（検証済み）
type RegisterUserInput struct {
	Email    string
	Phone    string
	Password string
	Role     model.Role
}

// RegisterUserUsecaseは会員登録の処理。
type RegisterUserUsecase struct {
	logger   *slog.Logger
	userRepo repository.UserRepository
	txm      repository.TransactionManager
	hasher   PasswordHasher
	pairs    pairIssuer
	idGen    IDGenerator
	clock    Clock
}

// DI
func NewRegisterUserUsecase(
	logger *slog.Logger,
	userRepo repository.UserRepository,
	txm repository.TransactionManager,
	hasher PasswordHasher,
	tokens TokenIssuer,
	registry *SessionRegistry,
	idGen IDGenerator,
	clock Clock,
) *RegisterUserUsecase {
	return &RegisterUserUsecase{
		logger:   logger,
		userRepo: userRepo,
		txm:      txm,
		hasher:   hasher,
		pairs:    pairIssuer{tokens: tokens, registry: registry},
		idGen:    idGen,
		clock:    clock,
	}
}

// 会員登録実行。ユーザーと最初のセッションは同じTxで作る
func (u *RegisterUserUsecase) Execute(ctx context.Context, in RegisterUserInput) (TokenPair, error) {
	const op = "auth.Register"
	log := u.logger.With(slog.String("op", op))

	email := model.NormalizeEmail(in.Email)

	// email重複チェック
	existing, err := u.userRepo.FindByEmail(ctx, email)
	if err == nil && existing != nil {
		return TokenPair{}, fmt.Errorf("%s: %w", op, ErrEmailAlreadyExists)
	}
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		log.Error("failed to look up user", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
	}

	// パスワードをハッシュ化
	hashed, err := u.hasher.Hash(in.Password)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%s: hash password: %w", op, err)
	}

	now := u.clock.Now()
	user := &model.User{
		ID:           u.idGen.NewID(),
		Email:        email,
		Phone:        in.Phone,
		PasswordHash: hashed, // ハッシュを保存（平文は保存しない）
		Role:         in.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var pair TokenPair
	err = u.txm.WithinTx(ctx, func(r repository.TxRepos) error {
		if err := r.Users().Create(ctx, user); err != nil {
			//同時登録で先を越された
			if errors.Is(err, repository.ErrUserAlreadyExists) {
				return ErrEmailAlreadyExists
			}
			return err
		}

		p, err := u.pairs.issue(ctx, r.Sessions(), user)
		if err != nil {
			return err
		}

		if err := r.AuditLogs().Create(ctx, newAuditLog(u.idGen, u.clock, user.ID, model.AuditActionRegister)); err != nil {
			return err
		}

		pair = p
		return nil
	})
	if err != nil {
		err = persistenceError(op, err)
		if KindOf(err) != KindConflict {
			log.Error("failed to register user", sl.Err(err))
		}
		return TokenPair{}, err
	}

	log.Info("user registered", slog.String("user_id", user.ID), slog.String("role", string(user.Role)))
	return pair, nil
}
