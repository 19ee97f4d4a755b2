package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"medride/internal/domain/model"
	"medride/internal/lib/sl"
	"medride/internal/repository"
)

const (
	DefaultOTPTTL = 10 * time.Minute

	defaultDispatchTimeout = 10 * time.Second
	otpSpace               = 1_000_000
)

// OTPの発行・送信・消費
type OTPChallengeManager struct {
	logger          *slog.Logger
	store           repository.OTPStore
	sender          SMSSender
	clock           Clock
	secret          []byte
	ttl             time.Duration
	dispatchTimeout time.Duration
}

// DI
func NewOTPChallengeManager(
	logger *slog.Logger,
	store repository.OTPStore,
	sender SMSSender,
	clock Clock,
	secret string,
	ttl time.Duration,
	dispatchTimeout time.Duration,
) *OTPChallengeManager {
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	if dispatchTimeout <= 0 {
		dispatchTimeout = defaultDispatchTimeout
	}
	return &OTPChallengeManager{
		logger:          logger,
		store:           store,
		sender:          sender,
		clock:           clock,
		secret:          []byte(secret),
		ttl:             ttl,
		dispatchTimeout: dispatchTimeout,
	}
}

// 新しいコードを保存して、電話番号があればSMSで送る。
// 送信は非同期で、失敗してもログに残すだけ。
func (m *OTPChallengeManager) IssueChallenge(ctx context.Context, user *model.User) error {
	const op = "auth.IssueChallenge"

	code, err := GenerateCode()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	challenge := model.OTPChallenge{
		Email:     user.Email,
		CodeHash:  m.hash(user.Email, code),
		ExpiresAt: m.clock.Now().Add(m.ttl),
	}
	if err := m.store.Save(ctx, challenge, m.ttl); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
	}

	if user.Phone != "" {
		go m.dispatch(context.WithoutCancel(ctx), user.ID, user.Phone, code)
	}
	return nil
}

func (m *OTPChallengeManager) dispatch(ctx context.Context, userID string, phone string, code string) {
	ctx, cancel := context.WithTimeout(ctx, m.dispatchTimeout)
	defer cancel()

	body := fmt.Sprintf("Your MedRide verification code is %s. It expires in %d minutes.", code, int(m.ttl.Minutes()))
	if err := m.sender.Send(ctx, phone, body); err != nil {
		m.logger.Warn("failed to deliver otp",
			slog.String("op", "auth.IssueChallenge"),
			slog.String("user_id", userID),
			sl.Err(err),
		)
	}
}

// コードが一致して期限内ならtrue。使ったチャレンジは消える
func (m *OTPChallengeManager) ConsumeChallenge(ctx context.Context, email string, code string) bool {
	ok, err := m.store.Consume(ctx, email, m.hash(email, code), m.clock.Now())
	if err != nil {
		m.logger.Error("otp store failure",
			slog.String("op", "auth.ConsumeChallenge"),
			sl.Err(err),
		)
		return false
	}
	return ok
}

// HMAC-SHA256(email || 0x00 || code)
func (m *OTPChallengeManager) hash(email string, code string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(email))
	mac.Write([]byte{0})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// 000000〜999999を一様に選ぶ
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpace))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
