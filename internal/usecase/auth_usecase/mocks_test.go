package auth_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"medride/internal/domain/model"
	"medride/internal/infra/otpstore"
	"medride/internal/infra/token"
	"medride/internal/lib/logger"
	"medride/internal/repository"
	auth "medride/internal/usecase/auth_usecase"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var errStorageDown = errors.New("storage down")

// =====================
// clock
// =====================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// =====================
// Mock: UserRepository
// =====================

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *MockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

// =====================
// Mock: SessionRepository
// =====================

type MockSessionRepo struct {
	mock.Mock
}

func (m *MockSessionRepo) Create(ctx context.Context, s *model.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*model.Session)
	return s, args.Error(1)
}

func (m *MockSessionRepo) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

// =====================
// Mock: AuditLogRepository
// =====================

type MockAuditLogRepo struct {
	mock.Mock
}

func (m *MockAuditLogRepo) Create(ctx context.Context, log model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func auditAction(action model.AuditAction) interface{} {
	return mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == action && l.UserID != nil && l.ID != ""
	})
}

// =====================
// Mock: TransactionManager
// =====================

// WithinTxの中で渡すreposを固定する。rollbackはしない
type MockTxManager struct {
	mock.Mock
	Repos repository.TxRepos
}

func (m *MockTxManager) WithinTx(ctx context.Context, fn func(r repository.TxRepos) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(m.Repos)
}

type txReposMock struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	audits   repository.AuditLogRepository
}

func (r *txReposMock) Users() repository.UserRepository         { return r.users }
func (r *txReposMock) Sessions() repository.SessionRepository   { return r.sessions }
func (r *txReposMock) AuditLogs() repository.AuditLogRepository { return r.audits }

// =====================
// Mock: OTPStore
// =====================

type MockOTPStore struct {
	mock.Mock
}

func (m *MockOTPStore) Save(ctx context.Context, ch model.OTPChallenge, ttl time.Duration) error {
	args := m.Called(ctx, ch, ttl)
	return args.Error(0)
}

func (m *MockOTPStore) Consume(ctx context.Context, email, codeHash string, now time.Time) (bool, error) {
	args := m.Called(ctx, email, codeHash, now)
	return args.Bool(0), args.Error(1)
}

// =====================
// Mock: SMSSender
// =====================

type MockSMSSender struct {
	mock.Mock
}

func (m *MockSMSSender) Send(ctx context.Context, to, body string) error {
	args := m.Called(ctx, to, body)
	return args.Error(0)
}

var codeRe = regexp.MustCompile(`\b(\d{6})\b`)

// 送信は非同期なので本文をチャネルで受け取る
func expectSMS(m *MockSMSSender, to string, err error) <-chan string {
	bodies := make(chan string, 8)
	m.On("Send", mock.Anything, to, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { bodies <- args.String(2) }).
		Return(err)
	return bodies
}

func waitCode(t *testing.T, bodies <-chan string) string {
	t.Helper()
	select {
	case body := <-bodies:
		match := codeRe.FindStringSubmatch(body)
		require.Len(t, match, 2, "no code in %q", body)
		return match[1]
	case <-time.After(2 * time.Second):
		t.Fatal("sms was not sent")
		return ""
	}
}

// 非同期送信が走らないことを少し待って確かめる
func assertNoSMS(t *testing.T, m *MockSMSSender) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
	m.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

// =====================
// helper
// =====================

func newTestIssuer(t *testing.T, clock *fakeClock) *token.Issuer {
	t.Helper()
	iss, err := token.NewIssuer(token.Config{
		Secret:     testSecret,
		Issuer:     "medride",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}, clock.Now)
	require.NoError(t, err)
	return iss
}

func mustHash(t *testing.T, plain string) string {
	t.Helper()
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)
	return string(b)
}

func newUser(t *testing.T, email, password string, role model.Role) *model.User {
	return &model.User{
		ID:           "user-" + model.NormalizeEmail(email),
		Email:        model.NormalizeEmail(email),
		Phone:        "+15550100",
		PasswordHash: mustHash(t, password),
		Role:         role,
	}
}

// =====================
// env
// =====================

// sessionsはモックかメモリ実装を渡す
type testEnv struct {
	clock    *fakeClock
	users    *MockUserRepo
	audits   *MockAuditLogRepo
	txm      *MockTxManager
	sms      *MockSMSSender
	otpStore *otpstore.MemoryStore
	issuer   *token.Issuer
	registry *auth.SessionRegistry
	otp      *auth.OTPChallengeManager

	register *auth.RegisterUserUsecase
	login    *auth.LoginUsecase
	refresh  *auth.RefreshUsecase
	logout   *auth.LogoutUsecase
}

func newTestEnv(t *testing.T, sessions repository.SessionRepository) *testEnv {
	t.Helper()

	e := &testEnv{
		clock:    &fakeClock{now: time.Now()},
		users:    new(MockUserRepo),
		audits:   new(MockAuditLogRepo),
		sms:      new(MockSMSSender),
		otpStore: otpstore.NewMemoryStore(),
	}
	e.txm = &MockTxManager{Repos: &txReposMock{users: e.users, sessions: sessions, audits: e.audits}}
	e.issuer = newTestIssuer(t, e.clock)

	log := logger.Discard()
	hasher := auth.NewBcryptPasswordHasher(bcrypt.MinCost)
	verifier := auth.NewBcryptPasswordVerifier()
	ids := auth.UUIDGenerator{}

	e.registry = auth.NewSessionRegistry(sessions, e.issuer, e.clock)
	e.otp = auth.NewOTPChallengeManager(log, e.otpStore, e.sms, e.clock, testSecret, 10*time.Minute, time.Second)

	e.register = auth.NewRegisterUserUsecase(log, e.users, e.txm, hasher, e.issuer, e.registry, ids, e.clock)
	e.login = auth.NewLoginUsecase(log, e.users, e.txm, hasher, verifier, e.otp, e.issuer, e.registry, ids, e.clock)
	e.refresh = auth.NewRefreshUsecase(log, e.users, e.txm, e.issuer, e.registry, ids, e.clock)
	e.logout = auth.NewLogoutUsecase(log, e.registry)
	return e
}

// 既存ユーザーとしてemail/IDで引けるようにする
func (e *testEnv) seedUser(u *model.User) {
	e.users.On("FindByEmail", mock.Anything, u.Email).Return(u, nil).Maybe()
	e.users.On("FindByID", mock.Anything, u.ID).Return(u, nil).Maybe()
}

// 保存済みセッションつきのリフレッシュトークンを作る
func (e *testEnv) issueRefresh(t *testing.T, userID string) string {
	t.Helper()
	rt, err := e.issuer.IssueRefreshToken(userID)
	require.NoError(t, err)
	_, err = e.registry.CreateSession(context.Background(), userID, rt.Token)
	require.NoError(t, err)
	return rt.Token
}
