package auth_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"medride/internal/domain/model"
	"medride/internal/repository"
	auth "medride/internal/usecase/auth_usecase"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ローテーションの成功を何回でも受ける
func allowRotation(e *testEnv) {
	e.txm.On("WithinTx", mock.Anything).Return(nil)
	e.audits.On("Create", mock.Anything, auditAction(model.AuditActionRefresh)).Return(nil)
}

func TestRefresh_RotatesSession(t *testing.T) {
	ctx := context.Background()
	sessions := newMemSessionRepo()
	e := newTestEnv(t, sessions)
	user := newUser(t, gofakeit.Email(), "correct-horse", model.RoleDriver)
	e.seedUser(user)
	allowRotation(e)

	first := e.issueRefresh(t, user.ID)

	second, err := e.refresh.Execute(ctx, first)
	require.NoError(t, err)
	assert.NotEqual(t, first, second.RefreshToken)

	oldClaims, err := e.issuer.VerifyRefreshToken(first)
	require.NoError(t, err)
	assert.NotNil(t, sessions.Get(oldClaims.SessionID).RevokedAt)

	newClaims, err := e.issuer.VerifyRefreshToken(second.RefreshToken)
	require.NoError(t, err)
	assert.Nil(t, sessions.Get(newClaims.SessionID).RevokedAt)
	assert.Equal(t, 2, sessions.Count())

	id, err := e.issuer.VerifyAccessToken(second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, model.RoleDriver, id.Role)

	e.audits.AssertNumberOfCalls(t, "Create", 1)
}

func TestRefresh_SecondUseRejected(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, newMemSessionRepo())
	user := newUser(t, gofakeit.Email(), "correct-horse", model.RolePatient)
	e.seedUser(user)
	allowRotation(e)

	raw := e.issueRefresh(t, user.ID)

	next, err := e.refresh.Execute(ctx, raw)
	require.NoError(t, err)

	_, err = e.refresh.Execute(ctx, raw)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	//新しいトークンは使える
	_, err = e.refresh.Execute(ctx, next.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_ConcurrentOnlyOneWins(t *testing.T) {
	e := newTestEnv(t, newMemSessionRepo())
	user := newUser(t, gofakeit.Email(), "correct-horse", model.RolePatient)
	e.seedUser(user)
	allowRotation(e)

	raw := e.issueRefresh(t, user.ID)

	const n = 16
	var wins, rejected atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := e.refresh.Execute(context.Background(), raw)
			switch auth.KindOf(err) {
			case auth.KindNone:
				wins.Add(1)
			case auth.KindInvalidCredentials:
				rejected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(n-1), rejected.Load())
	e.audits.AssertNumberOfCalls(t, "Create", 1)
}

// Revokeがfalse（先を越された）なら新しいセッションは作らない
func TestRefresh_ClaimLost(t *testing.T) {
	sessions := new(MockSessionRepo)
	e := newTestEnv(t, sessions)
	user := newUser(t, gofakeit.Email(), "correct-horse", model.RolePatient)
	e.seedUser(user)

	rt, err := e.issuer.IssueRefreshToken(user.ID)
	require.NoError(t, err)
	stored := &model.Session{
		ID:        rt.SessionID,
		UserID:    user.ID,
		TokenHash: auth.HashRefreshToken(rt.Token),
		ExpiresAt: rt.ExpiresAt,
	}

	sessions.On("FindByID", mock.Anything, rt.SessionID).Return(stored, nil).Once()
	e.txm.On("WithinTx", mock.Anything).Return(nil).Once()
	sessions.On("Revoke", mock.Anything, rt.SessionID, mock.AnythingOfType("time.Time")).Return(false, nil).Once()

	_, err = e.refresh.Execute(context.Background(), rt.Token)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	e.audits.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	sessions.AssertExpectations(t)
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	sessions := new(MockSessionRepo)
	e := newTestEnv(t, sessions)

	access, err := e.issuer.IssueAccessToken("user-1", model.RolePatient)
	require.NoError(t, err)

	_, err = e.refresh.Execute(context.Background(), access)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	sessions.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestRefresh_Expired(t *testing.T) {
	e := newTestEnv(t, newMemSessionRepo())
	user := newUser(t, gofakeit.Email(), "correct-horse", model.RolePatient)
	e.seedUser(user)

	raw := e.issueRefresh(t, user.ID)
	e.clock.Advance(24*time.Hour + time.Minute)

	_, err := e.refresh.Execute(context.Background(), raw)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	e.txm.AssertNotCalled(t, "WithinTx", mock.Anything)
}

func TestRefresh_Garbage(t *testing.T) {
	sessions := new(MockSessionRepo)
	e := newTestEnv(t, sessions)

	for _, raw := range []string{"", "garbage", "a.b.c"} {
		_, err := e.refresh.Execute(context.Background(), raw)
		assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err), raw)
	}
	sessions.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

// セッションは有効でもユーザーが消えていれば401
func TestRefresh_UserGone(t *testing.T) {
	e := newTestEnv(t, newMemSessionRepo())
	raw := e.issueRefresh(t, "user-gone")
	e.users.On("FindByID", mock.Anything, "user-gone").Return(nil, repository.ErrUserNotFound).Once()

	_, err := e.refresh.Execute(context.Background(), raw)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	e.txm.AssertNotCalled(t, "WithinTx", mock.Anything)
	e.users.AssertExpectations(t)
}

func TestRefresh_StorageFailure(t *testing.T) {
	sessions := new(MockSessionRepo)
	e := newTestEnv(t, sessions)

	rt, err := e.issuer.IssueRefreshToken("user-1")
	require.NoError(t, err)
	sessions.On("FindByID", mock.Anything, rt.SessionID).Return(nil, errStorageDown).Once()

	_, err = e.refresh.Execute(context.Background(), rt.Token)
	assert.Equal(t, auth.KindPersistence, auth.KindOf(err))
	sessions.AssertExpectations(t)
}

func TestRefresh_RevokeFailure(t *testing.T) {
	sessions := new(MockSessionRepo)
	e := newTestEnv(t, sessions)
	user := newUser(t, gofakeit.Email(), "correct-horse", model.RolePatient)
	e.seedUser(user)

	rt, err := e.issuer.IssueRefreshToken(user.ID)
	require.NoError(t, err)
	sessions.On("FindByID", mock.Anything, rt.SessionID).Return(&model.Session{
		ID:        rt.SessionID,
		UserID:    user.ID,
		TokenHash: auth.HashRefreshToken(rt.Token),
		ExpiresAt: rt.ExpiresAt,
	}, nil).Once()
	e.txm.On("WithinTx", mock.Anything).Return(nil).Once()
	sessions.On("Revoke", mock.Anything, rt.SessionID, mock.Anything).Return(false, errStorageDown).Once()

	_, err = e.refresh.Execute(context.Background(), rt.Token)
	assert.Equal(t, auth.KindPersistence, auth.KindOf(err))
	sessions.AssertExpectations(t)
}
