//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/NordCoder/Tokengate/internal/domain/identity"
	"github.com/NordCoder/Tokengate/internal/domain/identity/mocks"
	domainoutbox "github.com/NordCoder/Tokengate/internal/domain/outbox"
	pg "github.com/NordCoder/Tokengate/internal/repository/postgres"
	"github.com/NordCoder/Tokengate/internal/services/api-gateway/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"
)

func newUsecase(t *testing.T, p *PG, v identity.Verifier, now func() time.Time) *auth.Usecase {
	t.Helper()
	log := zaptest.NewLogger(t)
	return auth.NewUseCase(auth.Deps{
		Users:    pg.NewUserRepo(p.DB),
		Sessions: pg.NewSessionRepo(p.DB),
		Outbox:   pg.NewOutboxRepo(p.DB),
		Tx:       pg.NewTransactor(p.DB, log),
		Verifier: v,
		Logger:   log,
	}, auth.Config{Secret: []byte("it-secret"), TTL: time.Hour, Now: now})
}

func TestPostgres_SignInLogoutFlow(t *testing.T) {
	p := StartPostgres(t)
	ctx := context.Background()

	v := mocks.NewMockVerifier(gomock.NewController(t))
	v.EXPECT().Verify(gomock.Any(), "cred").
		Return(&identity.Identity{SubjectID: "g1", Email: "a@b.com", DisplayName: "Alice"}, nil).Times(2)

	now := time.Now().UTC().Truncate(time.Second)
	uc := newUsecase(t, p, v, func() time.Time { return now })

	first, err := uc.SignIn(ctx, "cred", "d1")
	require.NoError(t, err)
	now = now.Add(time.Second)
	second, err := uc.SignIn(ctx, "cred", "d2")
	require.NoError(t, err)

	assert.Equal(t, first.User.ID, second.User.ID)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.Equal(t, 1, p.Count(t, `SELECT count(*) FROM users`))
	assert.Equal(t, 1, p.Count(t, `SELECT count(*) FROM sessions`))
	assert.Equal(t, 1, p.Count(t, `SELECT count(*) FROM users WHERE device_id = 'd2'`))
	assert.Equal(t, 2, p.Count(t, `SELECT count(*) FROM outbox WHERE kind = $1`, int(domainoutbox.KindSessionLogin)))

	_, err = uc.Authenticate(ctx, first.AccessToken)
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)

	sess, err := uc.Authenticate(ctx, second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, second.User.ID, sess.UserID)

	revoked, err := uc.Logout(ctx, second.AccessToken)
	require.NoError(t, err)
	assert.True(t, revoked)
	revoked, err = uc.Logout(ctx, second.AccessToken)
	require.NoError(t, err)
	assert.False(t, revoked)

	_, err = uc.Authenticate(ctx, second.AccessToken)
	assert.ErrorIs(t, err, auth.ErrSessionRevoked)
	assert.Equal(t, 1, p.Count(t, `SELECT count(*) FROM sessions WHERE revoked`))
	assert.Equal(t, 1, p.Count(t, `SELECT count(*) FROM outbox WHERE kind = $1`, int(domainoutbox.KindSessionLogout)))
}

func TestPostgres_ConcurrentFirstLogin(t *testing.T) {
	p := StartPostgres(t)
	ctx := context.Background()

	v := mocks.NewMockVerifier(gomock.NewController(t))
	v.EXPECT().Verify(gomock.Any(), gomock.Any()).
		Return(&identity.Identity{SubjectID: "g-race", Email: "race@b.com"}, nil).AnyTimes()
	uc := newUsecase(t, p, v, time.Now)

	const n = 8
	var wg sync.WaitGroup
	ids := make([]int64, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := uc.SignIn(ctx, "cred", "d")
			errs[i] = err
			if err == nil {
				ids[i] = res.User.ID
			}
		}(i)
	}
	wg.Wait()

	var userID int64
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if userID == 0 {
			userID = ids[i]
		}
		assert.Equal(t, userID, ids[i])
	}
	assert.Equal(t, 1, p.Count(t, `SELECT count(*) FROM users`))
	assert.Equal(t, 1, p.Count(t, `SELECT count(*) FROM sessions WHERE user_id = $1 AND NOT revoked`, userID))
}

func TestPostgres_RevokeUserAndOutboxClaim(t *testing.T) {
	p := StartPostgres(t)
	ctx := context.Background()

	v := mocks.NewMockVerifier(gomock.NewController(t))
	v.EXPECT().Verify(gomock.Any(), "cred").
		Return(&identity.Identity{SubjectID: "g2", Email: "b@b.com"}, nil)
	uc := newUsecase(t, p, v, time.Now)

	res, err := uc.SignIn(ctx, "cred", "d1")
	require.NoError(t, err)

	revoked, err := uc.RevokeUser(ctx, res.User.ID)
	require.NoError(t, err)
	assert.True(t, revoked)
	revoked, err = uc.RevokeUser(ctx, res.User.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = uc.RevokeUser(ctx, res.User.ID+1000)
	require.NoError(t, err)
	assert.False(t, revoked)

	repo := pg.NewOutboxRepo(p.DB)
	msgs, err := repo.PickBatch(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	kinds := []domainoutbox.Kind{msgs[0].Kind, msgs[1].Kind}
	assert.ElementsMatch(t, []domainoutbox.Kind{domainoutbox.KindSessionLogin, domainoutbox.KindSessionLogout}, kinds)

	again, err := repo.PickBatch(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, repo.MarkSuccess(ctx, []string{msgs[0].IdempotencyKey, msgs[1].IdempotencyKey}))
	assert.Equal(t, 2, p.Count(t, `SELECT count(*) FROM outbox WHERE status = 'SUCCESS'`))
}
