package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NordCoder/Tokengate/internal/domain/identity"
	"github.com/NordCoder/Tokengate/internal/domain/identity/mocks"
	"github.com/NordCoder/Tokengate/internal/domain/user"
	"github.com/NordCoder/Tokengate/internal/identity/google"
	"github.com/NordCoder/Tokengate/internal/repository/memory"
	"github.com/NordCoder/Tokengate/internal/token"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

var testSecret = []byte("usecase-test-secret")

type UsecaseSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	verifier *mocks.MockVerifier
	store    *memory.Store
	users    *memory.UserRepo
	sessions *memory.SessionRepo
	outbox   *memory.OutboxRepo
	now      time.Time
	uc       *Usecase
}

func TestUsecaseSuite(t *testing.T) {
	suite.Run(t, new(UsecaseSuite))
}

func (s *UsecaseSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.verifier = mocks.NewMockVerifier(s.ctrl)
	s.store = memory.NewStore()
	s.users = memory.NewUserRepo(s.store)
	s.sessions = memory.NewSessionRepo(s.store)
	s.outbox = memory.NewOutboxRepo(s.store)
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.uc = s.newUsecase(s.users)
}

func (s *UsecaseSuite) newUsecase(users user.Repo) *Usecase {
	return NewUseCase(Deps{
		Users:    users,
		Sessions: s.sessions,
		Outbox:   s.outbox,
		Tx:       memory.NewTransactor(s.store),
		Verifier: s.verifier,
		Logger:   zap.NewNop(),
	}, Config{
		Secret: testSecret,
		TTL:    24 * time.Hour,
		Now:    func() time.Time { return s.now },
	})
}

func (s *UsecaseSuite) expectIdentity(cred string, id *identity.Identity) {
	s.verifier.EXPECT().Verify(gomock.Any(), cred).Return(id, nil)
}

func alice() *identity.Identity {
	return &identity.Identity{SubjectID: "g1", Email: "a@b.com", DisplayName: "Alice"}
}

func (s *UsecaseSuite) TestSignIn_MissingCredentials() {
	for _, tc := range [][2]string{{"", "d1"}, {"tok", ""}, {"", ""}} {
		_, err := s.uc.SignIn(s.ctx, tc[0], tc[1])
		s.ErrorIs(err, ErrMissingCredentials)
	}
	s.Equal(0, s.outbox.Pending())
}

func (s *UsecaseSuite) TestSignIn_VerifierFailuresWriteNothing() {
	s.verifier.EXPECT().Verify(gomock.Any(), "net").
		Return(nil, fmt.Errorf("dial: %w", identity.ErrNetwork))
	s.verifier.EXPECT().Verify(gomock.Any(), "bad").
		Return(nil, fmt.Errorf("status 400: %w", identity.ErrRejected))
	s.verifier.EXPECT().Verify(gomock.Any(), "weird").
		Return(nil, errors.New("something else"))

	_, err := s.uc.SignIn(s.ctx, "net", "d1")
	s.ErrorIs(err, ErrUpstream)
	_, err = s.uc.SignIn(s.ctx, "bad", "d1")
	s.ErrorIs(err, ErrInvalidToken)
	_, err = s.uc.SignIn(s.ctx, "weird", "d1")
	s.ErrorIs(err, ErrInvalidToken)

	u, err := s.users.FindBySubjectID(s.ctx, "g1")
	s.Require().NoError(err)
	s.Nil(u)
	s.Equal(0, s.outbox.Pending())
}

func (s *UsecaseSuite) TestSignIn_CancelledProviderCallIsUpstream() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"sub":"g1","email":"a@b.com"}`))
	}))
	defer srv.Close()

	uc := NewUseCase(Deps{
		Users:    s.users,
		Sessions: s.sessions,
		Outbox:   s.outbox,
		Tx:       memory.NewTransactor(s.store),
		Verifier: google.NewWithHTTPClient(google.Config{Endpoint: srv.URL, Attempts: 2}, srv.Client()),
		Logger:   zap.NewNop(),
	}, Config{Secret: testSecret, TTL: time.Hour, Now: func() time.Time { return s.now }})

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := uc.SignIn(ctx, "tok", "d1")
	s.ErrorIs(err, ErrUpstream)
	s.NotErrorIs(err, ErrInvalidToken)

	u, err := s.users.FindBySubjectID(s.ctx, "g1")
	s.Require().NoError(err)
	s.Nil(u)
	s.Equal(0, s.outbox.Pending())
}

func (s *UsecaseSuite) TestSignIn_FirstThenRepeatLogin() {
	s.expectIdentity("google-token", alice())

	res, err := s.uc.SignIn(s.ctx, "google-token", "d1")
	s.Require().NoError(err)
	s.Equal(int64(86400), res.ExpiresIn)
	s.Equal("a@b.com", res.User.Email)
	s.Require().NotNil(res.User.Name)
	s.Equal("Alice", *res.User.Name)

	claims, err := token.NewEngine(token.SubjectUserID, 0).Verify(res.AccessToken, testSecret, s.now)
	s.Require().NoError(err)
	s.Equal("g1", claims.Subject)
	s.Equal(s.now.Unix(), claims.IssuedAt)
	s.Equal(s.now.Unix()+86400, claims.ExpiresAt)

	sess, err := s.sessions.FindByUserID(s.ctx, res.User.ID)
	s.Require().NoError(err)
	s.Require().NotNil(sess)
	s.Equal(token.HashToken(res.AccessToken), sess.TokenHash)
	s.NotEqual(res.AccessToken, sess.TokenHash)
	s.Equal("d1", sess.DeviceInfo)
	s.Equal(s.now.Add(24*time.Hour), sess.ExpiresAt)
	s.False(sess.Revoked)

	s.now = s.now.Add(time.Hour)
	s.expectIdentity("google-token-2", alice())
	again, err := s.uc.SignIn(s.ctx, "google-token-2", "d2")
	s.Require().NoError(err)
	s.Equal(res.User.ID, again.User.ID)
	s.NotEqual(res.AccessToken, again.AccessToken)

	u, err := s.users.GetByID(s.ctx, res.User.ID)
	s.Require().NoError(err)
	s.Equal(s.now, u.LastLogin)
	s.Equal("d2", u.DeviceID)

	sess2, err := s.sessions.FindByUserID(s.ctx, res.User.ID)
	s.Require().NoError(err)
	s.Equal(sess.ID, sess2.ID)
	s.Equal(token.HashToken(again.AccessToken), sess2.TokenHash)
	s.Equal("d2", sess2.DeviceInfo)

	_, err = s.uc.Authenticate(s.ctx, res.AccessToken)
	s.ErrorIs(err, ErrSessionNotFound)
	_, err = s.uc.Authenticate(s.ctx, again.AccessToken)
	s.NoError(err)

	s.Equal(2, s.outbox.Pending())
}

func (s *UsecaseSuite) TestSignIn_NoDisplayName() {
	s.expectIdentity("tok", &identity.Identity{SubjectID: "g2", Email: "b@b.com"})

	res, err := s.uc.SignIn(s.ctx, "tok", "d1")
	s.Require().NoError(err)
	s.Nil(res.User.Name)
}

func (s *UsecaseSuite) TestSignIn_RelogAfterRevokeReactivates() {
	s.expectIdentity("t1", alice())
	first, err := s.uc.SignIn(s.ctx, "t1", "d1")
	s.Require().NoError(err)

	ok, err := s.uc.RevokeUser(s.ctx, first.User.ID)
	s.Require().NoError(err)
	s.True(ok)

	s.now = s.now.Add(time.Second)
	s.expectIdentity("t2", alice())
	second, err := s.uc.SignIn(s.ctx, "t2", "d1")
	s.Require().NoError(err)

	sess, err := s.uc.Authenticate(s.ctx, second.AccessToken)
	s.Require().NoError(err)
	s.False(sess.Revoked)
}

type racingUsers struct {
	user.Repo
	misses atomic.Int32
}

func (r *racingUsers) FindBySubjectID(ctx context.Context, subjectID string) (*user.User, error) {
	if r.misses.Add(1) == 1 {
		return nil, nil
	}
	return r.Repo.FindBySubjectID(ctx, subjectID)
}

func (s *UsecaseSuite) TestSignIn_CreateRaceFallsBackToExisting() {
	pre := &user.User{SubjectID: "g1", DeviceID: "d0", Email: "a@b.com", LastLogin: s.now.Add(-time.Hour)}
	s.Require().NoError(s.users.Create(s.ctx, pre))

	uc := s.newUsecase(&racingUsers{Repo: s.users})
	s.expectIdentity("tok", alice())

	res, err := uc.SignIn(s.ctx, "tok", "d1")
	s.Require().NoError(err)
	s.Equal(pre.ID, res.User.ID)
	s.Equal("d1", res.User.DeviceID)
}

func (s *UsecaseSuite) TestSignIn_EmailOwnedByAnotherSubject() {
	s.expectIdentity("tok", alice())
	first, err := s.uc.SignIn(s.ctx, "tok", "d1")
	s.Require().NoError(err)

	s.expectIdentity("other", &identity.Identity{SubjectID: "g2", Email: "a@b.com"})
	_, err = s.uc.SignIn(s.ctx, "other", "d2")
	s.ErrorIs(err, ErrEmailTaken)
	s.NotErrorIs(err, ErrInvalidToken)

	u, err := s.users.FindBySubjectID(s.ctx, "g2")
	s.Require().NoError(err)
	s.Nil(u)

	owner, err := s.users.GetByID(s.ctx, first.User.ID)
	s.Require().NoError(err)
	s.Equal("d1", owner.DeviceID)
	s.Equal(1, s.outbox.Pending(), "only the first login is recorded")
}

func (s *UsecaseSuite) TestLogout_RevokesOnce() {
	s.expectIdentity("tok", alice())
	res, err := s.uc.SignIn(s.ctx, "tok", "d1")
	s.Require().NoError(err)

	ok, err := s.uc.Logout(s.ctx, res.AccessToken)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.uc.Logout(s.ctx, res.AccessToken)
	s.Require().NoError(err)
	s.False(ok)

	ok, err = s.uc.Logout(s.ctx, "never-issued")
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.uc.Logout(s.ctx, "")
	s.ErrorIs(err, ErrMissingCredentials)

	_, err = s.uc.Authenticate(s.ctx, res.AccessToken)
	s.ErrorIs(err, ErrSessionRevoked)

	s.Equal(2, s.outbox.Pending())
}

func (s *UsecaseSuite) TestAuthenticate_TokenFailures() {
	s.expectIdentity("tok", alice())
	res, err := s.uc.SignIn(s.ctx, "tok", "d1")
	s.Require().NoError(err)

	_, err = s.uc.Authenticate(s.ctx, "")
	s.ErrorIs(err, ErrInvalidToken)
	s.ErrorIs(err, token.ErrEmptyToken)

	_, err = s.uc.Authenticate(s.ctx, res.AccessToken+"x")
	s.ErrorIs(err, ErrInvalidToken)
	s.ErrorIs(err, token.ErrInvalidSignature)

	s.now = s.now.Add(24 * time.Hour)
	_, err = s.uc.Authenticate(s.ctx, res.AccessToken)
	s.ErrorIs(err, ErrInvalidToken)
	s.ErrorIs(err, token.ErrExpired)
}

func (s *UsecaseSuite) TestAuthenticate_SessionExpiredBeforeToken() {
	s.expectIdentity("tok", alice())
	res, err := s.uc.SignIn(s.ctx, "tok", "d1")
	s.Require().NoError(err)

	_, err = s.sessions.Upsert(s.ctx, res.User.ID, "d1", token.HashToken(res.AccessToken), s.now.Add(time.Minute), s.now)
	s.Require().NoError(err)

	s.now = s.now.Add(time.Minute)
	_, err = s.uc.Authenticate(s.ctx, res.AccessToken)
	s.ErrorIs(err, ErrSessionExpired)
}

func (s *UsecaseSuite) TestMeAndRevokeUser() {
	s.expectIdentity("tok", alice())
	res, err := s.uc.SignIn(s.ctx, "tok", "d1")
	s.Require().NoError(err)

	u, err := s.uc.Me(s.ctx, res.User.ID)
	s.Require().NoError(err)
	s.Equal("a@b.com", u.Email)

	_, err = s.uc.Me(s.ctx, 999)
	s.ErrorIs(err, ErrUserNotFound)

	for i := 0; i < 2; i++ {
		ok, err := s.uc.RevokeUser(s.ctx, res.User.ID)
		s.Require().NoError(err)
		s.True(ok)
	}
	s.Equal(2, s.outbox.Pending(), "one login and one logout event")

	ok, err := s.uc.RevokeUser(s.ctx, 999)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *UsecaseSuite) TestValidateToken_Stateless() {
	tok, err := token.NewEngine(token.SubjectUserID, 0).Issue(token.Claims{Subject: "u1"}, testSecret, time.Minute, s.now)
	s.Require().NoError(err)

	c, err := s.uc.ValidateToken(tok)
	s.Require().NoError(err)
	s.Equal("u1", c.Subject)

	_, err = s.uc.ValidateToken("a.b")
	s.ErrorIs(err, token.ErrMalformedToken)
}

func TestNewUseCase_ConfiguredSubjectClaim(t *testing.T) {
	ctrl := gomock.NewController(t)
	v := mocks.NewMockVerifier(ctrl)
	v.EXPECT().Verify(gomock.Any(), "tok").Return(alice(), nil)

	st := memory.NewStore()
	now := time.Unix(1000, 0)
	uc := NewUseCase(Deps{
		Users:    memory.NewUserRepo(st),
		Sessions: memory.NewSessionRepo(st),
		Tx:       memory.NewTransactor(st),
		Verifier: v,
	}, Config{Secret: testSecret, TTL: time.Minute, SubjectClaim: token.SubjectDeviceID, Now: func() time.Time { return now }})

	res, err := uc.SignIn(context.Background(), "tok", "d1")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	c, err := token.NewEngine(token.SubjectDeviceID, 0).Verify(res.AccessToken, testSecret, now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if c.Subject != "g1" {
		t.Fatalf("subject = %q", c.Subject)
	}
}
