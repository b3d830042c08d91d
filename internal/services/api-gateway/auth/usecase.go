package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/NordCoder/Tokengate/internal/domain/identity"
	domainoutbox "github.com/NordCoder/Tokengate/internal/domain/outbox"
	"github.com/NordCoder/Tokengate/internal/domain/session"
	"github.com/NordCoder/Tokengate/internal/domain/user"
	"github.com/NordCoder/Tokengate/internal/obs"
	"github.com/NordCoder/Tokengate/internal/outbox"
	"github.com/NordCoder/Tokengate/internal/token"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUpstream           = errors.New("upstream error")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrSessionExpired     = errors.New("session expired")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
)

type Config struct {
	Secret       []byte
	TTL          time.Duration
	SubjectClaim string
	FutureLeeway time.Duration
	Now          func() time.Time
}

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Deps struct {
	Users    user.Repo
	Sessions session.Repo
	// Outbox may be nil, in which case no session events are recorded.
	Outbox   domainoutbox.Repository
	Tx       Transactor
	Verifier identity.Verifier
	Logger   *zap.Logger
}

type Usecase struct {
	users    user.Repo
	sessions session.Repo
	outbox   domainoutbox.Repository
	tx       Transactor
	verifier identity.Verifier
	engine   *token.Engine
	log      *zap.Logger
	cfg      Config
}

type SignInResult struct {
	AccessToken string
	ExpiresIn   int64
	User        *user.User
}

func NewUseCase(d Deps, cfg Config) *Usecase {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Usecase{
		users:    d.Users,
		sessions: d.Sessions,
		outbox:   d.Outbox,
		tx:       d.Tx,
		verifier: d.Verifier,
		engine:   token.NewEngine(cfg.SubjectClaim, cfg.FutureLeeway),
		log:      d.Logger,
		cfg:      cfg,
	}
}

var tracer = otel.Tracer("auth.usecase")

// SignIn exchanges an external ID token plus device id for a session token.
// Nothing is written unless the identity provider accepts the credential.
func (u *Usecase) SignIn(ctx context.Context, authToken, deviceID string) (res *SignInResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.SignIn")
	defer func() {
		obs.SignIns.WithLabelValues(signInOutcome(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "sign in failed")
		}
		span.End()
	}()
	log := obs.WithTrace(ctx, u.log)

	if authToken == "" || deviceID == "" {
		return nil, ErrMissingCredentials
	}

	id, err := u.verifier.Verify(ctx, authToken)
	if err != nil {
		if errors.Is(err, identity.ErrNetwork) {
			log.Error("identity provider unreachable", zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
		}
		log.Warn("identity credential rejected", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	now := u.cfg.Now().UTC()
	access, err := u.engine.Issue(token.Claims{Subject: id.SubjectID}, u.cfg.Secret, u.cfg.TTL, now)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	ttlSec := int64(u.cfg.TTL / time.Second)
	expiresAt := time.Unix(now.Unix()+ttlSec, 0).UTC()
	hash := token.HashToken(access)

	var usr *user.User
	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		usr, err = u.findOrCreateUser(ctx, id, deviceID, now)
		if err != nil {
			return err
		}
		if _, err := u.sessions.Upsert(ctx, usr.ID, deviceID, hash, expiresAt, now); err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
		return u.record(ctx, session.Event{Type: session.EventLogin, UserID: usr.ID, DeviceID: deviceID, At: now})
	})
	if errors.Is(err, ErrEmailTaken) {
		log.Warn("sign in email conflict", zap.String("subject", id.SubjectID))
		return nil, err
	}
	if err != nil {
		log.Error("sign in persist failed", zap.Error(err))
		return nil, err
	}

	span.SetAttributes(attribute.Int64("user.id", usr.ID))
	log.Info("sign in", zap.Int64("user_id", usr.ID), obs.TokenRef(hash))
	return &SignInResult{AccessToken: access, ExpiresIn: ttlSec, User: usr}, nil
}

func (u *Usecase) findOrCreateUser(ctx context.Context, id *identity.Identity, deviceID string, now time.Time) (*user.User, error) {
	existing, err := u.users.FindBySubjectID(ctx, id.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if existing == nil {
		nu := &user.User{
			SubjectID: id.SubjectID,
			DeviceID:  deviceID,
			Email:     id.Email,
			LastLogin: now,
		}
		if id.DisplayName != "" {
			name := id.DisplayName
			nu.Name = &name
		}
		err := u.users.Create(ctx, nu)
		if err == nil {
			return nu, nil
		}
		if !errors.Is(err, user.ErrConflict) {
			return nil, fmt.Errorf("create user: %w", err)
		}
		// lost a race with a concurrent first login of the same subject
		existing, err = u.users.FindBySubjectID(ctx, id.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("find user: %w", err)
		}
		if existing == nil {
			// the email belongs to a different subject
			return nil, fmt.Errorf("%w: %w", ErrEmailTaken, user.ErrConflict)
		}
	}

	if err := u.users.UpdateLastLogin(ctx, existing.ID, deviceID, now); err != nil {
		return nil, fmt.Errorf("touch user: %w", err)
	}
	existing.DeviceID = deviceID
	existing.LastLogin = now
	return existing, nil
}

// Logout revokes the session backing raw. It reports false when no active
// session matched.
func (u *Usecase) Logout(ctx context.Context, raw string) (bool, error) {
	ctx, span := tracer.Start(ctx, "auth.Logout")
	defer span.End()

	if raw == "" {
		return false, ErrMissingCredentials
	}
	hash := token.HashToken(raw)
	now := u.cfg.Now().UTC()

	var revoked bool
	err := u.tx.WithTx(ctx, func(ctx context.Context) error {
		s, err := u.sessions.FindByTokenHash(ctx, hash)
		if err != nil {
			return fmt.Errorf("find session: %w", err)
		}
		if s == nil {
			return nil
		}
		revoked, err = u.sessions.RevokeByTokenHash(ctx, hash)
		if err != nil {
			return fmt.Errorf("revoke session: %w", err)
		}
		if !revoked {
			return nil
		}
		return u.record(ctx, session.Event{Type: session.EventLogout, UserID: s.UserID, DeviceID: s.DeviceInfo, At: now})
	})
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	obs.Revocations.WithLabelValues("token", strconv.FormatBool(revoked)).Inc()
	obs.WithTrace(ctx, u.log).Info("logout", obs.TokenRef(hash), zap.Bool("revoked", revoked))
	return revoked, nil
}

// RevokeUser revokes whatever session the user has, active or not.
func (u *Usecase) RevokeUser(ctx context.Context, userID int64) (bool, error) {
	ctx, span := tracer.Start(ctx, "auth.RevokeUser")
	defer span.End()

	now := u.cfg.Now().UTC()
	var revoked bool
	err := u.tx.WithTx(ctx, func(ctx context.Context) error {
		s, err := u.sessions.FindByUserID(ctx, userID)
		if err != nil {
			return fmt.Errorf("find session: %w", err)
		}
		if s == nil {
			return nil
		}
		revoked, err = u.sessions.RevokeByUserID(ctx, userID)
		if err != nil {
			return fmt.Errorf("revoke session: %w", err)
		}
		// repeated revokes still report true but emit one logout event
		if !revoked || s.Revoked {
			return nil
		}
		return u.record(ctx, session.Event{Type: session.EventLogout, UserID: userID, DeviceID: s.DeviceInfo, At: now})
	})
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	obs.Revocations.WithLabelValues("user", strconv.FormatBool(revoked)).Inc()
	return revoked, nil
}

// ValidateToken checks signature and claims only; it does not consult the
// session store.
func (u *Usecase) ValidateToken(raw string) (token.Claims, error) {
	c, err := u.engine.Verify(raw, u.cfg.Secret, u.cfg.Now())
	if err != nil {
		obs.TokenRejects.WithLabelValues(token.KindOf(err).String()).Inc()
		return token.Claims{}, err
	}
	return c, nil
}

// Authenticate resolves raw to its live session. Token failures wrap both
// ErrInvalidToken and the underlying *token.Error.
func (u *Usecase) Authenticate(ctx context.Context, raw string) (*session.Session, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, token.ErrEmptyToken)
	}
	if _, err := u.ValidateToken(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	s, err := u.sessions.FindByTokenHash(ctx, token.HashToken(raw))
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	switch {
	case s == nil:
		return nil, ErrSessionNotFound
	case s.Revoked:
		return nil, ErrSessionRevoked
	case !u.cfg.Now().Before(s.ExpiresAt):
		return nil, ErrSessionExpired
	}
	return s, nil
}

func (u *Usecase) Me(ctx context.Context, userID int64) (*user.User, error) {
	usr, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if usr == nil {
		return nil, ErrUserNotFound
	}
	return usr, nil
}

func (u *Usecase) record(ctx context.Context, ev session.Event) error {
	if u.outbox == nil {
		return nil
	}
	kind, data, err := outbox.EncodeSessionEvent(ev)
	if err != nil {
		return err
	}
	if err := u.outbox.Enqueue(ctx, uuid.NewString(), kind, data); err != nil {
		return fmt.Errorf("enqueue %s: %w", ev.Type, err)
	}
	return nil
}

func signInOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMissingCredentials):
		return "missing_credentials"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	default:
		return "internal_error"
	}
}

func kindOf(err error) token.Kind { return token.KindOf(err) }
