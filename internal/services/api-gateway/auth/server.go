package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/NordCoder/Tokengate/internal/domain/user"
	"github.com/NordCoder/Tokengate/internal/obs"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type Server struct {
	log     *zap.Logger
	uc      *Usecase
	limiter *RateLimiter
}

func NewServer(uc *Usecase, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{log: log, uc: uc}
}

// WithRateLimit throttles the unauthenticated endpoints per client address.
func (s *Server) WithRateLimit(l *RateLimiter) *Server {
	s.limiter = l
	return s
}

// Routes mounts the auth endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Post("/auth/google", s.signIn)
		r.HandleFunc("/auth/token/validate", s.validate)
	})
	r.Post("/auth/logout", s.logout)

	r.Group(func(r chi.Router) {
		r.Use(s.RequireSession)
		r.Get("/auth/me", s.me)
		r.Post("/auth/revoke", s.revoke)
	})
}

// BaseResponse is the envelope of every /auth response except token validation.
type BaseResponse struct {
	StatusCode int    `json:"status_code"`
	Data       any    `json:"data"`
	Error      string `json:"error"`
}

type userView struct {
	ID    int64   `json:"id"`
	Email string  `json:"email"`
	Name  *string `json:"name"`
}

type signInData struct {
	AccessToken string   `json:"accessToken"`
	ExpiredIn   int64    `json:"expiredIn"`
	User        userView `json:"user"`
}

type revokeData struct {
	Revoked bool `json:"revoked"`
}

type validateResponse struct {
	IsValid bool    `json:"isValid"`
	Token   *string `json:"token"`
	Error   string  `json:"error,omitempty"`
}

func toUserView(u *user.User) userView {
	return userView{ID: u.ID, Email: u.Email, Name: u.Name}
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AuthToken string `json:"authToken"`
		DeviceID  string `json:"deviceId"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.log.Warn("auth.google: bad body", zap.Error(err))
	}

	res, err := s.uc.SignIn(r.Context(), strings.TrimSpace(req.AuthToken), strings.TrimSpace(req.DeviceID))
	if err != nil {
		status, msg := s.mapErr(r.Context(), err)
		writeError(w, status, msg)
		return
	}
	writeOK(w, signInData{
		AccessToken: res.AccessToken,
		ExpiredIn:   res.ExpiresIn,
		User:        toUserView(res.User),
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	raw := bearerToken(r.Header.Get("Authorization"))
	revoked, err := s.uc.Logout(r.Context(), raw)
	if err != nil {
		status, msg := s.mapErr(r.Context(), err)
		writeError(w, status, msg)
		return
	}
	writeOK(w, revokeData{Revoked: revoked})
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, validateResponse{Error: "method not allowed"})
		return
	}
	var req struct {
		Token any `json:"token"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, validateResponse{Error: "bad request"})
		return
	}
	raw, _ := req.Token.(string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, validateResponse{Error: "missing token"})
		return
	}

	if _, err := s.uc.ValidateToken(raw); err != nil {
		obs.WithTrace(r.Context(), s.log).Info("token validation failed", zap.Stringer("kind", kindOf(err)))
		writeJSON(w, http.StatusBadRequest, validateResponse{Token: &raw, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{IsValid: true, Token: &raw})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	uid, _ := UserIDFromCtx(r.Context())
	u, err := s.uc.Me(r.Context(), uid)
	if err != nil {
		status, msg := s.mapErr(r.Context(), err)
		writeError(w, status, msg)
		return
	}
	writeOK(w, toUserView(u))
}

func (s *Server) revoke(w http.ResponseWriter, r *http.Request) {
	uid, _ := UserIDFromCtx(r.Context())
	revoked, err := s.uc.RevokeUser(r.Context(), uid)
	if err != nil {
		status, msg := s.mapErr(r.Context(), err)
		writeError(w, status, msg)
		return
	}
	writeOK(w, revokeData{Revoked: revoked})
}

func (s *Server) mapErr(ctx context.Context, err error) (int, string) {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return http.StatusBadRequest, "Missing credentials"
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway, "Upstream error"
	case errors.Is(err, ErrInvalidToken):
		obs.WithTrace(ctx, s.log).Info("token rejected", zap.Stringer("kind", kindOf(err)))
		return http.StatusUnauthorized, "Invalid token"
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionRevoked), errors.Is(err, ErrSessionExpired):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, ErrEmailTaken):
		return http.StatusConflict, "Email already registered"
	default:
		obs.WithTrace(ctx, s.log).Error("auth internal error", zap.Error(err))
		return http.StatusInternalServerError, "Internal error"
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, BaseResponse{StatusCode: http.StatusOK, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, BaseResponse{StatusCode: status, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
