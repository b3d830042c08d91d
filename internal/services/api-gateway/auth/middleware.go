package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/NordCoder/Tokengate/internal/domain/session"
)

type ctxKey int

const sessionKey ctxKey = 1

func SessionFromCtx(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok && s != nil
}

func UserIDFromCtx(ctx context.Context) (int64, bool) {
	s, ok := SessionFromCtx(ctx)
	if !ok {
		return 0, false
	}
	return s.UserID, true
}

func withSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// bearerToken extracts the credential from an Authorization header value.
// A value without the Bearer scheme is taken as the token itself.
func bearerToken(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "bearer") {
		return ""
	}
	if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return v
}

// RequireSession admits requests whose bearer token maps to a live session.
func (s *Server) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r.Header.Get("Authorization"))
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		sess, err := s.uc.Authenticate(r.Context(), raw)
		if err != nil {
			status, msg := s.mapErr(r.Context(), err)
			writeError(w, status, msg)
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
	})
}
