package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/vantage-pos/vantage-pos/internal/identity"
	"github.com/vantage-pos/vantage-pos/internal/shared"
)

// Middleware resolves the current user for each request, from the session
// cookie or from an Authorization bearer token. Resolution is best-effort;
// permission middleware downstream rejects anonymous requests.
type Middleware struct {
	Logger  *slog.Logger
	Service *Service
	Tokens  TokenStore
}

// WithUser attaches the authenticated user to the request context.
func (m Middleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if user := m.fromSession(r); user != nil {
			next.ServeHTTP(w, r.WithContext(identity.ContextWithUser(ctx, user)))
			return
		}
		if user := m.fromBearer(r); user != nil {
			next.ServeHTTP(w, r.WithContext(identity.ContextWithUser(ctx, user)))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m Middleware) fromSession(r *http.Request) *identity.User {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		return nil
	}
	userID, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		return nil
	}
	user, err := m.Service.GetUser(r.Context(), userID)
	if err != nil || !user.IsActive {
		return nil
	}
	return user
}

func (m Middleware) fromBearer(r *http.Request) *identity.User {
	header := r.Header.Get("Authorization")
	plaintext, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || plaintext == "" {
		return nil
	}
	userID, err := m.Tokens.Verify(r.Context(), plaintext)
	if err != nil {
		return nil
	}
	user, err := m.Service.GetUser(r.Context(), userID)
	if err != nil || !user.IsActive {
		m.Logger.Debug("bearer token user rejected", slog.Int64("user_id", userID))
		return nil
	}
	return user
}
