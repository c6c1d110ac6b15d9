package auth

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/vantage-pos/vantage-pos/internal/identity"
	"github.com/vantage-pos/vantage-pos/internal/platform/httpx"
	"github.com/vantage-pos/vantage-pos/internal/shared"
)

// OTPVerifier checks the second factor during sign-in.
type OTPVerifier interface {
	VerifyLogin(ctx context.Context, userID int64, code string) error
}

// Handler serves the login, OTP and logout endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	sessions *shared.SessionManager
	tokens   TokenStore
	otp      OTPVerifier
	validate *validator.Validate
	tokenTTL time.Duration
}

func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, tokens TokenStore, otp OTPVerifier, tokenTTL time.Duration) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		sessions: sessions,
		tokens:   tokens,
		otp:      otp,
		validate: validator.New(),
		tokenTTL: tokenTTL,
	}
}

// MountRoutes registers authentication routes. Login and OTP verification
// are rate limited per IP to slow credential stuffing.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(20, time.Minute))
		r.Post("/login", h.login)
		r.Post("/otp", h.verifyOTP)
	})
	r.Post("/logout", h.logout)
	r.Post("/tokens", h.issueToken)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type otpRequest struct {
	Code string `json:"code" validate:"required"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
			return
		}
		h.logger.Error("login failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.RespondError(w, errors.New("session unavailable"))
		return
	}

	if user.TwoFactor() == identity.TwoFactorEnabled {
		// Credentials are good but the session stays anonymous until the
		// second factor clears. Only the pending marker is stored.
		sess.Set(PendingUserKey, strconv.FormatInt(user.ID, 10))
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "awaiting_otp"})
		return
	}

	h.completeLogin(w, r, sess, user)
}

func (h *Handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.Get(PendingUserKey) == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	userID, err := strconv.ParseInt(sess.Get(PendingUserKey), 10, 64)
	if err != nil {
		sess.Delete(PendingUserKey)
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	var req otpRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	if err := h.otp.VerifyLogin(r.Context(), userID, req.Code); err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid code")
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("otp login lookup failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	sess.Delete(PendingUserKey)
	h.completeLogin(w, r, sess, user)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("logout session cleanup failed", slog.Any("error", err))
		}
		h.sessions.Destroy(sess)
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	plaintext, token, err := h.tokens.Issue(r.Context(), user.ID, h.tokenTTL)
	if err != nil {
		h.logger.Error("token issue failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	// The plaintext token is returned once and never stored.
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"token":      plaintext,
		"id":         token.ID,
		"expires_at": token.ExpiresAt,
	})
}

func (h *Handler) completeLogin(w http.ResponseWriter, r *http.Request, sess *shared.Session, user *identity.User) {
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	expiresAt := time.Now().Add(h.sessions.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, clientIP(r), r.UserAgent()); err != nil {
		h.logger.Warn("session register failed", slog.Any("error", err))
	}
	h.service.RecordLogin(r.Context(), user.ID)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"user": map[string]any{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		},
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
