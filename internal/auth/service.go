package auth

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vantage-pos/vantage-pos/internal/audit"
	"github.com/vantage-pos/vantage-pos/internal/identity"
	"github.com/vantage-pos/vantage-pos/internal/shared"
)

// UserFinder resolves accounts during login.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*identity.User, error)
	GetUser(ctx context.Context, id int64) (*identity.User, error)
}

// Recorder receives authentication audit entries.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service wraps authentication business rules.
type Service struct {
	users    UserFinder
	sessions SessionStore
	recorder Recorder
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(users UserFinder, sessions SessionStore, recorder Recorder, logger *slog.Logger) *Service {
	return &Service{users: users, sessions: sessions, recorder: recorder, logger: logger}
}

// Authenticate validates email/password credentials. Every failure maps to
// the same error so the response never reveals whether the account exists.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*identity.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		s.audit(ctx, 0, "auth.login", audit.OutcomeDenied, email)
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		s.audit(ctx, user.ID, "auth.login", audit.OutcomeDenied, email)
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.audit(ctx, user.ID, "auth.login", audit.OutcomeDenied, email)
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// GetUser loads an account by ID, used to resolve pending two-factor logins
// and the current principal.
func (s *Service) GetUser(ctx context.Context, id int64) (*identity.User, error) {
	return s.users.GetUser(ctx, id)
}

// RegisterSession persists session metadata in the PostgreSQL register.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.sessions.CreateSession(ctx, SessionRecord{
		ID:        id,
		UserID:    userID,
		ExpiresAt: expiresAt,
		IP:        ip,
		UserAgent: ua,
	})
}

// RemoveSession deletes a session record on logout.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.sessions.DeleteSession(ctx, id)
}

// RecordLogin writes the success entry once the full login state machine
// (password, plus OTP when enabled) has completed.
func (s *Service) RecordLogin(ctx context.Context, userID int64) {
	s.audit(ctx, userID, "auth.login", audit.OutcomeSuccess, "")
}

func (s *Service) audit(ctx context.Context, userID int64, action string, outcome audit.Outcome, email string) {
	if s.recorder == nil {
		return
	}
	entry := audit.Entry{
		ActorID:  userID,
		Action:   action,
		Resource: "session",
		Outcome:  outcome,
	}
	if userID != 0 {
		entry.ResourceID = strconv.FormatInt(userID, 10)
	}
	if email != "" && outcome != audit.OutcomeSuccess {
		entry.Meta = map[string]any{"email": email}
	}
	if err := s.recorder.Record(ctx, entry); err != nil && s.logger != nil {
		s.logger.Warn("record auth event", slog.Any("error", err))
	}
}
