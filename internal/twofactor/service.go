package twofactor

import (
	"context"
	"encoding/base32"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pquerna/otp/totp"

	"github.com/vantage-pos/vantage-pos/internal/audit"
	"github.com/vantage-pos/vantage-pos/internal/identity"
)

var (
	// ErrNotEnabled is returned when an operation requires an active enrollment.
	ErrNotEnabled = errors.New("twofactor: not enabled")
	// ErrAlreadyEnabled is returned when enrollment is attempted twice.
	ErrAlreadyEnabled = errors.New("twofactor: already enabled")
	// ErrInvalidCode covers both a wrong authenticator code and a spent backup code.
	ErrInvalidCode = errors.New("twofactor: invalid code")
)

// Enrollment is the provisioning payload handed back when enrollment starts.
type Enrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// UserStore is the slice of the identity repository the service needs.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (*identity.User, error)
	SaveOTPSecret(ctx context.Context, userID int64, secret string) error
	SetTwoFactorEnabled(ctx context.Context, userID int64, enabled bool) error
}

// Recorder receives an audit entry for every verification outcome.
type Recorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Service drives TOTP enrollment, verification and backup codes.
type Service struct {
	users    UserStore
	codes    CodeStore
	recorder Recorder
	issuer   string
	logger   *slog.Logger
}

func NewService(users UserStore, codes CodeStore, recorder Recorder, issuer string, logger *slog.Logger) *Service {
	return &Service{users: users, codes: codes, recorder: recorder, issuer: issuer, logger: logger}
}

// Enroll generates (or re-issues) the user's TOTP secret and returns the
// provisioning URI. Calling it again before confirmation re-uses the stored
// secret so an interrupted enrollment can resume with the same QR code.
func (s *Service) Enroll(ctx context.Context, userID int64) (*Enrollment, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactor() == identity.TwoFactorEnabled {
		return nil, ErrAlreadyEnabled
	}

	opts := totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: user.Email,
	}
	if user.OTPSecret != "" {
		raw, decErr := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(user.OTPSecret)
		if decErr == nil {
			opts.Secret = raw
		}
	}
	key, err := totp.Generate(opts)
	if err != nil {
		return nil, err
	}
	if err := s.users.SaveOTPSecret(ctx, userID, key.Secret()); err != nil {
		return nil, err
	}
	return &Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// Confirm validates the first authenticator code, flips the account to
// enabled and mints the backup code set. The plaintext codes are returned
// exactly once.
func (s *Service) Confirm(ctx context.Context, userID int64, code string) ([]string, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactor() != identity.TwoFactorPending {
		return nil, ErrNotEnabled
	}
	if !totp.Validate(strings.TrimSpace(code), user.OTPSecret) {
		s.audit(ctx, userID, "twofactor.confirm", audit.OutcomeDenied, "invalid code")
		return nil, ErrInvalidCode
	}
	if err := s.users.SetTwoFactorEnabled(ctx, userID, true); err != nil {
		return nil, err
	}
	plain, hashes, err := generateCodes()
	if err != nil {
		return nil, err
	}
	if err := s.codes.ReplaceCodes(ctx, userID, hashes); err != nil {
		return nil, err
	}
	s.audit(ctx, userID, "twofactor.confirm", audit.OutcomeSuccess, "")
	return plain, nil
}

// Disable turns two-factor off, clearing the secret and backup codes.
func (s *Service) Disable(ctx context.Context, userID int64) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.TwoFactor() == identity.TwoFactorDisabled {
		return ErrNotEnabled
	}
	if err := s.users.SetTwoFactorEnabled(ctx, userID, false); err != nil {
		return err
	}
	if err := s.codes.DeleteCodes(ctx, userID); err != nil {
		return err
	}
	s.audit(ctx, userID, "twofactor.disable", audit.OutcomeSuccess, "")
	return nil
}

// RegenerateCodes replaces the backup code set. Only valid once enabled.
func (s *Service) RegenerateCodes(ctx context.Context, userID int64) ([]string, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactor() != identity.TwoFactorEnabled {
		return nil, ErrNotEnabled
	}
	plain, hashes, err := generateCodes()
	if err != nil {
		return nil, err
	}
	if err := s.codes.ReplaceCodes(ctx, userID, hashes); err != nil {
		return nil, err
	}
	s.audit(ctx, userID, "twofactor.regenerate_codes", audit.OutcomeSuccess, "")
	return plain, nil
}

// RemainingCodes reports the unused backup code count.
func (s *Service) RemainingCodes(ctx context.Context, userID int64) (int, error) {
	return s.codes.CountCodes(ctx, userID)
}

// VerifyLogin checks the second factor during sign-in. It accepts either a
// current authenticator code or an unused backup code; a matching backup
// code is consumed.
func (s *Service) VerifyLogin(ctx context.Context, userID int64, code string) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.TwoFactor() != identity.TwoFactorEnabled {
		return ErrNotEnabled
	}
	code = strings.TrimSpace(code)
	if totp.Validate(code, user.OTPSecret) {
		s.audit(ctx, userID, "twofactor.verify", audit.OutcomeSuccess, "")
		return nil
	}
	used, err := s.codes.ConsumeCode(ctx, userID, hashCode(strings.ToUpper(code)))
	if err != nil {
		return err
	}
	if used {
		s.audit(ctx, userID, "twofactor.verify", audit.OutcomeSuccess, "backup code")
		return nil
	}
	s.audit(ctx, userID, "twofactor.verify", audit.OutcomeDenied, "invalid code")
	return ErrInvalidCode
}

func (s *Service) audit(ctx context.Context, userID int64, action string, outcome audit.Outcome, detail string) {
	entry := audit.Entry{
		ActorID:  userID,
		Action:   action,
		Resource: "user",
		Outcome:  outcome,
	}
	if detail != "" {
		entry.Meta = map[string]any{"detail": detail}
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed",
			slog.String("action", action),
			slog.String("user", strconv.FormatInt(userID, 10)),
			slog.String("error", err.Error()))
	}
}
