package twofactor

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/vantage-pos/vantage-pos/internal/audit"
	"github.com/vantage-pos/vantage-pos/internal/identity"
)

type stubUserStore struct {
	users map[int64]*identity.User
}

func (s *stubUserStore) GetUser(ctx context.Context, id int64) (*identity.User, error) {
	user := *s.users[id]
	return &user, nil
}

func (s *stubUserStore) SaveOTPSecret(ctx context.Context, userID int64, secret string) error {
	s.users[userID].OTPSecret = secret
	return nil
}

func (s *stubUserStore) SetTwoFactorEnabled(ctx context.Context, userID int64, enabled bool) error {
	s.users[userID].TwoFactorEnabled = enabled
	if !enabled {
		s.users[userID].OTPSecret = ""
	}
	return nil
}

type memoryCodeStore struct {
	hashes map[int64]map[string]struct{}
}

func newMemoryCodeStore() *memoryCodeStore {
	return &memoryCodeStore{hashes: map[int64]map[string]struct{}{}}
}

func (s *memoryCodeStore) ReplaceCodes(ctx context.Context, userID int64, hashes []string) error {
	set := map[string]struct{}{}
	for _, hash := range hashes {
		set[hash] = struct{}{}
	}
	s.hashes[userID] = set
	return nil
}

func (s *memoryCodeStore) ConsumeCode(ctx context.Context, userID int64, hash string) (bool, error) {
	if _, ok := s.hashes[userID][hash]; !ok {
		return false, nil
	}
	delete(s.hashes[userID], hash)
	return true, nil
}

func (s *memoryCodeStore) CountCodes(ctx context.Context, userID int64) (int, error) {
	return len(s.hashes[userID]), nil
}

func (s *memoryCodeStore) DeleteCodes(ctx context.Context, userID int64) error {
	delete(s.hashes, userID)
	return nil
}

type entrySink struct {
	entries []audit.Entry
}

func (s *entrySink) Record(ctx context.Context, e audit.Entry) error {
	s.entries = append(s.entries, e)
	return nil
}

func newTestSetup() (*Service, *stubUserStore, *memoryCodeStore, *entrySink) {
	users := &stubUserStore{users: map[int64]*identity.User{
		1: {ID: 1, Email: "cashier@example.com", IsActive: true},
	}}
	codes := newMemoryCodeStore()
	sink := &entrySink{}
	svc := NewService(users, codes, sink, "Vantage POS", slog.Default())
	return svc, users, codes, sink
}

func validCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

func TestEnrollMovesToPending(t *testing.T) {
	svc, users, _, _ := newTestSetup()

	enrollment, err := svc.Enroll(context.Background(), 1)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.URL, "otpauth://totp/")
	require.Contains(t, enrollment.URL, "cashier@example.com")

	require.Equal(t, identity.TwoFactorPending, users.users[1].TwoFactor())
}

func TestEnrollReissuesSameSecret(t *testing.T) {
	svc, _, _, _ := newTestSetup()

	first, err := svc.Enroll(context.Background(), 1)
	require.NoError(t, err)
	second, err := svc.Enroll(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, first.Secret, second.Secret)
}

func TestConfirmEnablesAndMintsBackupCodes(t *testing.T) {
	svc, users, codes, _ := newTestSetup()

	enrollment, err := svc.Enroll(context.Background(), 1)
	require.NoError(t, err)

	plain, err := svc.Confirm(context.Background(), 1, validCode(t, enrollment.Secret))
	require.NoError(t, err)
	require.Len(t, plain, backupCodeCount)

	require.Equal(t, identity.TwoFactorEnabled, users.users[1].TwoFactor())
	count, err := codes.CountCodes(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, backupCodeCount, count)
}

func TestConfirmRejectsBadCode(t *testing.T) {
	svc, users, _, sink := newTestSetup()

	_, err := svc.Enroll(context.Background(), 1)
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), 1, "000000")
	require.ErrorIs(t, err, ErrInvalidCode)
	require.Equal(t, identity.TwoFactorPending, users.users[1].TwoFactor())

	last := sink.entries[len(sink.entries)-1]
	require.Equal(t, "twofactor.confirm", last.Action)
	require.Equal(t, audit.OutcomeDenied, last.Outcome)
}

func TestConfirmRequiresPendingState(t *testing.T) {
	svc, _, _, _ := newTestSetup()

	_, err := svc.Confirm(context.Background(), 1, "123456")
	require.ErrorIs(t, err, ErrNotEnabled)
}

func enableUser(t *testing.T, svc *Service) (secret string, backup []string) {
	t.Helper()
	enrollment, err := svc.Enroll(context.Background(), 1)
	require.NoError(t, err)
	backup, err = svc.Confirm(context.Background(), 1, validCode(t, enrollment.Secret))
	require.NoError(t, err)
	return enrollment.Secret, backup
}

func TestVerifyLoginWithAuthenticatorCode(t *testing.T) {
	svc, _, _, _ := newTestSetup()
	secret, _ := enableUser(t, svc)

	require.NoError(t, svc.VerifyLogin(context.Background(), 1, validCode(t, secret)))
	require.ErrorIs(t, svc.VerifyLogin(context.Background(), 1, "000000"), ErrInvalidCode)
}

func TestVerifyLoginConsumesBackupCode(t *testing.T) {
	svc, _, codes, _ := newTestSetup()
	_, backup := enableUser(t, svc)

	require.NoError(t, svc.VerifyLogin(context.Background(), 1, backup[0]))

	count, err := codes.CountCodes(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, backupCodeCount-1, count)

	// A spent code does not work twice.
	require.ErrorIs(t, svc.VerifyLogin(context.Background(), 1, backup[0]), ErrInvalidCode)
}

func TestRegenerateReplacesCodes(t *testing.T) {
	svc, _, _, _ := newTestSetup()
	_, backup := enableUser(t, svc)

	fresh, err := svc.RegenerateCodes(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, fresh, backupCodeCount)

	// Old codes are gone.
	require.ErrorIs(t, svc.VerifyLogin(context.Background(), 1, backup[0]), ErrInvalidCode)
	require.NoError(t, svc.VerifyLogin(context.Background(), 1, fresh[0]))
}

func TestDisableClearsEverything(t *testing.T) {
	svc, users, codes, _ := newTestSetup()
	enableUser(t, svc)

	require.NoError(t, svc.Disable(context.Background(), 1))
	require.Equal(t, identity.TwoFactorDisabled, users.users[1].TwoFactor())

	count, err := codes.CountCodes(context.Background(), 1)
	require.NoError(t, err)
	require.Zero(t, count)

	require.ErrorIs(t, svc.VerifyLogin(context.Background(), 1, "123456"), ErrNotEnabled)
}
