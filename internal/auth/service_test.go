package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vantage-pos/vantage-pos/internal/audit"
	"github.com/vantage-pos/vantage-pos/internal/auth"
	"github.com/vantage-pos/vantage-pos/internal/identity"
	"github.com/vantage-pos/vantage-pos/internal/shared"
)

type stubUsers struct {
	user *identity.User
}

func (s *stubUsers) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubUsers) GetUser(ctx context.Context, id int64) (*identity.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

type captureRecorder struct {
	entries []audit.Entry
}

func (c *captureRecorder) Record(ctx context.Context, entry audit.Entry) error {
	c.entries = append(c.entries, entry)
	return nil
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthenticateSuccess(t *testing.T) {
	users := &stubUsers{user: &identity.User{
		ID:           1,
		Email:        "cashier@example.com",
		PasswordHash: hashPassword(t, "correct horse"),
		IsActive:     true,
	}}
	recorder := &captureRecorder{}
	svc := auth.NewService(users, &stubSessionStore{}, recorder, nil)

	user, err := svc.Authenticate(context.Background(), "cashier@example.com", "correct horse")
	require.NoError(t, err)
	require.Equal(t, int64(1), user.ID)
	require.Empty(t, recorder.entries)
}

func TestAuthenticateFailuresLookAlike(t *testing.T) {
	users := &stubUsers{user: &identity.User{
		ID:           1,
		Email:        "cashier@example.com",
		PasswordHash: hashPassword(t, "correct horse"),
		IsActive:     true,
	}}
	recorder := &captureRecorder{}
	svc := auth.NewService(users, &stubSessionStore{}, recorder, nil)

	// Unknown account and wrong password produce the identical error.
	_, err := svc.Authenticate(context.Background(), "nobody@example.com", "whatever")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "cashier@example.com", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	require.Len(t, recorder.entries, 2)
	for _, entry := range recorder.entries {
		require.Equal(t, "auth.login", entry.Action)
		require.Equal(t, audit.OutcomeDenied, entry.Outcome)
	}
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	users := &stubUsers{user: &identity.User{
		ID:           1,
		Email:        "cashier@example.com",
		PasswordHash: hashPassword(t, "correct horse"),
		IsActive:     false,
	}}
	svc := auth.NewService(users, &stubSessionStore{}, &captureRecorder{}, nil)

	_, err := svc.Authenticate(context.Background(), "cashier@example.com", "correct horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestRecordLoginWritesSuccessEntry(t *testing.T) {
	recorder := &captureRecorder{}
	svc := auth.NewService(&stubUsers{}, &stubSessionStore{}, recorder, nil)

	svc.RecordLogin(context.Background(), 42)

	require.Len(t, recorder.entries, 1)
	require.Equal(t, audit.OutcomeSuccess, recorder.entries[0].Outcome)
	require.Equal(t, int64(42), recorder.entries[0].ActorID)
}
