package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vantage-pos/vantage-pos/internal/auth"
	"github.com/vantage-pos/vantage-pos/internal/shared"
	_ "github.com/vantage-pos/vantage-pos/testing"
)

type stubSessionStore struct {
	registered []string
	deleted    bool
	listErr    error
}

func (s *stubSessionStore) CreateSession(ctx context.Context, rec auth.SessionRecord) error {
	s.registered = append(s.registered, rec.ID)
	return nil
}

func (s *stubSessionStore) DeleteSession(ctx context.Context, id string) error { return nil }

func (s *stubSessionStore) ActiveSessionIDs(ctx context.Context, userID int64) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]string(nil), s.registered...), nil
}

func (s *stubSessionStore) DeleteSessionsForUser(ctx context.Context, userID int64) (int64, error) {
	s.deleted = true
	count := int64(len(s.registered))
	s.registered = nil
	return count, nil
}

func (s *stubSessionStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	return 0, nil
}

type stubTokenStore struct {
	revokedFor []int64
}

func (s *stubTokenStore) Issue(ctx context.Context, userID int64, ttl time.Duration) (string, auth.Token, error) {
	return "", auth.Token{}, nil
}

func (s *stubTokenStore) Verify(ctx context.Context, plaintext string) (int64, error) {
	return 0, nil
}

func (s *stubTokenStore) RevokeForUser(ctx context.Context, userID int64) (int64, error) {
	s.revokedFor = append(s.revokedFor, userID)
	return 1, nil
}

func (s *stubTokenStore) DeleteExpired(ctx context.Context) (int64, error) { return 0, nil }

// newLiveSession creates and commits a session for the user, returning its ID.
func newLiveSession(t *testing.T, sm *shared.SessionManager, userID string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	sess.SetUser(userID)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rec, req, sess))
	return sess.ID
}

func TestInvalidateSweepsSessionsAndTokens(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sm := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)

	first := newLiveSession(t, sm, "42")
	second := newLiveSession(t, sm, "42")
	other := newLiveSession(t, sm, "7")

	store := &stubSessionStore{registered: []string{first, second}}
	tokens := &stubTokenStore{}
	guard := auth.NewGuard(sm, store, tokens, nil)

	require.NoError(t, guard.Invalidate(context.Background(), 42))

	// Both payloads and the per-user index are gone.
	require.False(t, mr.Exists("session:"+first))
	require.False(t, mr.Exists("session:"+second))
	require.False(t, mr.Exists("user_sessions:42"))

	// The other user's session survives.
	require.True(t, mr.Exists("session:"+other))

	require.True(t, store.deleted)
	require.Equal(t, []int64{42}, tokens.revokedFor)
}

func TestInvalidateUnionsRegisterAndIndex(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sm := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)

	// One session lives only in Redis, one only in the PostgreSQL register.
	indexed := newLiveSession(t, sm, "42")
	store := &stubSessionStore{registered: []string{"orphaned-session-id"}}
	guard := auth.NewGuard(sm, store, &stubTokenStore{}, nil)

	require.NoError(t, guard.Invalidate(context.Background(), 42))

	require.False(t, mr.Exists("session:"+indexed))
	require.True(t, store.deleted)
}

func TestInvalidateKeepsGoingPastListFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sm := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)

	indexed := newLiveSession(t, sm, "42")
	store := &stubSessionStore{listErr: errors.New("pg down")}
	tokens := &stubTokenStore{}
	guard := auth.NewGuard(sm, store, tokens, nil)

	err := guard.Invalidate(context.Background(), 42)
	require.Error(t, err)

	// The Redis side was still swept and tokens still revoked.
	require.False(t, mr.Exists("session:"+indexed))
	require.Equal(t, []int64{42}, tokens.revokedFor)
}
