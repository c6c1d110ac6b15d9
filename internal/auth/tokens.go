package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-pos/vantage-pos/internal/platform/httpx"
)

// TokenStore issues and verifies API access tokens.
type TokenStore interface {
	Issue(ctx context.Context, userID int64, ttl time.Duration) (string, Token, error)
	Verify(ctx context.Context, plaintext string) (int64, error)
	RevokeForUser(ctx context.Context, userID int64) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// PGTokenStore implements TokenStore using PostgreSQL.
type PGTokenStore struct {
	pool *pgxpool.Pool
}

// NewTokenStore constructs a PostgreSQL token store.
func NewTokenStore(pool *pgxpool.Pool) *PGTokenStore {
	return &PGTokenStore{pool: pool}
}

// Issue mints a token and returns the plaintext exactly once.
func (s *PGTokenStore) Issue(ctx context.Context, userID int64, ttl time.Duration) (string, Token, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", Token{}, fmt.Errorf("auth: generate token: %w", err)
	}
	plaintext := base64.RawURLEncoding.EncodeToString(raw)
	token := Token{
		ID:        uuid.NewString(),
		UserID:    userID,
		Hash:      hashToken(plaintext),
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_tokens (id, user_id, token_hash, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		token.ID, token.UserID, token.Hash, token.CreatedAt, token.ExpiresAt)
	if err != nil {
		return "", Token{}, err
	}
	return plaintext, token, nil
}

// Verify resolves a plaintext token to its owning user ID.
func (s *PGTokenStore) Verify(ctx context.Context, plaintext string) (int64, error) {
	var userID int64
	err := s.pool.QueryRow(ctx,
		`SELECT user_id FROM api_tokens WHERE token_hash = $1 AND expires_at > NOW()`,
		hashToken(plaintext)).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, httpx.ErrUnauthorized
		}
		return 0, err
	}
	return userID, nil
}

// RevokeForUser drops every token belonging to the user.
func (s *PGTokenStore) RevokeForUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM api_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired prunes expired tokens. Run from the worker.
func (s *PGTokenStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM api_tokens WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func hashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

var _ TokenStore = (*PGTokenStore)(nil)
