package twofactor

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const backupCodeCount = 10

// CodeStore persists hashed single-use backup codes.
type CodeStore interface {
	ReplaceCodes(ctx context.Context, userID int64, hashes []string) error
	ConsumeCode(ctx context.Context, userID int64, hash string) (bool, error)
	CountCodes(ctx context.Context, userID int64) (int, error)
	DeleteCodes(ctx context.Context, userID int64) error
}

// PGCodeStore implements CodeStore using PostgreSQL.
type PGCodeStore struct {
	pool *pgxpool.Pool
}

// NewCodeStore constructs a PostgreSQL code store.
func NewCodeStore(pool *pgxpool.Pool) *PGCodeStore {
	return &PGCodeStore{pool: pool}
}

// ReplaceCodes swaps the user's entire backup code set.
func (s *PGCodeStore) ReplaceCodes(ctx context.Context, userID int64, hashes []string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for _, hash := range hashes {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO backup_codes (user_id, code_hash, created_at) VALUES ($1, $2, NOW())`,
			userID, hash); err != nil {
			return err
		}
	}
	return nil
}

// ConsumeCode deletes the matching code row. The delete-on-match is what
// makes a backup code single-use: a second verification finds no row.
func (s *PGCodeStore) ConsumeCode(ctx context.Context, userID int64, hash string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM backup_codes WHERE user_id = $1 AND code_hash = $2`, userID, hash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountCodes reports how many unused codes remain.
func (s *PGCodeStore) CountCodes(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}

// DeleteCodes removes all codes, used when two-factor is disabled.
func (s *PGCodeStore) DeleteCodes(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID)
	return err
}

var _ CodeStore = (*PGCodeStore)(nil)

// generateCodes mints a fresh backup code set, returning the plaintext codes
// and their hashes. Plaintext is shown to the user exactly once.
func generateCodes() ([]string, []string, error) {
	plain := make([]string, 0, backupCodeCount)
	hashes := make([]string, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		raw := make([]byte, 5)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, fmt.Errorf("twofactor: generate backup code: %w", err)
		}
		code := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
		plain = append(plain, code)
		hashes = append(hashes, hashCode(code))
	}
	return plain, hashes, nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
