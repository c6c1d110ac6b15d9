package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-pos/vantage-pos/internal/shared"
)

const userColumns = `id, email, name, password_hash, is_superuser, is_active,
	two_factor_enabled, COALESCE(otp_secret, ''), created_at, updated_at`

// Repository provides PostgreSQL backed persistence for user accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns all users ordered by id.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// GetUser fetches a user by ID.
func (r *Repository) GetUser(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByEmail fetches a user by email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// SetActive toggles the account's active flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SaveOTPSecret stores a pending two-factor secret for the user.
func (r *Repository) SaveOTPSecret(ctx context.Context, id int64, secret string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET otp_secret = $2, updated_at = NOW() WHERE id = $1`, id, secret)
	return err
}

// SetTwoFactorEnabled flips the enabled flag; disabling also clears the secret.
func (r *Repository) SetTwoFactorEnabled(ctx context.Context, id int64, enabled bool) error {
	var err error
	if enabled {
		_, err = r.pool.Exec(ctx,
			`UPDATE users SET two_factor_enabled = TRUE, updated_at = NOW() WHERE id = $1`, id)
	} else {
		_, err = r.pool.Exec(ctx,
			`UPDATE users SET two_factor_enabled = FALSE, otp_secret = NULL, updated_at = NOW() WHERE id = $1`, id)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash,
		&user.IsSuperuser, &user.IsActive, &user.TwoFactorEnabled, &user.OTPSecret,
		&user.CreatedAt, &user.UpdatedAt)
	return user, err
}
