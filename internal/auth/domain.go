package auth

import "time"

// SessionRecord registers an issued session in PostgreSQL. Redis holds the
// live payload; this register is what the guard sweeps so invalidation does
// not depend on the Redis index surviving.
type SessionRecord struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
	IP        string
	UserAgent string
}

// Token is an issued API access token. Only the SHA-256 of the secret is
// stored; the plaintext is returned once at issue time.
type Token struct {
	ID        string
	UserID    int64
	Hash      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// PendingUserKey is the session key holding a user ID that passed the
// password check but still owes a one-time code.
const PendingUserKey = "pending_user_id"
