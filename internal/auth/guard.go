package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/vantage-pos/vantage-pos/internal/shared"
)

// Guard revokes every live session and issued token for a user. It runs
// after a role mutation so that no session issued under the old role set can
// keep its privileges.
type Guard struct {
	sessions *shared.SessionManager
	store    SessionStore
	tokens   TokenStore
	logger   *slog.Logger
}

// NewGuard constructs a Guard.
func NewGuard(sessions *shared.SessionManager, store SessionStore, tokens TokenStore, logger *slog.Logger) *Guard {
	return &Guard{sessions: sessions, store: store, tokens: tokens, logger: logger}
}

// Invalidate sweeps the user's sessions and tokens. The sweep is best-effort
// but exhaustive: it walks both the PostgreSQL register and the Redis index,
// keeps going past individual failures, and reports everything it could not
// remove. A session created concurrently after the sweep snapshots its ID
// list survives; it was issued against the new permission state.
func (g *Guard) Invalidate(ctx context.Context, userID int64) error {
	var errs []error

	// The two registers are independent stores, so snapshot them in parallel.
	var registered, indexed []string
	var wg errgroup.Group
	wg.Go(func() error {
		ids, err := g.store.ActiveSessionIDs(ctx, userID)
		if err != nil {
			return fmt.Errorf("auth: list registered sessions: %w", err)
		}
		registered = ids
		return nil
	})
	wg.Go(func() error {
		ids, err := g.sessions.SessionIDsForUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("auth: list indexed sessions: %w", err)
		}
		indexed = ids
		return nil
	})
	if err := wg.Wait(); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]struct{})
	for _, id := range registered {
		seen[id] = struct{}{}
	}
	for _, id := range indexed {
		seen[id] = struct{}{}
	}

	dropped := 0
	for id := range seen {
		if err := g.sessions.Drop(ctx, id, userID); err != nil {
			errs = append(errs, fmt.Errorf("auth: drop session %s: %w", id, err))
			continue
		}
		dropped++
	}

	if _, err := g.store.DeleteSessionsForUser(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("auth: delete session records: %w", err))
	}
	revoked, err := g.tokens.RevokeForUser(ctx, userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("auth: revoke tokens: %w", err))
	}

	if g.logger != nil {
		g.logger.Info("invalidated credentials",
			slog.Int64("user_id", userID),
			slog.Int("sessions", dropped),
			slog.Int64("tokens", revoked),
			slog.Int("errors", len(errs)))
	}
	return errors.Join(errs...)
}
