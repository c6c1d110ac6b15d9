package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSessionPurge removes expired session register rows and API tokens.
	TaskTypeSessionPurge = "sessions:purge"
	// TaskTypeAuditRetention prunes audit log entries past the retention window.
	TaskTypeAuditRetention = "audit:retention"
)

// SessionJanitor is the persistence surface the purge task sweeps.
type SessionJanitor interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// TokenJanitor removes expired API tokens.
type TokenJanitor interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// AuditPruner deletes audit entries older than a cutoff. Role change
// snapshots are kept forever and are not part of this contract.
type AuditPruner interface {
	DeleteEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewSessionPurgeTask constructs the periodic session purge task.
func NewSessionPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSessionPurge, nil)
}

// NewAuditRetentionTask constructs the periodic audit retention task.
func NewAuditRetentionTask() *asynq.Task {
	return asynq.NewTask(TaskTypeAuditRetention, nil)
}

// SessionPurgeHandler returns the handler for TaskTypeSessionPurge.
func SessionPurgeHandler(sessions SessionJanitor, tokens TokenJanitor, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		removedSessions, err := sessions.DeleteExpiredSessions(ctx)
		if err != nil {
			return err
		}
		removedTokens, err := tokens.DeleteExpired(ctx)
		if err != nil {
			return err
		}
		logger.Info("session purge complete",
			slog.Int64("sessions", removedSessions),
			slog.Int64("tokens", removedTokens))
		return nil
	}
}

// AuditRetentionHandler returns the handler for TaskTypeAuditRetention.
func AuditRetentionHandler(pruner AuditPruner, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if retention <= 0 {
			return nil
		}
		cutoff := time.Now().Add(-retention)
		removed, err := pruner.DeleteEntriesBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		logger.Info("audit retention complete",
			slog.Int64("entries", removed),
			slog.Time("cutoff", cutoff))
		return nil
	}
}
