package rbac

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vantage-pos/vantage-pos/internal/audit"
)

// SyncStore is the persistence surface the synchronizer works against. It is
// a subset of *Repository so a transaction-bound repository can be passed in.
type SyncStore interface {
	ClearNativeGrants(ctx context.Context, userID int64) error
	EnsureNativePermission(ctx context.Context, codename, name string) (int64, error)
	GrantNative(ctx context.Context, userID, nativePermissionID int64) error
	EffectivePermissionNames(ctx context.Context, userID int64) ([]string, error)
	AllActivePermissionNames(ctx context.Context) ([]string, error)
}

// DecisionRecorder receives audit entries for sync anomalies.
type DecisionRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Synchronizer mirrors catalog permissions into the native authorization
// records so legacy checks against that layer stay correct.
type Synchronizer struct {
	recorder DecisionRecorder
	logger   *slog.Logger
}

// NewSynchronizer constructs a Synchronizer.
func NewSynchronizer(recorder DecisionRecorder, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{recorder: recorder, logger: logger}
}

// Resync rebuilds the principal's native grants from scratch: clear every
// previously mirrored grant, recompute the effective set, regrant. It is
// never an incremental diff, so a partially failed earlier run cannot leave
// drift behind.
//
// A permission whose name cannot be parsed into a codename is skipped with a
// warning and an ERROR audit entry; one bad mapping must not block the rest
// of the resync.
func (s *Synchronizer) Resync(ctx context.Context, store SyncStore, p Principal) error {
	userID := p.GetID()
	if err := store.ClearNativeGrants(ctx, userID); err != nil {
		return fmt.Errorf("rbac: clear native grants: %w", err)
	}

	var names []string
	var err error
	if p.IsSuperUser() {
		names, err = store.AllActivePermissionNames(ctx)
	} else if p.IsActiveAccount() {
		names, err = store.EffectivePermissionNames(ctx, userID)
	}
	if err != nil {
		return fmt.Errorf("rbac: effective permissions: %w", err)
	}

	for _, name := range names {
		key, err := ParseKey(name)
		if err != nil {
			s.skip(ctx, userID, name, err)
			continue
		}
		nativeID, err := store.EnsureNativePermission(ctx, key.Codename(), name)
		if err != nil {
			return fmt.Errorf("rbac: ensure native permission %s: %w", key.Codename(), err)
		}
		if err := store.GrantNative(ctx, userID, nativeID); err != nil {
			return fmt.Errorf("rbac: grant native permission %s: %w", key.Codename(), err)
		}
	}
	return nil
}

func (s *Synchronizer) skip(ctx context.Context, userID int64, name string, cause error) {
	if s.logger != nil {
		s.logger.Warn("native sync skipped permission",
			slog.Int64("user_id", userID),
			slog.String("permission", name),
			slog.Any("error", cause))
	}
	if s.recorder == nil {
		return
	}
	// Skips are surfaced in the audit trail, not only in process logs, so
	// missing native records are visible to the audit query surface.
	if err := s.recorder.Record(ctx, audit.Entry{
		ActorID:    userID,
		Action:     "native_sync.skip",
		Resource:   "permission",
		ResourceID: name,
		Outcome:    audit.OutcomeError,
		Meta:       map[string]any{"reason": cause.Error()},
	}); err != nil && s.logger != nil {
		s.logger.Warn("record sync skip", slog.Any("error", err))
	}
}
