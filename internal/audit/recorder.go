package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/vantage-pos/vantage-pos/internal/platform/db"
)

// Recorder writes records into audit_logs and permission_change_logs.
type Recorder struct {
	q db.Querier
}

// NewRecorder returns a new Recorder.
func NewRecorder(q db.Querier) *Recorder {
	return &Recorder{q: q}
}

// Record persists an audit entry.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if r == nil {
		return errors.New("audit recorder not initialised")
	}
	if entry.Action == "" || entry.Resource == "" {
		return errors.New("audit entry requires action and resource")
	}
	if entry.Outcome == "" {
		entry.Outcome = OutcomeSuccess
	}
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = r.q.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, resource, resource_id, outcome, meta, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ActorID, entry.Action, entry.Resource, entry.ResourceID, string(entry.Outcome), metaJSON, at)
	return err
}

// RecordRoleChange appends a role-set snapshot. Called for every invalidation
// attempt, including ones where the session sweep partially failed, so intent
// is always on record.
func (r *Recorder) RecordRoleChange(ctx context.Context, change RoleChange) error {
	if r == nil {
		return errors.New("audit recorder not initialised")
	}
	before, err := json.Marshal(change.Before)
	if err != nil {
		return err
	}
	after, err := json.Marshal(change.After)
	if err != nil {
		return err
	}
	at := change.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = r.q.Exec(ctx,
		`INSERT INTO permission_change_logs (user_id, actor_id, roles_before, roles_after, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		change.UserID, change.ActorID, before, after, at)
	return err
}
