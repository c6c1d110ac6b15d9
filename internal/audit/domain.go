package audit

import "time"

// Outcome classifies the result recorded by an entry.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeDenied  Outcome = "DENIED"
	OutcomeError   Outcome = "ERROR"
)

// Entry is a single append-only audit record. Entries are never updated or
// deleted when the referenced role or permission is deactivated.
type Entry struct {
	ID         int64
	ActorID    int64
	Action     string
	Resource   string
	ResourceID string
	Outcome    Outcome
	Meta       map[string]any
	At         time.Time
}

// RoleChange snapshots a user's role set before and after a mutation.
type RoleChange struct {
	ID      int64
	UserID  int64
	ActorID int64
	Before  []string
	After   []string
	At      time.Time
}

// Filters narrows audit queries.
type Filters struct {
	ActorID  int64
	Resource string
	Action   string
	Outcome  Outcome
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// PagingInfo describes the window returned by a paged query.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result bundles entries with paging information.
type Result struct {
	Entries []Entry
	Paging  PagingInfo
}

// ChangeResult bundles role change rows with paging information.
type ChangeResult struct {
	Changes []RoleChange
	Paging  PagingInfo
}
