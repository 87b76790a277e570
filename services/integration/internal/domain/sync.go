package domain

import "time"

// EntityType names a provider resource that can be synchronized.
type EntityType string

const EntityBranches EntityType = "branches"

// SyncState is the terminal state of a run's state machine.
type SyncState string

const (
	SyncStateRunning SyncState = "running"
	SyncStateDone    SyncState = "done"
	SyncStateAborted SyncState = "aborted"
)

// SyncStatus is the caller-facing outcome of a run.
type SyncStatus string

const (
	// SyncStatusComplete means every page was fetched.
	SyncStatusComplete SyncStatus = "complete"
	// SyncStatusIncomplete means a later page failed; earlier records are persisted.
	SyncStatusIncomplete SyncStatus = "incomplete"
	// SyncStatusFailed means the very first page could not be fetched.
	SyncStatusFailed SyncStatus = "failed"
	// SyncStatusRunning is stored while a run is in progress.
	SyncStatusRunning SyncStatus = "running"
)

// SyncStats counts what happened to the records of one run. The counters only
// ever grow.
type SyncStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// SyncRun is the report and persisted history row of one sync run.
type SyncRun struct {
	ID         string     `json:"id"`
	EntityType EntityType `json:"entity_type"`
	Mode       Mode       `json:"mode"`
	SyncStats
	State      SyncState  `json:"state"`
	Status     SyncStatus `json:"status"`
	Pages      int        `json:"pages"`
	ErrorCode  *string    `json:"error_code,omitempty"`
	Error      *string    `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Finish moves the run into its terminal state and derives the status.
func (r *SyncRun) Finish(state SyncState, at time.Time) {
	r.State = state
	r.FinishedAt = &at
	switch {
	case state == SyncStateDone:
		r.Status = SyncStatusComplete
	case r.Pages == 0:
		r.Status = SyncStatusFailed
	default:
		r.Status = SyncStatusIncomplete
	}
}

// Duration is the wall time of a finished run.
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// SyncRunFilter narrows a sync run listing.
type SyncRunFilter struct {
	EntityType *EntityType
	Status     *SyncStatus
}
