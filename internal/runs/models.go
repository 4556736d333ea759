package runs

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// InterruptedReason is recorded for runs abandoned by a crashed process.
const InterruptedReason = "run interrupted before completion"

// Record is one ledger row.
type Record struct {
	ID               string
	Task             string
	CollectionSystem string
	CruiseID         string
	Status           Status
	ProgressPercent  int
	ProgressMessage  string
	StopRequested    bool
	Parts            json.RawMessage
	NewCount         int
	UpdatedCount     int
	RemovedCount     int
	ErrorMessage     string
	StartedAt        time.Time
	UpdatedAt        time.Time
	FinishedAt       *time.Time
}

// Finished reports whether the run reached a terminal status.
func (r *Record) Finished() bool {
	return r != nil && r.Status != StatusRunning
}

// Outcome is the terminal information recorded by Finish.
type Outcome struct {
	Status  Status
	Parts   json.RawMessage
	New     int
	Updated int
	Removed int
	Error   string
}
