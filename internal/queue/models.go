package queue

import "time"

// State represents the delivery state of a queued task.
type State string

const (
	StatePending   State = "pending"
	StateLeased    State = "leased"
	StateCompleted State = "completed"
	StateDead      State = "dead"
)

// IsFinished reports whether the task has left the delivery cycle.
func (s State) IsFinished() bool {
	return s == StateCompleted || s == StateDead
}

// Payload carries everything an executor needs to run a conversion.
type Payload struct {
	SourceFileID string            `json:"sourceFileId"`
	SourceFormat string            `json:"sourceFormat"`
	TargetFormat string            `json:"targetFormat"`
	Options      map[string]string `json:"options,omitempty"`
}

// Task is one unit of deliverable work. A task is bound to exactly one job;
// enqueueing the same job id twice is a no-op.
type Task struct {
	ID             int64
	JobID          string
	State          State
	Payload        Payload
	Attempts       int
	OwnerID        string
	LastError      string
	NotBefore      time.Time
	LeaseExpiresAt *time.Time
	FinishedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
