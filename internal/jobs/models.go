package jobs

import "time"

// Status represents the lifecycle state of a conversion job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is the durable record of one conversion request. The JSON shape is
// part of the external contract: API responses and event snapshots carry it
// verbatim.
type Job struct {
	ID           string            `json:"id"`
	SourceFileID string            `json:"sourceFileId"`
	SourceFormat string            `json:"sourceFormat"`
	TargetFormat string            `json:"targetFormat"`
	Status       Status            `json:"status"`
	Progress     float64           `json:"progress"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	ResultFileID string            `json:"resultFileId,omitempty"`
	Error        string            `json:"error,omitempty"`
	Options      map[string]string `json:"options,omitempty"`
}
