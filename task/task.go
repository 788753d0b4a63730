package task

import (
	"strings"
	"time"

	"mediaforge/media"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CancelledDetail prefixes the errorDetail of tasks that failed because
// of an explicit or timeout-triggered cancellation, so clients can tell
// them apart from encoder failures.
const CancelledDetail = "cancelled"

// Task is one unit of submitted work and its lifecycle record.
// Status moves pending -> processing -> {completed|failed}, never
// backward; Progress is non-decreasing while processing.
type Task struct {
	ID             string               `json:"id"`
	Owner          string               `json:"-"`
	Spec           media.ProcessingSpec `json:"-"`
	Source         media.SourceInfo     `json:"-"`
	Args           []string             `json:"-"` // argv, without binary and output path
	SourceFilename string               `json:"sourceFilename"`
	CommandPreview string               `json:"commandPreview"`
	OutputName     string               `json:"outputName,omitempty"` // display name
	Status         Status               `json:"status"`
	Progress       int                  `json:"progress"`
	OutputPath     string               `json:"outputPath,omitempty"`
	ErrorDetail    string               `json:"errorDetail,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

// Cancelled reports whether a failed task ended by cancellation rather
// than an encoder or infrastructure error.
func (t *Task) Cancelled() bool {
	return t.Status == StatusFailed && strings.HasPrefix(t.ErrorDetail, CancelledDetail)
}
