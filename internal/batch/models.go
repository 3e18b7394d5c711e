package batch

import "time"

// BatchStatus tracks one debounce window for a project.
//
// Lifecycle: in_progress -> processing -> completed | error.
// The in_progress -> processing flip is a compare-and-set claim and the sole
// concurrency-control point for sweeps: a sweep observing an
// already-processing batch must skip it.
//
// Invariant: at most one in_progress row per project, enforced by a partial
// unique index on project_id WHERE batch_status = 'in_progress'. A claimed
// (processing) batch has a fixed member set; communications arriving after
// the claim open a new window.

type BatchStatus struct {
	ID        string `json:"id" db:"id"`
	ProjectID string `json:"project_id" db:"project_id"`

	Status State `json:"batch_status" db:"batch_status"`

	ScheduledProcessingTime time.Time  `json:"scheduled_processing_time" db:"scheduled_processing_time"`
	ProcessedAt             *time.Time `json:"processed_at,omitempty" db:"processed_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type State string

const (
	StateInProgress State = "in_progress"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateError      State = "error"
)
