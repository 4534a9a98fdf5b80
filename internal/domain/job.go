package domain

import "time"

// JobState enumerates the lifecycle of an asynchronous generation job.
// Transitions only ever move forward:
// PENDING -> SUBMITTED -> POLLING -> COMPLETED | FAILED.
type JobState string

const (
	JobPending   JobState = "PENDING"
	JobSubmitted JobState = "SUBMITTED"
	JobPolling   JobState = "POLLING"
	JobCompleted JobState = "COMPLETED"
	JobFailed    JobState = "FAILED"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job tracks one in-flight or finished asynchronous video generation.
// The registry is the only writer of State; everyone else gets copies.
type Job struct {
	ID            string
	State         JobState
	ProviderToken string
	Artifact      *Artifact
	Err           *Error
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Artifact is a downloaded video held in local storage. Artifacts are
// immutable once written; completed jobs reference them, never copy.
type Artifact struct {
	Key       string
	Path      string
	Bytes     int64
	MIME      string
	CreatedAt time.Time
}

// GenerateRequest is the validated input to the generation pipeline.
// Immutable once accepted by the service.
type GenerateRequest struct {
	Ingredients   []string
	Cuisine       string
	DishType      string
	UseFastModel  bool
	EnableAudio   bool
	EnhancePrompt bool
}
