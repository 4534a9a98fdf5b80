// Package video wraps the external video generation provider behind a
// small submit/poll interface with normalized statuses and classified
// errors.
package video

import "context"

// Status is the normalized provider-side lifecycle of a submitted
// generation request.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Handle identifies a submitted request at the provider. The model is
// carried because the provider routes status lookups per model.
type Handle struct {
	RequestID string
	Model     string
}

// SubmitRequest carries everything the provider needs for one
// generation. Duration is fixed by the provider and not part of the
// request surface.
type SubmitRequest struct {
	Prompt       string
	UseFastModel bool
	EnableAudio  bool
}

// PollResult is the normalized answer to a status poll. VideoURL is
// set only when Status is StatusCompleted; Reason only on
// StatusFailed.
type PollResult struct {
	Status   Status
	VideoURL string
	Reason   string
}

// Client is the provider boundary: one outbound submission, then
// repeated status polls against the returned handle.
type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (Handle, error)
	Status(ctx context.Context, h Handle) (PollResult, error)
}
