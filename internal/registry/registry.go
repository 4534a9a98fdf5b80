// Package registry tracks asynchronous generation jobs in memory. It
// is the single owner of job state: every mutation is one atomic,
// forward-only transition keyed by job id. Jobs do not survive a
// process restart.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/infra"
)

const (
	// Terminal jobs are retained for this long so clients can still
	// fetch the status or artifact, then evicted.
	defaultRetention = time.Hour

	sweepInterval = time.Minute
)

// Registry is the in-memory job table.
type Registry struct {
	mu        sync.Mutex
	jobs      map[string]*domain.Job
	expired   map[string]time.Time
	retention time.Duration
	logger    infra.Logger
	now       func() time.Time

	// onEvict runs outside the lock for each evicted job, letting the
	// owner release the job's artifact.
	onEvict func(*domain.Job)
}

// Option customizes a Registry.
type Option func(*Registry)

// WithRetention overrides how long terminal jobs are kept.
func WithRetention(d time.Duration) Option {
	return func(r *Registry) { r.retention = d }
}

// WithOnEvict registers a callback invoked for every evicted job.
func WithOnEvict(fn func(*domain.Job)) Option {
	return func(r *Registry) { r.onEvict = fn }
}

func New(logger infra.Logger, opts ...Option) *Registry {
	r := &Registry{
		jobs:      make(map[string]*domain.Job),
		expired:   make(map[string]time.Time),
		retention: defaultRetention,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create allocates a fresh job in PENDING. Ids are unique for the
// lifetime of the registry.
func (r *Registry) Create() domain.Job {
	now := r.now().UTC()
	job := &domain.Job{
		ID:        uuid.NewString(),
		State:     domain.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()
	return *job
}

// MarkSubmitted records the provider token and moves the job from
// PENDING to SUBMITTED. A second call for the same id is a contract
// violation: it is rejected and logged without touching the first
// transition's effect.
func (r *Registry) MarkSubmitted(id, providerToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return r.violation(id, "mark submitted on unknown job")
	}
	if job.State != domain.JobPending {
		return r.violation(id, "duplicate submit in state %s", job.State)
	}
	job.ProviderToken = providerToken
	r.transition(job, domain.JobSubmitted)
	return nil
}

// BeginPolling moves SUBMITTED to POLLING. Re-entry while already
// POLLING is allowed and is a no-op transition.
func (r *Registry) BeginPolling(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return r.violation(id, "begin polling on unknown job")
	}
	switch job.State {
	case domain.JobSubmitted:
		r.transition(job, domain.JobPolling)
		return nil
	case domain.JobPolling:
		return nil
	default:
		return r.violation(id, "begin polling in state %s", job.State)
	}
}

// Complete attaches the artifact and moves POLLING to COMPLETED.
func (r *Registry) Complete(id string, artifact *domain.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return r.violation(id, "complete on unknown job")
	}
	if job.State != domain.JobPolling {
		return r.violation(id, "complete in state %s", job.State)
	}
	job.Artifact = artifact
	r.transition(job, domain.JobCompleted)
	return nil
}

// Fail moves any non-terminal state to FAILED with the classified
// error.
func (r *Registry) Fail(id string, jobErr *domain.Error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return r.violation(id, "fail on unknown job")
	}
	if job.State.Terminal() {
		return r.violation(id, "fail in terminal state %s", job.State)
	}
	job.Err = jobErr
	r.transition(job, domain.JobFailed)
	return nil
}

// Lookup returns a copy of the job. The second return distinguishes
// ids that were never known from ids evicted by retention.
func (r *Registry) Lookup(id string) (domain.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		return *job, true
	}
	return domain.Job{}, false
}

// Expired reports whether the id belonged to a job that was evicted.
func (r *Registry) Expired(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.expired[id]
	return ok
}

// StartJanitor sweeps terminal jobs past the retention window until
// ctx is cancelled.
func (r *Registry) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

// Sweep evicts terminal jobs whose retention window has passed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.retention)

	r.mu.Lock()
	var evicted []*domain.Job
	for id, job := range r.jobs {
		if job.State.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
			r.expired[id] = job.UpdatedAt
			evicted = append(evicted, job)
		}
	}
	// Tombstones eventually age out too, one retention window after
	// the job itself.
	for id, at := range r.expired {
		if at.Before(cutoff.Add(-r.retention)) {
			delete(r.expired, id)
		}
	}
	r.mu.Unlock()

	for _, job := range evicted {
		r.logger.Info().Str("job_id", job.ID).Str("state", string(job.State)).Msg("registry: evicted job")
		if r.onEvict != nil {
			r.onEvict(job)
		}
	}
	return len(evicted)
}

// transition applies a state change under the lock.
func (r *Registry) transition(job *domain.Job, next domain.JobState) {
	prev := job.State
	job.State = next
	job.UpdatedAt = r.now().UTC()
	r.logger.Debug().Str("job_id", job.ID).Str("from", string(prev)).Str("to", string(next)).Msg("registry: transition")
}

// violation logs and returns a registry contract error. These signal
// programming mistakes, never user input problems.
func (r *Registry) violation(id, msg string, args ...any) error {
	err := domain.E(domain.KindRegistry, msg, args...)
	r.logger.Error().Str("job_id", id).Msg("registry: " + err.Msg)
	return err
}
