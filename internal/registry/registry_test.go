package registry

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

func newTestRegistry(opts ...Option) *Registry {
	return New(zerolog.New(io.Discard), opts...)
}

func TestHappyPathTransitions(t *testing.T) {
	r := newTestRegistry()
	job := r.Create()
	if job.State != domain.JobPending {
		t.Fatalf("new job state = %v, want PENDING", job.State)
	}

	if err := r.MarkSubmitted(job.ID, "prov-1"); err != nil {
		t.Fatalf("MarkSubmitted: %v", err)
	}
	if err := r.BeginPolling(job.ID); err != nil {
		t.Fatalf("BeginPolling: %v", err)
	}
	// Idempotent re-entry while polling.
	if err := r.BeginPolling(job.ID); err != nil {
		t.Fatalf("BeginPolling re-entry: %v", err)
	}
	artifact := &domain.Artifact{Key: "videos/a.mp4"}
	if err := r.Complete(job.ID, artifact); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, ok := r.Lookup(job.ID)
	if !ok {
		t.Fatal("Lookup failed after complete")
	}
	if got.State != domain.JobCompleted {
		t.Fatalf("state = %v, want COMPLETED", got.State)
	}
	if got.Artifact == nil || got.Artifact.Key != "videos/a.mp4" {
		t.Fatalf("artifact = %+v", got.Artifact)
	}
	if got.Err != nil {
		t.Fatalf("completed job carries error: %v", got.Err)
	}
	if got.ProviderToken != "prov-1" {
		t.Fatalf("provider token = %q", got.ProviderToken)
	}
}

func TestDoubleMarkSubmittedRejected(t *testing.T) {
	r := newTestRegistry()
	job := r.Create()

	if err := r.MarkSubmitted(job.ID, "prov-1"); err != nil {
		t.Fatalf("first MarkSubmitted: %v", err)
	}
	err := r.MarkSubmitted(job.ID, "prov-2")
	if domain.KindOf(err) != domain.KindRegistry {
		t.Fatalf("second MarkSubmitted = %v, want registry error", err)
	}

	got, _ := r.Lookup(job.ID)
	if got.ProviderToken != "prov-1" {
		t.Fatalf("provider token overwritten: %q", got.ProviderToken)
	}
	if got.State != domain.JobSubmitted {
		t.Fatalf("state corrupted: %v", got.State)
	}
}

func TestNoBackwardTransitions(t *testing.T) {
	r := newTestRegistry()
	job := r.Create()
	_ = r.MarkSubmitted(job.ID, "prov-1")
	_ = r.BeginPolling(job.ID)
	_ = r.Complete(job.ID, &domain.Artifact{Key: "videos/a.mp4"})

	if err := r.BeginPolling(job.ID); domain.KindOf(err) != domain.KindRegistry {
		t.Fatalf("BeginPolling after terminal = %v, want registry error", err)
	}
	if err := r.Fail(job.ID, domain.E(domain.KindTimeout, "late")); domain.KindOf(err) != domain.KindRegistry {
		t.Fatalf("Fail after terminal = %v, want registry error", err)
	}
	got, _ := r.Lookup(job.ID)
	if got.State != domain.JobCompleted || got.Err != nil {
		t.Fatalf("terminal state corrupted: %+v", got)
	}
}

func TestCompleteRequiresPolling(t *testing.T) {
	r := newTestRegistry()
	job := r.Create()
	if err := r.Complete(job.ID, &domain.Artifact{}); domain.KindOf(err) != domain.KindRegistry {
		t.Fatalf("Complete from PENDING = %v, want registry error", err)
	}
}

func TestFailFromAnyNonTerminalState(t *testing.T) {
	r := newTestRegistry()

	pending := r.Create()
	if err := r.Fail(pending.ID, domain.E(domain.KindProviderTerminal, "submit rejected")); err != nil {
		t.Fatalf("Fail from PENDING: %v", err)
	}

	polling := r.Create()
	_ = r.MarkSubmitted(polling.ID, "prov-1")
	_ = r.BeginPolling(polling.ID)
	if err := r.Fail(polling.ID, domain.E(domain.KindTimeout, "budget spent")); err != nil {
		t.Fatalf("Fail from POLLING: %v", err)
	}

	got, _ := r.Lookup(polling.ID)
	if got.State != domain.JobFailed || got.Err == nil || got.Err.Kind != domain.KindTimeout {
		t.Fatalf("failed job = %+v", got)
	}
}

func TestUnknownJobOperations(t *testing.T) {
	r := newTestRegistry()
	if err := r.MarkSubmitted("nope", "prov"); domain.KindOf(err) != domain.KindRegistry {
		t.Fatalf("MarkSubmitted unknown = %v", err)
	}
	if _, ok := r.Lookup("nope"); ok {
		t.Fatal("Lookup found unknown job")
	}
	if r.Expired("nope") {
		t.Fatal("unknown id reported as expired")
	}
}

func TestConcurrentCreateYieldsDistinctIDs(t *testing.T) {
	r := newTestRegistry()
	const n = 100

	var mu sync.Mutex
	ids := make(map[string]struct{}, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job := r.Create()
			mu.Lock()
			ids[job.ID] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(ids) != n {
		t.Fatalf("got %d distinct ids, want %d", len(ids), n)
	}
}

func TestSweepEvictsTerminalJobs(t *testing.T) {
	var evicted []string
	r := newTestRegistry(
		WithRetention(time.Hour),
		WithOnEvict(func(job *domain.Job) { evicted = append(evicted, job.ID) }),
	)

	old := time.Now().Add(-2 * time.Hour)
	r.now = func() time.Time { return old }
	done := r.Create()
	_ = r.MarkSubmitted(done.ID, "prov-1")
	_ = r.BeginPolling(done.ID)
	_ = r.Complete(done.ID, &domain.Artifact{Key: "videos/a.mp4"})
	running := r.Create()
	_ = r.MarkSubmitted(running.ID, "prov-2")

	r.now = time.Now
	if n := r.Sweep(); n != 1 {
		t.Fatalf("Sweep evicted %d jobs, want 1", n)
	}
	if len(evicted) != 1 || evicted[0] != done.ID {
		t.Fatalf("evicted = %v", evicted)
	}
	if _, ok := r.Lookup(done.ID); ok {
		t.Fatal("evicted job still visible")
	}
	if !r.Expired(done.ID) {
		t.Fatal("evicted job not marked expired")
	}
	// Non-terminal jobs are never evicted, however old.
	if _, ok := r.Lookup(running.ID); !ok {
		t.Fatal("running job was evicted")
	}
}
