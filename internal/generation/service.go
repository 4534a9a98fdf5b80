// Package generation orchestrates the video pipeline: prompt building,
// provider submission, status polling and artifact delivery, in three
// client-facing modes (sync, async, stream).
package generation

import (
	"context"
	"errors"
	"io"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/prompt"
	"server/internal/providers/video"
	"server/internal/registry"
	"server/internal/storage"
)

const (
	defaultPollStart     = 2 * time.Second
	defaultPollCap       = 10 * time.Second
	defaultSyncBudget    = 120 * time.Second
	defaultAsyncLifetime = 10 * time.Minute

	// Interrupted or failed downloads get exactly one more attempt.
	downloadRetries = 1
)

// Options wires the service dependencies.
type Options struct {
	Builder  *prompt.Builder
	Enhancer prompt.Enhancer
	Provider video.Client
	Store    *storage.FileStore
	Registry *registry.Registry
	Logger   infra.Logger

	// Available is the startup capability check result: false when the
	// provider credential is missing. Requests are rejected up front
	// instead of failing somewhere inside the pipeline.
	Available bool

	// Poll/budget knobs; zero values take the defaults. Tests shrink
	// them.
	PollStart     time.Duration
	PollCap       time.Duration
	SyncBudget    time.Duration
	AsyncLifetime time.Duration
}

// Service is the generation facade.
type Service struct {
	builder   *prompt.Builder
	enhancer  prompt.Enhancer
	provider  video.Client
	store     *storage.FileStore
	registry  *registry.Registry
	logger    infra.Logger
	available bool

	pollStart     time.Duration
	pollCap       time.Duration
	syncBudget    time.Duration
	asyncLifetime time.Duration
}

func NewService(opts Options) *Service {
	s := &Service{
		builder:       opts.Builder,
		enhancer:      opts.Enhancer,
		provider:      opts.Provider,
		store:         opts.Store,
		registry:      opts.Registry,
		logger:        opts.Logger,
		available:     opts.Available,
		pollStart:     opts.PollStart,
		pollCap:       opts.PollCap,
		syncBudget:    opts.SyncBudget,
		asyncLifetime: opts.AsyncLifetime,
	}
	if s.enhancer == nil {
		s.enhancer = prompt.NoopEnhancer{}
	}
	if s.pollStart <= 0 {
		s.pollStart = defaultPollStart
	}
	if s.pollCap <= 0 {
		s.pollCap = defaultPollCap
	}
	if s.syncBudget <= 0 {
		s.syncBudget = defaultSyncBudget
	}
	if s.asyncLifetime <= 0 {
		s.asyncLifetime = defaultAsyncLifetime
	}
	return s
}

// Available reports whether the generation subsystem can accept
// requests at all.
func (s *Service) Available() bool {
	return s.available
}

// Job returns the current snapshot of an async job.
func (s *Service) Job(id string) (domain.Job, bool) {
	return s.registry.Lookup(id)
}

// Expired reports whether an async job id was evicted by retention.
func (s *Service) Expired(id string) bool {
	return s.registry.Expired(id)
}

// OpenArtifact opens a completed job's artifact for streaming.
func (s *Service) OpenArtifact(artifact *domain.Artifact) (io.ReadCloser, error) {
	return s.store.Open(artifact)
}

// GenerateSync runs the whole pipeline in the caller's goroutine and
// returns the downloaded artifact. The caller blocks for the full
// duration, bounded by the sync budget.
func (s *Service) GenerateSync(ctx context.Context, req domain.GenerateRequest) (*domain.Artifact, error) {
	promptText, err := s.preparePrompt(ctx, req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.syncBudget)
	defer cancel()

	videoURL, err := s.generate(ctx, promptText, req)
	if err != nil {
		return nil, err
	}
	return s.download(ctx, videoURL)
}

// GenerateAsync registers a job, returns its id immediately and drives
// the pipeline from a detached background task. The task owns every
// state transition for its job and stops itself on reaching a terminal
// state or exceeding the job lifetime.
func (s *Service) GenerateAsync(ctx context.Context, req domain.GenerateRequest) (string, error) {
	promptText, err := s.preparePrompt(ctx, req)
	if err != nil {
		return "", err
	}
	job := s.registry.Create()
	go s.runJob(job.ID, promptText, req)
	return job.ID, nil
}

// GenerateStream submits, waits for completion and proxies the
// provider bytes straight to w. No job is registered: once the stream
// begins there is nothing left to poll.
func (s *Service) GenerateStream(ctx context.Context, req domain.GenerateRequest, w io.Writer) error {
	promptText, err := s.preparePrompt(ctx, req)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.syncBudget)
	defer cancel()

	videoURL, err := s.generate(ctx, promptText, req)
	if err != nil {
		return err
	}
	return s.store.Passthrough(ctx, videoURL, w)
}

// preparePrompt validates the request, builds the prompt and applies
// optional enhancement. It also enforces the availability gate.
func (s *Service) preparePrompt(ctx context.Context, req domain.GenerateRequest) (string, error) {
	if !s.available {
		return "", domain.E(domain.KindUnavailable, "video generation is not configured")
	}
	promptText, err := s.builder.Build(prompt.Input{
		Ingredients: req.Ingredients,
		Cuisine:     req.Cuisine,
		DishType:    req.DishType,
		EnableAudio: req.EnableAudio,
	})
	if err != nil {
		return "", err
	}
	if req.EnhancePrompt {
		promptText = s.enhancer.Enhance(ctx, promptText)
	}
	return promptText, nil
}

// runJob is the background driver for one async job. It is the only
// writer of that job's state.
func (s *Service) runJob(jobID, promptText string, req domain.GenerateRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), s.asyncLifetime)
	defer cancel()

	log := s.logger.With().Str("job_id", jobID).Logger()

	handle, err := s.submit(ctx, promptText, req)
	if err != nil {
		log.Error().Err(err).Msg("generation: submit failed")
		s.failJob(jobID, err)
		return
	}
	if err := s.registry.MarkSubmitted(jobID, handle.RequestID); err != nil {
		return
	}
	if err := s.registry.BeginPolling(jobID); err != nil {
		return
	}

	videoURL, err := s.pollUntilComplete(ctx, handle)
	if err != nil {
		log.Error().Err(err).Msg("generation: polling failed")
		s.failJob(jobID, err)
		return
	}
	artifact, err := s.download(ctx, videoURL)
	if err != nil {
		log.Error().Err(err).Msg("generation: download failed")
		s.failJob(jobID, err)
		return
	}
	if err := s.registry.Complete(jobID, artifact); err != nil {
		return
	}
	log.Info().Str("artifact", artifact.Key).Msg("generation: job completed")
}

// generate performs submit plus poll for the blocking modes.
func (s *Service) generate(ctx context.Context, promptText string, req domain.GenerateRequest) (string, error) {
	handle, err := s.submit(ctx, promptText, req)
	if err != nil {
		return "", err
	}
	return s.pollUntilComplete(ctx, handle)
}

// submit sends the generation request, retrying transient failures on
// the backoff schedule until the context budget runs out.
func (s *Service) submit(ctx context.Context, promptText string, req domain.GenerateRequest) (video.Handle, error) {
	subReq := video.SubmitRequest{
		Prompt:       promptText,
		UseFastModel: req.UseFastModel,
		EnableAudio:  req.EnableAudio,
	}
	wait := s.pollStart
	for {
		handle, err := s.provider.Submit(ctx, subReq)
		if err == nil {
			return handle, nil
		}
		if !domain.Retryable(err) {
			return video.Handle{}, err
		}
		s.logger.Warn().Err(err).Dur("retry_in", wait).Msg("generation: transient submit failure")
		if err := s.sleep(ctx, wait); err != nil {
			return video.Handle{}, err
		}
		wait = s.nextBackoff(wait)
	}
}

// pollUntilComplete polls the provider on an exponential backoff until
// the generation reaches a terminal provider status or the context
// budget is exhausted.
func (s *Service) pollUntilComplete(ctx context.Context, handle video.Handle) (string, error) {
	wait := s.pollStart
	for {
		if err := s.sleep(ctx, wait); err != nil {
			return "", err
		}
		wait = s.nextBackoff(wait)

		result, err := s.provider.Status(ctx, handle)
		if err != nil {
			if domain.Retryable(err) {
				s.logger.Warn().Err(err).Str("provider_request_id", handle.RequestID).Msg("generation: transient poll failure")
				continue
			}
			return "", err
		}
		switch result.Status {
		case video.StatusCompleted:
			return result.VideoURL, nil
		case video.StatusFailed:
			return "", domain.E(domain.KindProviderTerminal, "provider reported generation failure: %s", result.Reason)
		default:
			// Queued or running; keep polling.
		}
	}
}

// download fetches the finished video into the artifact store,
// retrying interrupted transfers once.
func (s *Service) download(ctx context.Context, videoURL string) (*domain.Artifact, error) {
	var lastErr error
	for attempt := 0; attempt <= downloadRetries; attempt++ {
		artifact, err := s.store.Download(ctx, videoURL)
		if err == nil {
			return artifact, nil
		}
		lastErr = err
		if !domain.Retryable(err) {
			return nil, err
		}
		s.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("generation: download retry")
	}
	return nil, lastErr
}

// failJob records a terminal failure, mapping a spent budget onto the
// Timeout classification so clients can tell it apart from provider
// failures.
func (s *Service) failJob(jobID string, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		derr = domain.Wrap(domain.KindProviderTerminal, err, "generation failed")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		derr = domain.E(domain.KindTimeout, "generation exceeded its time budget")
	}
	if regErr := s.registry.Fail(jobID, derr); regErr != nil {
		s.logger.Error().Err(regErr).Str("job_id", jobID).Msg("generation: could not record failure")
	}
}

// sleep waits for d or until the context budget is spent, surfacing
// the latter as a Timeout-classified error.
func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return domain.Wrap(domain.KindTimeout, ctx.Err(), "operation budget exhausted")
	}
}

func (s *Service) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > s.pollCap {
		next = s.pollCap
	}
	return next
}
