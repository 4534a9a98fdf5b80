package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

type videoGenerateRequest struct {
	Ingredients   []string `json:"ingredients"`
	Cuisine       string   `json:"cuisine"`
	DishType      string   `json:"dish_type"`
	UseFastModel  bool     `json:"use_fast_model"`
	EnableAudio   *bool    `json:"enable_audio"`
	EnhancePrompt bool     `json:"enhance_prompt"`
}

func (r videoGenerateRequest) domain() domain.GenerateRequest {
	// Audio defaults on; the flag only exists to switch it off.
	enableAudio := true
	if r.EnableAudio != nil {
		enableAudio = *r.EnableAudio
	}
	return domain.GenerateRequest{
		Ingredients:   r.Ingredients,
		Cuisine:       r.Cuisine,
		DishType:      r.DishType,
		UseFastModel:  r.UseFastModel,
		EnableAudio:   enableAudio,
		EnhancePrompt: r.EnhancePrompt,
	}
}

func (a *App) decodeGenerateRequest(w http.ResponseWriter, r *http.Request) (domain.GenerateRequest, bool) {
	var req videoGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid request", "malformed JSON payload")
		return domain.GenerateRequest{}, false
	}
	return req.domain(), true
}

// VideosGenerate is the sync endpoint: it blocks through submission,
// polling and download, then responds with the video bytes.
func (a *App) VideosGenerate(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeGenerateRequest(w, r)
	if !ok {
		return
	}
	artifact, err := a.Service.GenerateSync(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.serveArtifact(w, artifact)
}

type asyncResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// VideosGenerateAsync registers a background job and returns its id
// immediately.
func (a *App) VideosGenerateAsync(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeGenerateRequest(w, r)
	if !ok {
		return
	}
	jobID, err := a.Service.GenerateAsync(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusAccepted, asyncResponse{RequestID: jobID, Status: string(domain.JobPending)})
}

type statusResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// VideoStatus reports the current lifecycle state of an async job.
func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, ok := a.Service.Job(jobID)
	if !ok {
		a.error(w, http.StatusNotFound, "unknown request id", "")
		return
	}
	resp := statusResponse{RequestID: job.ID, Status: string(job.State)}
	if job.Err != nil {
		resp.Error = job.Err.Msg
		resp.ErrorKind = string(job.Err.Kind)
	}
	a.json(w, http.StatusOK, resp)
}

// VideoDownload streams a completed async job's artifact. The artifact
// is immutable: repeated downloads yield identical bytes.
func (a *App) VideoDownload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, ok := a.Service.Job(jobID)
	if !ok {
		if a.Service.Expired(jobID) {
			a.error(w, http.StatusGone, "request expired", "")
			return
		}
		a.error(w, http.StatusNotFound, "unknown request id", "")
		return
	}
	if job.State != domain.JobCompleted {
		a.error(w, http.StatusNotFound, "video not ready", "current status: "+string(job.State))
		return
	}
	a.serveArtifact(w, job.Artifact)
}

// VideosStream is the pass-through endpoint: provider bytes are
// proxied directly to the client without a local artifact. A failure
// after headers are sent can only abort the connection; the anomaly is
// logged by the store.
func (a *App) VideosStream(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeGenerateRequest(w, r)
	if !ok {
		return
	}
	sw := &streamWriter{w: w}
	if err := a.Service.GenerateStream(r.Context(), req, sw); err != nil {
		if !sw.started {
			a.fail(w, err)
			return
		}
		// Mid-stream failure: abort the connection so the client sees a
		// broken transfer instead of a silently truncated video.
		// Recoverer passes ErrAbortHandler through.
		panic(http.ErrAbortHandler)
	}
}

// streamWriter sets the video headers lazily on first write so error
// responses before any byte keep their JSON shape.
type streamWriter struct {
	w       http.ResponseWriter
	started bool
}

func (s *streamWriter) Write(p []byte) (int, error) {
	if !s.started {
		s.w.Header().Set("Content-Type", "video/mp4")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	return s.w.Write(p)
}

func (a *App) serveArtifact(w http.ResponseWriter, artifact *domain.Artifact) {
	reader, err := a.Service.OpenArtifact(artifact)
	if err != nil {
		a.fail(w, err)
		return
	}
	defer reader.Close()
	w.Header().Set("Content-Type", artifact.MIME)
	w.Header().Set("Content-Length", strconv.FormatInt(artifact.Bytes, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		a.Logger.Warn().Err(err).Str("artifact", artifact.Key).Msg("artifact stream interrupted by client")
	}
}
