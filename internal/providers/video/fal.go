package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
)

const (
	modelStandard = "fal-ai/veo3"
	modelFast     = "fal-ai/veo3/fast"

	// The provider produces fixed-length clips; duration is not a
	// user-facing knob.
	clipDuration = "8s"
	aspectRatio  = "16:9"

	submitTimeout = 30 * time.Second
	pollTimeout   = 10 * time.Second
)

// FalOptions configures the fal.ai queue client.
type FalOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// FalClient submits generations to the fal.ai queue API and polls
// their status. Every error it returns is classified as transient or
// terminal at this boundary; callers never reinterpret.
type FalClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

func NewFalClient(opts FalOptions) *FalClient {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://queue.fal.run"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &FalClient{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// HasCredentials reports whether the client can perform remote calls.
func (c *FalClient) HasCredentials() bool {
	return c.apiKey != ""
}

type falSubmitPayload struct {
	Prompt      string `json:"prompt"`
	Duration    string `json:"duration"`
	AspectRatio string `json:"aspect_ratio"`
	// The standard and fast models name their audio switch differently;
	// exactly one of these is populated per request.
	GenerateAudio *bool `json:"generate_audio,omitempty"`
	AudioEnabled  *bool `json:"audio_enabled,omitempty"`
}

type falSubmitResponse struct {
	RequestID string `json:"request_id"`
}

type falStatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// falResult holds every field the provider has been observed to return
// a video URL in. extractVideoURL checks them in fixed priority order.
type falResult struct {
	Video struct {
		URL string `json:"url"`
	} `json:"video"`
	VideoURL string `json:"video_url"`
	URL      string `json:"url"`
	Detail   string `json:"detail"`
}

func (c *FalClient) model(fast bool) string {
	if fast {
		return modelFast
	}
	return modelStandard
}

// Submit queues one generation and returns the provider handle.
func (c *FalClient) Submit(ctx context.Context, req SubmitRequest) (Handle, error) {
	if !c.HasCredentials() {
		return Handle{}, domain.E(domain.KindUnavailable, "fal: api key not configured")
	}
	model := c.model(req.UseFastModel)
	payload := falSubmitPayload{
		Prompt:      req.Prompt,
		Duration:    clipDuration,
		AspectRatio: aspectRatio,
	}
	audio := req.EnableAudio
	if req.UseFastModel {
		payload.AudioEnabled = &audio
	} else {
		payload.GenerateAudio = &audio
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Handle{}, domain.Wrap(domain.KindProviderTerminal, err, "fal: encode submit request")
	}

	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	raw, err := c.do(ctx, http.MethodPost, c.baseURL+"/"+model, bytes.NewReader(body))
	if err != nil {
		return Handle{}, err
	}
	var decoded falSubmitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Handle{}, domain.Wrap(domain.KindProviderTerminal, err, "fal: decode submit response")
	}
	if decoded.RequestID == "" {
		return Handle{}, domain.E(domain.KindProviderTerminal, "fal: submit response missing request id")
	}
	c.logger.Debug().Str("model", model).Str("provider_request_id", decoded.RequestID).Msg("fal: request queued")
	return Handle{RequestID: decoded.RequestID, Model: model}, nil
}

// Status polls one queued request and, once the provider reports
// completion, fetches the result payload to resolve the video URL.
func (c *FalClient) Status(ctx context.Context, h Handle) (PollResult, error) {
	if h.RequestID == "" || h.Model == "" {
		return PollResult{}, domain.E(domain.KindProviderTerminal, "fal: empty handle")
	}
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	statusURL := fmt.Sprintf("%s/%s/requests/%s/status", c.baseURL, h.Model, h.RequestID)
	raw, err := c.do(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return PollResult{}, err
	}
	var decoded falStatusResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return PollResult{}, domain.Wrap(domain.KindProviderTerminal, err, "fal: decode status response")
	}

	switch strings.ToUpper(decoded.Status) {
	case "IN_QUEUE":
		return PollResult{Status: StatusQueued}, nil
	case "IN_PROGRESS":
		return PollResult{Status: StatusRunning}, nil
	case "COMPLETED":
		return c.fetchResult(ctx, h)
	case "FAILED", "ERROR":
		reason := decoded.Error
		if reason == "" {
			reason = "generation failed"
		}
		return PollResult{Status: StatusFailed, Reason: reason}, nil
	default:
		return PollResult{}, domain.E(domain.KindProviderTerminal, "fal: unknown status %q", decoded.Status)
	}
}

func (c *FalClient) fetchResult(ctx context.Context, h Handle) (PollResult, error) {
	resultURL := fmt.Sprintf("%s/%s/requests/%s", c.baseURL, h.Model, h.RequestID)
	raw, err := c.do(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return PollResult{}, err
	}
	var result falResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return PollResult{}, domain.Wrap(domain.KindProviderTerminal, err, "fal: decode result response")
	}
	videoURL := extractVideoURL(result)
	if videoURL == "" {
		return PollResult{Status: StatusFailed, Reason: "result contains no video url"}, nil
	}
	return PollResult{Status: StatusCompleted, VideoURL: videoURL}, nil
}

// extractVideoURL resolves the video URL over the known response
// shapes, most specific field first.
func extractVideoURL(result falResult) string {
	if url := strings.TrimSpace(result.Video.URL); url != "" {
		return url
	}
	if url := strings.TrimSpace(result.VideoURL); url != "" {
		return url
	}
	return strings.TrimSpace(result.URL)
}

// do performs one HTTP round trip and classifies every possible
// failure: network and timeout errors, 408, 429 and 5xx responses are
// transient; everything else is terminal.
func (c *FalClient) do(ctx context.Context, method, url string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, domain.Wrap(domain.KindProviderTerminal, err, "fal: build request")
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindProviderTransient, err, "fal: http request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Wrap(domain.KindProviderTransient, err, "fal: read response")
	}
	if resp.StatusCode < 300 {
		return raw, nil
	}

	kind := domain.KindProviderTerminal
	if resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= 500 {
		kind = domain.KindProviderTransient
	}
	// The response body goes to the log only; error messages can end
	// up in client-facing status payloads and must not carry provider
	// internals.
	c.logger.Warn().Int("status", resp.StatusCode).Str("url", url).Str("body", snippet(raw)).Msg("fal: request rejected")
	return nil, domain.E(kind, "fal: provider rejected request (status %d)", resp.StatusCode)
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

var _ Client = (*FalClient)(nil)
