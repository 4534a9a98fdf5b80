package video

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"server/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *FalClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFalClient(FalOptions{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
}

func TestSubmitStandardModelUsesGenerateAudio(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"request_id": "req-1"})
	})

	handle, err := client.Submit(context.Background(), SubmitRequest{Prompt: "cook", EnableAudio: true})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if handle.RequestID != "req-1" || handle.Model != modelStandard {
		t.Fatalf("handle = %+v", handle)
	}
	if gotPath != "/"+modelStandard {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody["generate_audio"] != true {
		t.Fatalf("generate_audio = %v, want true", gotBody["generate_audio"])
	}
	if _, present := gotBody["audio_enabled"]; present {
		t.Fatal("audio_enabled should not be sent to the standard model")
	}
	if gotBody["duration"] != clipDuration {
		t.Fatalf("duration = %v, want %q", gotBody["duration"], clipDuration)
	}
}

func TestSubmitFastModelUsesAudioEnabled(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"request_id": "req-2"})
	})

	handle, err := client.Submit(context.Background(), SubmitRequest{Prompt: "cook", UseFastModel: true, EnableAudio: false})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if handle.Model != modelFast {
		t.Fatalf("model = %q, want %q", handle.Model, modelFast)
	}
	if gotPath != "/"+modelFast {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody["audio_enabled"] != false {
		t.Fatalf("audio_enabled = %v, want false", gotBody["audio_enabled"])
	}
	if _, present := gotBody["generate_audio"]; present {
		t.Fatal("generate_audio should not be sent to the fast model")
	}
}

func TestSubmitWithoutCredentials(t *testing.T) {
	client := NewFalClient(FalOptions{})
	_, err := client.Submit(context.Background(), SubmitRequest{Prompt: "cook"})
	if domain.KindOf(err) != domain.KindUnavailable {
		t.Fatalf("error = %v, want unavailable", err)
	}
}

func TestSubmitErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   domain.Kind
	}{
		{"rate limited", http.StatusTooManyRequests, domain.KindProviderTransient},
		{"server error", http.StatusBadGateway, domain.KindProviderTransient},
		{"bad request", http.StatusUnprocessableEntity, domain.KindProviderTerminal},
		{"unauthorized", http.StatusUnauthorized, domain.KindProviderTerminal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})
			_, err := client.Submit(context.Background(), SubmitRequest{Prompt: "cook"})
			if domain.KindOf(err) != tc.want {
				t.Fatalf("kind = %v, want %v (err: %v)", domain.KindOf(err), tc.want, err)
			}
		})
	}
}

func TestRejectionErrorOmitsResponseBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"internal diagnostic abc123"}`))
	})
	_, err := client.Submit(context.Background(), SubmitRequest{Prompt: "cook"})
	if err == nil {
		t.Fatal("Submit should fail on 401")
	}
	if strings.Contains(err.Error(), "abc123") {
		t.Fatalf("error carries the provider response body: %v", err)
	}
	if !strings.Contains(err.Error(), "401") {
		t.Fatalf("error should name the status code: %v", err)
	}
}

func TestStatusMapsProviderStates(t *testing.T) {
	cases := []struct {
		provider string
		want     Status
	}{
		{"IN_QUEUE", StatusQueued},
		{"IN_PROGRESS", StatusRunning},
	}
	for _, tc := range cases {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"status": tc.provider})
		})
		result, err := client.Status(context.Background(), Handle{RequestID: "req-1", Model: modelStandard})
		if err != nil {
			t.Fatalf("Status(%s) returned error: %v", tc.provider, err)
		}
		if result.Status != tc.want {
			t.Fatalf("Status(%s) = %v, want %v", tc.provider, result.Status, tc.want)
		}
	}
}

func TestStatusCompletedFetchesResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/" + modelStandard + "/requests/req-1/status":
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "COMPLETED"})
		case "/" + modelStandard + "/requests/req-1":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"video": map[string]string{"url": "https://cdn.example.com/out.mp4"},
			})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	result, err := client.Status(context.Background(), Handle{RequestID: "req-1", Model: modelStandard})
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if result.Status != StatusCompleted || result.VideoURL != "https://cdn.example.com/out.mp4" {
		t.Fatalf("result = %+v", result)
	}
}

func TestStatusFailedCarriesReason(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "FAILED", "error": "content policy"})
	})
	result, err := client.Status(context.Background(), Handle{RequestID: "req-1", Model: modelStandard})
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if result.Status != StatusFailed || result.Reason != "content policy" {
		t.Fatalf("result = %+v", result)
	}
}

func TestExtractVideoURLPriorityOrder(t *testing.T) {
	full := falResult{VideoURL: "second", URL: "third"}
	full.Video.URL = "first"
	if got := extractVideoURL(full); got != "first" {
		t.Fatalf("extractVideoURL = %q, want first", got)
	}

	noNested := falResult{VideoURL: "second", URL: "third"}
	if got := extractVideoURL(noNested); got != "second" {
		t.Fatalf("extractVideoURL = %q, want second", got)
	}

	onlyFlat := falResult{URL: "third"}
	if got := extractVideoURL(onlyFlat); got != "third" {
		t.Fatalf("extractVideoURL = %q, want third", got)
	}

	if got := extractVideoURL(falResult{}); got != "" {
		t.Fatalf("extractVideoURL = %q, want empty", got)
	}
}

func TestStatusCompletedWithoutURLIsFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/" + modelStandard + "/requests/req-1/status":
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "COMPLETED"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{})
		}
	})
	result, err := client.Status(context.Background(), Handle{RequestID: "req-1", Model: modelStandard})
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if result.Status != StatusFailed {
		t.Fatalf("result = %+v, want failed", result)
	}
}
