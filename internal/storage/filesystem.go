// Package storage persists generated videos onto the local filesystem
// and streams them back out. Remote bytes are always copied through a
// bounded buffer; a whole video is never held in memory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
)

const (
	videoMIME = "video/mp4"
	videoDir  = "videos"

	downloadTimeout = 120 * time.Second
)

// FileStore is the artifact store rooted at a local base path.
type FileStore struct {
	basePath   string
	httpClient *http.Client
	logger     *infra.Logger
}

// Options configures a FileStore.
type Options struct {
	BasePath   string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// NewFileStore initializes a FileStore rooted at the configured base
// path, creating it if needed.
func NewFileStore(opts Options) (*FileStore, error) {
	basePath := strings.TrimSpace(opts.BasePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(filepath.Join(basePath, videoDir), 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
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
	return &FileStore{basePath: basePath, httpClient: httpClient, logger: logger}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	return s.basePath
}

// Download streams the remote video into a uniquely named local file
// and returns the artifact. The copy goes through a temp file that is
// renamed only on success, so an interrupted transfer never leaves a
// partial artifact behind.
func (s *FileStore) Download(ctx context.Context, videoURL string) (*domain.Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	resp, err := s.get(ctx, videoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	key := fmt.Sprintf("%s/%s-%d.mp4", videoDir, uuid.NewString(), time.Now().Unix())
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".download-*")
	if err != nil {
		return nil, domain.Wrap(domain.KindStoreIOFailure, err, "storage: create temp file")
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		if err == nil {
			err = closeErr
		}
		return nil, domain.Wrap(domain.KindStoreInterrupted, err, "storage: transfer interrupted")
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, domain.Wrap(domain.KindStoreIOFailure, err, "storage: finalize artifact")
	}

	s.logger.Info().Str("key", key).Int64("bytes", written).Msg("storage: artifact downloaded")
	return &domain.Artifact{
		Key:       key,
		Path:      fullPath,
		Bytes:     written,
		MIME:      videoMIME,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Open returns a sequential read handle on a stored artifact. Reading
// never mutates or deletes the artifact.
func (s *FileStore) Open(artifact *domain.Artifact) (io.ReadCloser, error) {
	if artifact == nil {
		return nil, domain.E(domain.KindStoreNotFound, "storage: nil artifact")
	}
	f, err := os.Open(artifact.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.Wrap(domain.KindStoreNotFound, err, "storage: artifact missing")
		}
		return nil, domain.Wrap(domain.KindStoreIOFailure, err, "storage: open artifact")
	}
	return f, nil
}

// Remove deletes a stored artifact. Used by retention eviction.
func (s *FileStore) Remove(artifact *domain.Artifact) error {
	if artifact == nil {
		return nil
	}
	if err := os.Remove(artifact.Path); err != nil && !os.IsNotExist(err) {
		return domain.Wrap(domain.KindStoreIOFailure, err, "storage: remove artifact")
	}
	return nil
}

// Passthrough proxies remote video bytes directly to w without
// touching local storage. If the remote side fails mid-stream the
// partial copy error is returned so the caller can abort its
// connection; nothing is persisted either way.
func (s *FileStore) Passthrough(ctx context.Context, videoURL string, w io.Writer) error {
	resp, err := s.get(ctx, videoURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Error().Err(err).Str("url", videoURL).Msg("storage: passthrough aborted mid-stream")
		return domain.Wrap(domain.KindStoreInterrupted, err, "storage: passthrough interrupted")
	}
	return nil
}

func (s *FileStore) get(ctx context.Context, videoURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return nil, domain.Wrap(domain.KindStoreIOFailure, err, "storage: build download request")
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindStoreIOFailure, err, "storage: fetch remote video")
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		resp.Body.Close()
		return nil, domain.E(domain.KindStoreNotFound, "storage: remote video missing (status %d)", resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, domain.E(domain.KindStoreIOFailure, "storage: remote fetch failed (status %d)", resp.StatusCode)
	}
	return resp, nil
}
