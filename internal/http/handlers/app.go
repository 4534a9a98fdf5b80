package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"server/internal/domain"
	"server/internal/generation"
	"server/internal/infra"
)

type App struct {
	Service *generation.Service
	Logger  infra.Logger
}

func NewApp(service *generation.Service, logger infra.Logger) *App {
	return &App{Service: service, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
	Details string `json:"details,omitempty"`
}

func (a *App) error(w http.ResponseWriter, code int, msg, details string) {
	a.json(w, code, errorBody{Error: msg, Success: false, Details: details})
}

// fail maps a classified error onto a status code and a sanitized
// body. Internal detail stays in the log; the client only sees the
// kind and a short message.
func (a *App) fail(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	a.Logger.Error().Err(err).Str("kind", string(kind)).Msg("request failed")
	switch kind {
	case domain.KindInvalidRequest:
		a.error(w, http.StatusBadRequest, "invalid request", userMessage(err))
	case domain.KindUnavailable:
		a.error(w, http.StatusServiceUnavailable, "video generation unavailable", "")
	case domain.KindTimeout:
		a.error(w, http.StatusGatewayTimeout, "generation timed out", "")
	case domain.KindStoreNotFound:
		a.error(w, http.StatusNotFound, "video not found", "")
	default:
		a.error(w, http.StatusInternalServerError, "video generation failed", "")
	}
}

// userMessage extracts the classified message without any wrapped
// internals. Only used for client-caused errors.
func userMessage(err error) string {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return derr.Msg
	}
	return ""
}
