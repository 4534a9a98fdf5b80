package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/infra"
	"server/internal/middleware"
)

func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/videos", func(r chi.Router) {
		r.With(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)).Post("/", app.VideosGenerate)
		r.With(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)).Post("/async", app.VideosGenerateAsync)
		r.With(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)).Post("/stream", app.VideosStream)
		r.Get("/{id}/status", app.VideoStatus)
		r.Get("/{id}/download", app.VideoDownload)
	})

	return r
}
