package api

import (
	"net/http"
	"time"

	"sar-colorizer/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	AssetPaths   []string
	AssetProxy   http.Handler
	RequestLimit time.Duration
}

func NewRouter(backend *BackendService, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		WriteJsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	limit := cfg.RequestLimit
	if limit <= 0 {
		limit = 60 * time.Second
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(limit))
		backend.AddRoutes(r)
	})

	if cfg.AssetProxy != nil {
		MountAssetProxy(r, cfg.AssetPaths, cfg.AssetProxy)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, CodedErrorf(http.StatusNotFound, "not found"))
	})

	return r
}
