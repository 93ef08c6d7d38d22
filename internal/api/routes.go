// Package api exposes the HTTP surface: image uploads, task admission,
// task inspection, and quota introspection.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/halftone-io/halftone/internal/auth"
	"github.com/halftone-io/halftone/internal/images"
	"github.com/halftone-io/halftone/internal/processing"
	"github.com/halftone-io/halftone/internal/quota"
	"github.com/halftone-io/halftone/internal/store"
)

type Server struct {
	images     *images.Service
	processing *processing.Service
	users      store.UserStore
	ledger     *quota.Ledger
	tokens     *auth.TokenIssuer

	maxUploadSize int64
}

func NewServer(imgSvc *images.Service, procSvc *processing.Service, users store.UserStore, ledger *quota.Ledger, tokens *auth.TokenIssuer, maxUploadSize int64) *Server {
	return &Server{
		images:        imgSvc,
		processing:    procSvc,
		users:         users,
		ledger:        ledger,
		tokens:        tokens,
		maxUploadSize: maxUploadSize,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)
	r.Use(requestMetrics)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/users", s.handleRegister)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/images", s.handleUploadImage)
			r.Get("/images", s.handleListImages)
			r.Get("/images/{imageID}", s.handleGetImage)
			r.Get("/images/{imageID}/download", s.handleImageDownloadURL)
			r.Delete("/images/{imageID}", s.handleDeleteImage)

			r.Post("/tasks", s.handleCreateTask)
			r.Get("/tasks", s.handleListTasks)
			r.Get("/tasks/{taskID}", s.handleGetTask)
			r.Get("/tasks/{taskID}/result", s.handleTaskResult)

			r.Get("/quota", s.handleQuota)
		})
	})

	return r
}
