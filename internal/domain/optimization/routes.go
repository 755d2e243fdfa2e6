package optimization

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes mounts the image-optimization endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", healthCheck)
	r.Post("/optimize", h.Optimize)
	r.Post("/batch-optimize", h.BatchOptimize)
	r.Post("/blur-placeholder", h.BlurPlaceholder)
	r.Get("/download/{filename}", func(w http.ResponseWriter, r *http.Request) {
		h.Download(w, r, chi.URLParam(r, "filename"))
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// SSERoutes mounts the progress-subscription endpoint under its own path
// prefix, separate from Routes so cmd/api can apply different middleware
// (SSE responses must not be gzip-compressed or buffered).
func (h *Handler) SSERoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/subscribe/{id}", func(w http.ResponseWriter, r *http.Request) {
		h.SubscribeSSE(w, r, chi.URLParam(r, "id"))
	})

	return r
}
