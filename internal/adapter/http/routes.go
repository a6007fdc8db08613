package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/TrackForge/internal/middleware"
	"github.com/Strob0t/TrackForge/internal/port/cache"
)

// Guards are the optional per-tenant protections of the API group. Zero
// values disable the respective middleware.
type Guards struct {
	Limiter        *middleware.RateLimiter
	Idempotency    cache.Cache
	IdempotencyTTL time.Duration
}

// MountRoutes registers all API routes on the given chi router. The
// WebSocket endpoint resolves its tenant itself and is mounted by the caller.
func MountRoutes(r chi.Router, h *Handlers, g Guards) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.TenantID)
		r.Use(middleware.Actor)
		if g.Limiter != nil {
			r.Use(g.Limiter.Handler)
		}
		r.Use(middleware.RequireActor)
		if g.Idempotency != nil {
			r.Use(middleware.Idempotency(g.Idempotency, g.IdempotencyTTL))
		}

		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Tasks
		r.Post("/boards/{id}/tasks", h.CreateTask)
		r.Get("/tasks/{id}", h.GetTask)
		r.Patch("/tasks/{id}", h.UpdateTask)
		r.Get("/tasks/{id}/timeline", h.GetTimeline)
		r.Post("/tasks/{id}/comments", h.AddComment)

		// Attachments
		r.Get("/tasks/{id}/attachments", h.ListAttachments)
		r.Post("/tasks/{id}/attachments", h.UploadAttachment)
		r.Delete("/tasks/{id}/attachments/{statusID}/{index}", h.RemoveAttachment)
		r.Get("/tasks/{id}/uploads/{tempID}", h.GetUploadStatus)
		r.Get("/tasks/{id}/files/{fileID}", h.DownloadFile)
	})
}
