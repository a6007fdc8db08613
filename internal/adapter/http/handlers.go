package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Strob0t/TrackForge/internal/domain/task"
	"github.com/Strob0t/TrackForge/internal/middleware"
	"github.com/Strob0t/TrackForge/internal/service"
)

// HealthCheck checks one dependency for GET /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Tasks       *service.TaskService
	Attachments *service.AttachmentService
	Checks      []HealthCheck

	// MaxUploadBytes bounds a multipart upload body. Zero means 32 MB.
	MaxUploadBytes int64
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.Checks))
	for _, c := range h.Checks {
		if err := c.Check(ctx); err != nil {
			deps[c.Name] = err.Error()
			status = "degraded"
			continue
		}
		deps[c.Name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "dependencies": deps})
}

// CreateTask handles POST /api/v1/boards/{id}/tasks
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[task.CreateRequest](w, r)
	if !ok {
		return
	}
	req.BoardID = urlParam(r, "id")

	ctx := r.Context()
	d, err := h.Tasks.Create(ctx, middleware.TenantIDFromContext(ctx), middleware.ActorFromContext(ctx), &req)
	if err != nil {
		writeDomainError(w, err, "board not found")
		return
	}
	setETag(w, d.Version)
	writeJSON(w, http.StatusCreated, d)
}

// GetTask handles GET /api/v1/tasks/{id}
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, err := h.Tasks.Get(ctx, middleware.TenantIDFromContext(ctx), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	setETag(w, d.Version)
	writeJSON(w, http.StatusOK, d)
}

// UpdateTask handles PATCH /api/v1/tasks/{id}
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	version, err := ifMatchVersion(r)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	req, ok := readJSON[task.UpdateRequest](w, r)
	if !ok {
		return
	}
	switch {
	case version == nil:
	case req.Version == nil:
		req.Version = version
	case *req.Version != *version:
		writeError(w, http.StatusBadRequest, "If-Match and body version disagree")
		return
	}

	ctx := r.Context()
	d, err := h.Tasks.Update(ctx, middleware.TenantIDFromContext(ctx), urlParam(r, "id"), middleware.ActorFromContext(ctx), &req)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	setETag(w, d.Version)
	writeJSON(w, http.StatusOK, d)
}

// GetTimeline handles GET /api/v1/tasks/{id}/timeline
func (h *Handlers) GetTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	items, err := h.Tasks.Timeline(ctx, middleware.TenantIDFromContext(ctx), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type commentRequest struct {
	Text string `json:"text"`
}

// AddComment handles POST /api/v1/tasks/{id}/comments
func (h *Handlers) AddComment(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[commentRequest](w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	c, err := h.Tasks.AddComment(ctx, middleware.TenantIDFromContext(ctx), urlParam(r, "id"), middleware.ActorFromContext(ctx), req.Text)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func setETag(w http.ResponseWriter, version int) {
	w.Header().Set("ETag", strconv.Quote(strconv.Itoa(version)))
}
