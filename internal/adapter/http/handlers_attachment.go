package http

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/Strob0t/TrackForge/internal/middleware"
	"github.com/Strob0t/TrackForge/internal/service"
)

const (
	defaultMaxUploadBytes = 32 << 20
	multipartMemory       = 8 << 20
)

// UploadAttachment handles POST /api/v1/tasks/{id}/attachments
//
// The multipart form carries the file in "file" and optional "title" and
// "status_id" fields. The response is 202 with the pending entry; the
// outcome is polled from the uploads endpoint or pushed over the WebSocket.
func (h *Handlers) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck // temp files are best-effort

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if int64(len(data)) > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	ctx := r.Context()
	entry, err := h.Attachments.Upload(ctx, &service.UploadRequest{
		TenantID:    middleware.TenantIDFromContext(ctx),
		TaskID:      urlParam(r, "id"),
		ActorID:     middleware.ActorFromContext(ctx),
		Name:        header.Filename,
		Title:       r.FormValue("title"),
		StatusID:    r.FormValue("status_id"),
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusAccepted, entry)
}

// ListAttachments handles GET /api/v1/tasks/{id}/attachments
func (h *Handlers) ListAttachments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groups, err := h.Attachments.List(ctx, middleware.TenantIDFromContext(ctx), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// GetUploadStatus handles GET /api/v1/tasks/{id}/uploads/{tempID}
func (h *Handlers) GetUploadStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out, err := h.Attachments.Status(ctx, middleware.TenantIDFromContext(ctx), urlParam(r, "id"), urlParam(r, "tempID"))
	if err != nil {
		writeDomainError(w, err, "upload not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// RemoveAttachment handles DELETE /api/v1/tasks/{id}/attachments/{statusID}/{index}
func (h *Handlers) RemoveAttachment(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(urlParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}

	ctx := r.Context()
	e, err := h.Attachments.Remove(ctx, middleware.TenantIDFromContext(ctx), urlParam(r, "id"),
		middleware.ActorFromContext(ctx), urlParam(r, "statusID"), index)
	if err != nil {
		writeDomainError(w, err, "attachment not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DownloadFile handles GET /api/v1/tasks/{id}/files/{fileID}
func (h *Handlers) DownloadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc, info, att, err := h.Attachments.Open(ctx, middleware.TenantIDFromContext(ctx), urlParam(r, "id"), urlParam(r, "fileID"))
	if err != nil {
		writeDomainError(w, err, "file not found")
		return
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Name}))
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.WarnContext(ctx, "file download interrupted", "file_id", att.ID, "error", err)
	}
}
