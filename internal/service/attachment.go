package service

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/TrackForge/internal/adapter/otel"
	"github.com/Strob0t/TrackForge/internal/adapter/ws"
	"github.com/Strob0t/TrackForge/internal/domain"
	"github.com/Strob0t/TrackForge/internal/domain/activity"
	"github.com/Strob0t/TrackForge/internal/domain/attachment"
	"github.com/Strob0t/TrackForge/internal/domain/board"
	"github.com/Strob0t/TrackForge/internal/domain/task"
	"github.com/Strob0t/TrackForge/internal/port/blobstore"
	"github.com/Strob0t/TrackForge/internal/port/broadcast"
	"github.com/Strob0t/TrackForge/internal/port/cache"
	"github.com/Strob0t/TrackForge/internal/port/database"
	"github.com/Strob0t/TrackForge/internal/port/messagequeue"
	"github.com/Strob0t/TrackForge/internal/resilience"
	"github.com/Strob0t/TrackForge/internal/workpool"
)

const (
	defaultUploadTimeout = 2 * time.Minute
	defaultResultTTL     = time.Hour
)

// AttachmentConfig bounds the upload pipeline.
type AttachmentConfig struct {
	MaxSize       int64
	UploadTimeout time.Duration
	ResultTTL     time.Duration
}

// UploadRequest is one file to attach to a task.
type UploadRequest struct {
	TenantID    string
	TaskID      string
	ActorID     string
	Name        string
	Title       string
	StatusID    string
	ContentType string
	Data        []byte
}

// AttachmentService runs the attachment lifecycle of tasks. Uploads are
// staged in a per-task registry and return at once; the transfer to the blob
// store happens on the worker pool and commits the attachment in place.
type AttachmentService struct {
	store    database.Store
	blobs    blobstore.Store
	queue    messagequeue.Queue
	hub      broadcast.Broadcaster
	cache    cache.Cache
	pool     *workpool.Pool
	breaker  *resilience.Breaker
	recorder *activity.Recorder
	metrics  *otel.Metrics
	cfg      AttachmentConfig

	mu         sync.Mutex
	registries map[string]*attachment.Registry
}

// NewAttachmentService creates a new AttachmentService. c holds upload
// outcomes and is also used to invalidate cached task details.
func NewAttachmentService(
	store database.Store,
	blobs blobstore.Store,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
	c cache.Cache,
	pool *workpool.Pool,
	breaker *resilience.Breaker,
	recorder *activity.Recorder,
	cfg AttachmentConfig,
) *AttachmentService {
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = defaultUploadTimeout
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = defaultResultTTL
	}
	return &AttachmentService{
		store:      store,
		blobs:      blobs,
		queue:      queue,
		hub:        hub,
		cache:      c,
		pool:       pool,
		breaker:    breaker,
		recorder:   recorder,
		cfg:        cfg,
		registries: make(map[string]*attachment.Registry),
	}
}

// SetMetrics enables metric recording.
func (s *AttachmentService) SetMetrics(m *otel.Metrics) { s.metrics = m }

// upload is the background half of one Upload call.
type upload struct {
	UploadRequest
	tempID  string
	reg     *attachment.Registry
	started time.Time
}

// Upload validates req, stages a pending entry and hands the transfer to
// the worker pool. The returned entry is in the uploading state; its
// outcome is available from Status and is broadcast when it settles.
func (s *AttachmentService) Upload(ctx context.Context, req *UploadRequest) (*attachment.Entry, error) {
	if err := requireCaller(req.TenantID, req.ActorID); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, domain.Invalid("file", "name is required")
	}
	if len(req.Data) == 0 {
		return nil, domain.Invalid("file", "is empty")
	}
	if s.cfg.MaxSize > 0 && int64(len(req.Data)) > s.cfg.MaxSize {
		return nil, domain.Invalid("file", "exceeds %d bytes", s.cfg.MaxSize)
	}

	_, b, err := s.load(ctx, req.TenantID, req.TaskID)
	if err != nil {
		return nil, err
	}

	att := attachment.Attachment{
		Name:     req.Name,
		Title:    req.Title,
		Size:     int64(len(req.Data)),
		StatusID: req.StatusID,
	}
	if col, ok := b.Column(req.StatusID); ok {
		att.StatusName = col.Name
	}

	reg, err := s.registry(ctx, req.TenantID, req.TaskID, b)
	if err != nil {
		return nil, err
	}
	entry := reg.Stage(att)

	job := &upload{UploadRequest: *req, tempID: entry.ID, reg: reg, started: time.Now()}
	if s.metrics != nil {
		s.metrics.UploadsStarted.Add(ctx, 1)
	}
	s.settle(ctx, job, attachment.Outcome{TempID: job.tempID, TaskID: req.TaskID, State: attachment.StateUploading})

	// The transfer outlives the request but keeps its logging values. The
	// deadline starts now, so waiting for a worker counts against it.
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.UploadTimeout)
	s.pool.Go(bg, func(ctx context.Context) {
		defer cancel()
		s.transfer(ctx, job)
	}, func(err error) {
		defer cancel()
		s.fail(context.WithoutCancel(bg), job, s.uploadError(bg, err))
	})

	return &entry, nil
}

// transfer writes the blob and commits the staged entry. ctx carries the
// upload deadline; what happens after the outcome is known runs without it.
func (s *AttachmentService) transfer(ctx context.Context, job *upload) {
	ctx, span := otel.StartUploadSpan(ctx, job.TaskID, job.tempID, int64(len(job.Data)))
	defer span.End()
	done := context.WithoutCancel(ctx)

	fileID := uuid.NewString()
	key := blobKey(job.TenantID, job.TaskID, fileID)
	err := s.breaker.Execute(func() error {
		_, err := s.blobs.Put(ctx, key, job.ContentType, bytes.NewReader(job.Data))
		return err
	})
	if err != nil {
		s.fail(done, job, s.uploadError(ctx, err))
		return
	}
	if err := ctx.Err(); err != nil {
		s.discardBlob(done, key)
		s.fail(done, job, s.uploadError(ctx, err))
		return
	}

	var added activity.Entry
	committed, err := job.reg.Resolve(job.tempID, func(pending attachment.Attachment) (attachment.Attachment, error) {
		att := pending
		att.ID = fileID
		att.URL = FileURL(job.TaskID, fileID)
		added = s.recorder.Attachment(0, job.ActorID, activity.KindAttachmentAdded, att.Name)
		if err := s.store.AddAttachment(ctx, job.TenantID, job.TaskID, &att, &added); err != nil {
			return attachment.Attachment{}, err
		}
		return att, nil
	})
	if err != nil {
		s.discardBlob(done, key)
		if errors.Is(err, attachment.ErrEntryGone) {
			slog.InfoContext(done, "upload finished after its entry was removed", "temp_id", job.tempID)
			s.settle(done, job, attachment.Outcome{
				TempID: job.tempID,
				TaskID: job.TaskID,
				State:  attachment.StateFailed,
				Error:  "attachment was removed before the upload finished",
			})
			s.release(job)
			return
		}
		s.fail(done, job, s.uploadError(ctx, err))
		return
	}

	invalidateDetail(done, s.cache, job.TenantID, job.TaskID)
	if s.metrics != nil {
		s.metrics.UploadsCommitted.Add(done, 1)
		s.metrics.UploadDuration.Record(done, time.Since(job.started).Seconds())
		s.metrics.RecordActivity(done, string(added.Kind))
	}
	slog.InfoContext(done, "attachment committed", "task_id", job.TaskID, "attachment_id", fileID, "size", committed.Size)

	s.settle(done, job, attachment.Outcome{
		TempID:     job.tempID,
		TaskID:     job.TaskID,
		State:      attachment.StateCommitted,
		Attachment: &committed.Attachment,
	})
	s.hub.BroadcastEvent(done, job.TenantID, ws.EventTaskActivity, ws.TaskActivityEvent{
		TaskID:  job.TaskID,
		Entries: []activity.Entry{added},
	})
	s.release(job)
}

// uploadError reports a transfer that ended with err. A passed upload
// deadline wins over whatever error the interrupted step returned.
func (s *AttachmentService) uploadError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", domain.ErrUploadTimeout, s.cfg.UploadTimeout)
	}
	return fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
}

// fail drops the staged entry and records a retryable outcome. No audit
// entry is written for a failed upload.
func (s *AttachmentService) fail(ctx context.Context, job *upload, err error) {
	job.reg.Fail(job.tempID)
	if s.metrics != nil {
		s.metrics.UploadsFailed.Add(ctx, 1)
	}
	slog.WarnContext(ctx, "attachment upload failed", "task_id", job.TaskID, "temp_id", job.tempID, "error", err)

	s.settle(ctx, job, attachment.Outcome{
		TempID:    job.tempID,
		TaskID:    job.TaskID,
		State:     attachment.StateFailed,
		Error:     err.Error(),
		Retryable: true,
	})
	s.release(job)
}

// settle stores an outcome and announces it.
func (s *AttachmentService) settle(ctx context.Context, job *upload, out attachment.Outcome) {
	if data, err := json.Marshal(out); err == nil {
		if err := s.cache.Set(ctx, outcomeKey(job.TenantID, job.tempID), data, s.cfg.ResultTTL); err != nil {
			slog.WarnContext(ctx, "store upload outcome", "temp_id", job.tempID, "error", err)
		}
	}

	payload := messagequeue.AttachmentPayload{
		TenantID: job.TenantID,
		TaskID:   job.TaskID,
		TempID:   job.tempID,
		State:    string(out.State),
		Error:    out.Error,
	}
	if out.Attachment != nil {
		payload.AttachmentID = out.Attachment.ID
	}
	publish(ctx, s.queue, messagequeue.SubjectTaskAttachments, payload)
	s.hub.BroadcastEvent(ctx, job.TenantID, ws.EventAttachmentStatus, ws.AttachmentStatusEvent{
		TaskID:  job.TaskID,
		Outcome: out,
	})
}

// Status reports the outcome of an upload without blocking.
func (s *AttachmentService) Status(ctx context.Context, tenantID, taskID, tempID string) (*attachment.Outcome, error) {
	if err := domain.RequireTenant(tenantID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	reg := s.registries[registryKey(tenantID, taskID)]
	s.mu.Unlock()
	if reg != nil {
		if e, ok := reg.Lookup(tempID); ok && e.State == attachment.StateUploading {
			return &attachment.Outcome{TempID: tempID, TaskID: taskID, State: attachment.StateUploading}, nil
		}
	}

	data, ok, err := s.cache.Get(ctx, outcomeKey(tenantID, tempID))
	if err != nil {
		return nil, fmt.Errorf("load upload outcome: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("upload %s: %w", tempID, domain.ErrNotFound)
	}
	var out attachment.Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode upload outcome: %w", err)
	}
	if out.TaskID != taskID {
		return nil, fmt.Errorf("upload %s: %w", tempID, domain.ErrNotFound)
	}
	return &out, nil
}

// List returns stored and pending attachments of a task grouped by status.
// Stored attachments are read fresh; the registry only adds what is still
// uploading.
func (s *AttachmentService) List(ctx context.Context, tenantID, taskID string) ([]attachment.Group, error) {
	// Pending entries are taken before the load: one that commits in
	// between is then found in the store and dropped from the pending set.
	var pending []attachment.Entry
	s.mu.Lock()
	if reg := s.registries[registryKey(tenantID, taskID)]; reg != nil {
		pending = reg.PendingEntries()
	}
	s.mu.Unlock()

	t, b, err := s.load(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}

	entries := attachment.Committed(t.Attachments)
	if len(pending) > 0 {
		stored := make(map[int64]bool, len(entries))
		for i := range entries {
			stored[entries[i].Position] = true
		}
		for _, e := range pending {
			if !stored[e.Position] {
				entries = append(entries, e)
			}
		}
		slices.SortStableFunc(entries, func(a, b attachment.Entry) int {
			return cmp.Compare(a.Position, b.Position)
		})
	}
	return attachment.Groups(entries, b.IsLive), nil
}

// Remove deletes the index-th attachment of a status group. A committed
// attachment is deleted from the store with an attachment_removed entry and
// its blob is discarded; a pending one is only dropped locally, and its
// transfer result is ignored when it arrives.
func (s *AttachmentService) Remove(ctx context.Context, tenantID, taskID, actorID, statusID string, index int) (*attachment.Entry, error) {
	if err := requireCaller(tenantID, actorID); err != nil {
		return nil, err
	}
	if index < 0 {
		return nil, domain.Invalid("index", "must not be negative")
	}

	_, b, err := s.load(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}

	reg, err := s.registry(ctx, tenantID, taskID, b)
	if err != nil {
		return nil, err
	}

	var removed activity.Entry
	e, err := reg.Remove(statusID, index, func(e attachment.Entry) error {
		removed = s.recorder.Attachment(0, actorID, activity.KindAttachmentRemoved, e.Name)
		return s.store.RemoveAttachment(ctx, tenantID, taskID, e.ID, &removed)
	})
	s.releaseRegistry(tenantID, taskID, reg)
	if err != nil {
		return nil, err
	}

	if e.State != attachment.StateCommitted {
		slog.InfoContext(ctx, "pending attachment dropped", "task_id", taskID, "temp_id", e.ID)
		return &e, nil
	}

	s.discardBlob(ctx, blobKey(tenantID, taskID, e.ID))
	invalidateDetail(ctx, s.cache, tenantID, taskID)
	if s.metrics != nil {
		s.metrics.RecordActivity(ctx, string(removed.Kind))
	}
	publish(ctx, s.queue, messagequeue.SubjectTaskAttachments, messagequeue.AttachmentPayload{
		TenantID:     tenantID,
		TaskID:       taskID,
		AttachmentID: e.ID,
		State:        "removed",
	})
	s.hub.BroadcastEvent(ctx, tenantID, ws.EventTaskActivity, ws.TaskActivityEvent{
		TaskID:  taskID,
		Entries: []activity.Entry{removed},
	})
	return &e, nil
}

// Open streams the stored file of a committed attachment.
func (s *AttachmentService) Open(ctx context.Context, tenantID, taskID, fileID string) (io.ReadCloser, *blobstore.Info, *attachment.Attachment, error) {
	t, _, err := s.load(ctx, tenantID, taskID)
	if err != nil {
		return nil, nil, nil, err
	}
	for i := range t.Attachments {
		if t.Attachments[i].ID != fileID {
			continue
		}
		rc, info, err := s.blobs.Get(ctx, blobKey(tenantID, taskID, fileID))
		if err != nil {
			return nil, nil, nil, err
		}
		return rc, info, &t.Attachments[i], nil
	}
	return nil, nil, nil, fmt.Errorf("attachment %s: %w", fileID, domain.ErrNotFound)
}

// Wait blocks until all background transfers have settled.
func (s *AttachmentService) Wait() {
	s.pool.Wait()
}

func (s *AttachmentService) load(ctx context.Context, tenantID, taskID string) (*task.Task, *board.Board, error) {
	if err := domain.RequireTenant(tenantID); err != nil {
		return nil, nil, err
	}
	t, err := s.store.GetTask(ctx, tenantID, taskID)
	if err != nil {
		return nil, nil, err
	}
	b, err := s.store.GetBoard(ctx, tenantID, t.BoardID)
	if err != nil {
		return nil, nil, err
	}
	return t, b, nil
}

// registry returns the live registry of a task. A new one is seeded from
// the attachments stored now, read under s.mu: an upload that committed and
// released its registry after the caller's load is then part of the seed.
func (s *AttachmentService) registry(ctx context.Context, tenantID, taskID string, b *board.Board) (*attachment.Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := registryKey(tenantID, taskID)
	if reg, ok := s.registries[key]; ok {
		return reg, nil
	}
	t, err := s.store.GetTask(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	reg := attachment.NewRegistry(t.Attachments, b.IsLive)
	s.registries[key] = reg
	return reg, nil
}

func (s *AttachmentService) release(job *upload) {
	s.releaseRegistry(job.TenantID, job.TaskID, job.reg)
}

// releaseRegistry forgets reg once nothing is pending, so the next call
// starts again from the stored attachments.
func (s *AttachmentService) releaseRegistry(tenantID, taskID string, reg *attachment.Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := registryKey(tenantID, taskID)
	if s.registries[key] == reg && reg.Pending() == 0 {
		delete(s.registries, key)
	}
}

func (s *AttachmentService) discardBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		slog.WarnContext(ctx, "discard attachment blob", "key", key, "error", err)
	}
}

// FileURL is the API path serving the contents of an attachment.
func FileURL(taskID, fileID string) string {
	return "/api/v1/tasks/" + taskID + "/files/" + fileID
}

func blobKey(tenantID, taskID, fileID string) string {
	return tenantID + "/" + taskID + "/" + fileID
}

func outcomeKey(tenantID, tempID string) string {
	return "upload." + tenantID + "." + tempID
}

func registryKey(tenantID, taskID string) string {
	return tenantID + "/" + taskID
}
