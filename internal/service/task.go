package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Strob0t/TrackForge/internal/adapter/otel"
	"github.com/Strob0t/TrackForge/internal/adapter/ws"
	"github.com/Strob0t/TrackForge/internal/domain"
	"github.com/Strob0t/TrackForge/internal/domain/activity"
	"github.com/Strob0t/TrackForge/internal/domain/attachment"
	"github.com/Strob0t/TrackForge/internal/domain/board"
	"github.com/Strob0t/TrackForge/internal/domain/task"
	"github.com/Strob0t/TrackForge/internal/domain/timeline"
	"github.com/Strob0t/TrackForge/internal/port/broadcast"
	"github.com/Strob0t/TrackForge/internal/port/cache"
	"github.com/Strob0t/TrackForge/internal/port/database"
	"github.com/Strob0t/TrackForge/internal/port/messagequeue"
)

const defaultMaxCommentLength = 10000

// TaskService orchestrates task creation, partial updates and reads. Every
// committed mutation invalidates the cached detail, is published to NATS
// and is pushed to the tenant's WebSocket clients.
type TaskService struct {
	store    database.Store
	queue    messagequeue.Queue
	hub      broadcast.Broadcaster
	detector *task.Detector
	recorder *activity.Recorder

	cache      cache.Cache
	cacheTTL   time.Duration
	metrics    *otel.Metrics
	maxComment int
}

// NewTaskService creates a new TaskService.
func NewTaskService(store database.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, detector *task.Detector, recorder *activity.Recorder) *TaskService {
	return &TaskService{
		store:      store,
		queue:      queue,
		hub:        hub,
		detector:   detector,
		recorder:   recorder,
		maxComment: defaultMaxCommentLength,
	}
}

// SetCache enables caching of resolved task details.
func (s *TaskService) SetCache(c cache.Cache, ttl time.Duration) {
	s.cache = c
	s.cacheTTL = ttl
}

// SetMetrics enables metric recording.
func (s *TaskService) SetMetrics(m *otel.Metrics) { s.metrics = m }

// SetMaxCommentLength bounds comment text in bytes.
func (s *TaskService) SetMaxCommentLength(n int) {
	if n > 0 {
		s.maxComment = n
	}
}

// Create validates req, issues the next sequence id of the board and stores
// the task together with its created entry.
func (s *TaskService) Create(ctx context.Context, tenantID, actorID string, req *task.CreateRequest) (*task.Detail, error) {
	if err := requireCaller(tenantID, actorID); err != nil {
		return nil, err
	}
	if err := task.ValidateCreateRequest(req); err != nil {
		return nil, err
	}

	b, err := s.store.GetBoard(ctx, tenantID, req.BoardID)
	if err != nil {
		return nil, err
	}

	column := req.ColumnID
	switch {
	case column == "":
		column = b.DefaultColumn()
	case !b.IsLive(column):
		return nil, domain.Invalid("column_id", "is not a column of board %s", b.ID)
	}
	priority := req.Priority
	if priority == "" {
		priority = task.PriorityMedium
	}

	t := &task.Task{
		TenantID:    tenantID,
		BoardID:     b.ID,
		ColumnID:    column,
		Title:       req.Title,
		Description: req.Description,
		Priority:    priority,
		DueDate:     req.DueDate,
		StartDate:   req.StartDate,
		Assignees:   nonNil(req.Assignees),
		ClientID:    strings.TrimSpace(req.ClientID),
		Agents:      req.Agents,
		Labels:      nonNil(req.Labels),
		SortOrder:   req.SortOrder,
	}
	created := s.recorder.Created(actorID, t.Title)
	if err := s.store.CreateTask(ctx, t, created); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	if s.metrics != nil {
		s.metrics.TasksCreated.Add(ctx, 1)
		s.metrics.RecordActivity(ctx, string(activity.KindCreated))
	}
	slog.InfoContext(ctx, "task created", "task_id", t.ID, "sequence_id", t.SequenceID, "board_id", b.ID)

	s.publish(ctx, messagequeue.SubjectTaskCreated, messagequeue.TaskCreatedPayload{
		TenantID:   tenantID,
		TaskID:     t.ID,
		BoardID:    b.ID,
		SequenceID: t.SequenceID,
		Title:      t.Title,
		ActorID:    actorID,
	})
	s.hub.BroadcastEvent(ctx, tenantID, ws.EventTaskCreated, ws.TaskCreatedEvent{
		TaskID:     t.ID,
		BoardID:    b.ID,
		SequenceID: t.SequenceID,
		Title:      t.Title,
		ActorID:    actorID,
	})

	return s.resolve(ctx, t, b)
}

// Update applies a partial update. Each semantically changed field yields
// one audit entry; the new snapshot and the entries are committed together
// or not at all. A request that changes nothing writes nothing.
func (s *TaskService) Update(ctx context.Context, tenantID, taskID, actorID string, req *task.UpdateRequest) (*task.Detail, error) {
	ctx, span := otel.StartTaskSpan(ctx, "task.update", tenantID, taskID)
	defer span.End()

	if err := requireCaller(tenantID, actorID); err != nil {
		return nil, err
	}
	if err := task.ValidateUpdateRequest(req); err != nil {
		return nil, err
	}

	current, err := s.store.GetTask(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	if req.Version != nil && *req.Version != current.Version {
		s.conflict(ctx)
		return nil, fmt.Errorf("update task %s at version %d (current %d): %w",
			taskID, *req.Version, current.Version, domain.ErrConflict)
	}

	b, err := s.store.GetBoard(ctx, tenantID, current.BoardID)
	if err != nil {
		return nil, err
	}
	// Re-sending the current column is allowed even after it was deleted.
	if req.ColumnID.Set && req.ColumnID.Value != current.ColumnID && !b.IsLive(req.ColumnID.Value) {
		return nil, domain.Invalid("column_id", "is not a column of board %s", b.ID)
	}

	changes := s.detector.Detect(current, req)
	next := *current
	req.Apply(&next)
	next.ClientID = strings.TrimSpace(next.ClientID)
	if len(changes) == 0 && samePersisted(current, &next) {
		return s.resolve(ctx, current, b)
	}

	entries := s.recorder.Record(len(current.Activity), actorID, changes)
	if err := s.store.UpdateTask(ctx, &next, entries); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.conflict(ctx)
		}
		return nil, err
	}

	s.invalidate(ctx, tenantID, taskID)
	if s.metrics != nil {
		s.metrics.TaskUpdates.Add(ctx, 1)
		for _, e := range entries {
			s.metrics.RecordActivity(ctx, string(e.Kind))
		}
	}
	slog.InfoContext(ctx, "task updated", "task_id", taskID, "version", next.Version, "changes", len(entries))

	s.publish(ctx, messagequeue.SubjectTaskUpdated, messagequeue.TaskUpdatedPayload{
		TenantID: tenantID,
		TaskID:   taskID,
		Version:  next.Version,
		ActorID:  actorID,
		Entries:  nonNil(entries),
	})
	if len(entries) > 0 {
		s.hub.BroadcastEvent(ctx, tenantID, ws.EventTaskActivity, ws.TaskActivityEvent{
			TaskID:  taskID,
			Version: next.Version,
			Entries: entries,
		})
	}

	return s.resolve(ctx, &next, b)
}

// Get returns the resolved detail of a task, served from the cache when possible.
func (s *TaskService) Get(ctx context.Context, tenantID, taskID string) (*task.Detail, error) {
	if err := domain.RequireTenant(tenantID); err != nil {
		return nil, err
	}

	key := detailKey(tenantID, taskID)
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var d task.Detail
			if err := json.Unmarshal(data, &d); err == nil {
				return &d, nil
			}
			slog.WarnContext(ctx, "corrupt cached task detail", "task_id", taskID)
		}
	}

	t, err := s.store.GetTask(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	b, err := s.store.GetBoard(ctx, tenantID, t.BoardID)
	if err != nil {
		return nil, err
	}
	d, err := s.resolve(ctx, t, b)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(d); err == nil {
			if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
				slog.WarnContext(ctx, "cache task detail", "task_id", taskID, "error", err)
			}
		}
	}
	return d, nil
}

// Timeline returns comments and audit entries of a task as one chronological list.
func (s *TaskService) Timeline(ctx context.Context, tenantID, taskID string) ([]timeline.Item, error) {
	d, err := s.Get(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	return timeline.Of(&d.Task), nil
}

// AddComment appends an immutable comment to a task.
func (s *TaskService) AddComment(ctx context.Context, tenantID, taskID, authorID, text string) (*task.Comment, error) {
	if err := requireCaller(tenantID, authorID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.Invalid("text", "is required")
	}
	if len(text) > s.maxComment {
		return nil, domain.Invalid("text", "exceeds %d characters", s.maxComment)
	}

	c := &task.Comment{AuthorID: authorID, Text: text, CreatedAt: s.recorder.Now()}
	if err := s.store.AddComment(ctx, tenantID, taskID, c); err != nil {
		return nil, err
	}

	s.invalidate(ctx, tenantID, taskID)
	s.hub.BroadcastEvent(ctx, tenantID, ws.EventTaskComment, ws.TaskCommentEvent{TaskID: taskID, Comment: *c})
	return c, nil
}

// StartInvalidation drops cached details when any instance publishes a
// change to a task. The returned function stops the subscriptions.
func (s *TaskService) StartInvalidation(ctx context.Context) (func(), error) {
	if s.cache == nil {
		return func() {}, nil
	}

	handler := func(ctx context.Context, _ string, data []byte) error {
		var ref struct {
			TenantID string `json:"tenant_id"`
			TaskID   string `json:"task_id"`
		}
		if err := json.Unmarshal(data, &ref); err != nil {
			return fmt.Errorf("decode task reference: %w", err)
		}
		return s.cache.Delete(ctx, detailKey(ref.TenantID, ref.TaskID))
	}

	var stops []func()
	stopAll := func() {
		for _, stop := range stops {
			stop()
		}
	}
	for _, subject := range []string{messagequeue.SubjectTaskUpdated, messagequeue.SubjectTaskAttachments} {
		stop, err := s.queue.Subscribe(ctx, subject, handler)
		if err != nil {
			stopAll()
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		stops = append(stops, stop)
	}
	return stopAll, nil
}

// resolve expands display references of t.
func (s *TaskService) resolve(ctx context.Context, t *task.Task, b *board.Board) (*task.Detail, error) {
	d := &task.Detail{Task: *t}

	refs, err := s.store.ResolveUsers(ctx, t.TenantID, t.Assignees)
	if err != nil {
		return nil, err
	}
	d.AssigneeRefs = refs

	if t.ClientID != "" {
		ref, err := s.store.ResolveClient(ctx, t.TenantID, t.ClientID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			d.ClientRef = &task.Ref{ID: t.ClientID}
		case err != nil:
			return nil, err
		default:
			d.ClientRef = ref
		}
	}

	if col, ok := b.Column(t.ColumnID); ok {
		d.Column = &task.Ref{ID: col.ID, Name: col.Name}
	}
	d.AttachmentGroups = attachment.Groups(attachment.Committed(t.Attachments), b.IsLive)
	return d, nil
}

func (s *TaskService) invalidate(ctx context.Context, tenantID, taskID string) {
	invalidateDetail(ctx, s.cache, tenantID, taskID)
}

func (s *TaskService) conflict(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.VersionConflicts.Add(ctx, 1)
	}
}

// publish sends payload to subject. The database is the source of truth, so
// a failed publish is logged and the mutation still succeeds.
func (s *TaskService) publish(ctx context.Context, subject string, payload any) {
	publish(ctx, s.queue, subject, payload)
}

func publish(ctx context.Context, q messagequeue.Queue, subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal queue payload", "subject", subject, "error", err)
		return
	}
	if err := q.Publish(ctx, subject, data); err != nil {
		slog.ErrorContext(ctx, "failed to publish to queue", "subject", subject, "error", err)
	}
}

func detailKey(tenantID, taskID string) string {
	return "task." + tenantID + "." + taskID
}

func invalidateDetail(ctx context.Context, c cache.Cache, tenantID, taskID string) {
	if c == nil {
		return
	}
	if err := c.Delete(ctx, detailKey(tenantID, taskID)); err != nil {
		slog.WarnContext(ctx, "invalidate task detail", "task_id", taskID, "error", err)
	}
}

func requireCaller(tenantID, actorID string) error {
	if err := domain.RequireTenant(tenantID); err != nil {
		return err
	}
	if actorID == "" {
		return domain.Invalid("actor_id", "is required")
	}
	return nil
}

// samePersisted reports whether b would store exactly what a holds.
func samePersisted(a, b *task.Task) bool {
	return a.Title == b.Title &&
		a.Description == b.Description &&
		a.Priority == b.Priority &&
		a.ColumnID == b.ColumnID &&
		a.ClientID == b.ClientID &&
		a.SortOrder == b.SortOrder &&
		sameTime(a.DueDate, b.DueDate) &&
		sameTime(a.StartDate, b.StartDate) &&
		slices.Equal(a.Assignees, b.Assignees) &&
		slices.Equal(a.Labels, b.Labels) &&
		slices.Equal(a.Agents, b.Agents)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
