package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/TrackForge/internal/domain"
	"github.com/Strob0t/TrackForge/internal/domain/activity"
	"github.com/Strob0t/TrackForge/internal/domain/attachment"
	"github.com/Strob0t/TrackForge/internal/domain/board"
	"github.com/Strob0t/TrackForge/internal/domain/task"
	"github.com/Strob0t/TrackForge/internal/port/messagequeue"
)

// mockStore is an in-memory database.Store keyed by tenant.
type mockStore struct {
	mu       sync.Mutex
	boards   map[string]*board.Board
	tasks    map[string]*task.Task
	users    map[string]string
	clients  map[string]string
	nextID   int
	updates  int
	addErr   error
	getCalls int
	// afterGet runs once, outside the lock, after the next GetTask has
	// taken its snapshot.
	afterGet func()
}

func newMockStore() *mockStore {
	return &mockStore{
		boards: map[string]*board.Board{
			"b1": {
				ID:       "b1",
				TenantID: "tenant-a",
				Name:     "Web",
				Prefix:   "WEB",
				Columns:  []board.Column{{ID: "todo", Name: "To Do"}, {ID: "done", Name: "Done"}},
			},
		},
		tasks:   map[string]*task.Task{},
		users:   map[string]string{"u1": "Ann", "u2": "Bob"},
		clients: map[string]string{"c1": "Acme"},
	}
}

func (m *mockStore) GetBoard(_ context.Context, tenantID, id string) (*board.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boards[id]
	if !ok || b.TenantID != tenantID {
		return nil, fmt.Errorf("board %s: %w", id, domain.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (m *mockStore) GetTask(_ context.Context, tenantID, id string) (*task.Task, error) {
	m.mu.Lock()
	m.getCalls++
	t, ok := m.tasks[id]
	if !ok || t.TenantID != tenantID {
		m.mu.Unlock()
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	snapshot := cloneTask(t)
	hook := m.afterGet
	m.afterGet = nil
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return snapshot, nil
}

func (m *mockStore) CreateTask(_ context.Context, t *task.Task, created activity.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boards[t.BoardID]
	if !ok || b.TenantID != t.TenantID {
		return fmt.Errorf("board %s: %w", t.BoardID, domain.ErrNotFound)
	}
	b.TaskCounter++
	m.nextID++
	t.ID = fmt.Sprintf("task-%d", m.nextID)
	t.SequenceID = task.SequenceID(b.Prefix, b.TaskCounter)
	t.Version = 1
	t.CreatedAt = created.CreatedAt
	t.UpdatedAt = created.CreatedAt
	t.Activity = []activity.Entry{created}
	t.Comments = []task.Comment{}
	t.Attachments = []attachment.Attachment{}
	m.tasks[t.ID] = cloneTask(t)
	return nil
}

func (m *mockStore) UpdateTask(_ context.Context, t *task.Task, entries []activity.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tasks[t.ID]
	if !ok || stored.TenantID != t.TenantID {
		return fmt.Errorf("task %s: %w", t.ID, domain.ErrNotFound)
	}
	if stored.Version != t.Version {
		return fmt.Errorf("task %s: %w", t.ID, domain.ErrConflict)
	}
	m.updates++
	t.Version++
	next := cloneTask(t)
	next.Activity = append(stored.Activity, entries...)
	next.Comments = stored.Comments
	next.Attachments = stored.Attachments
	m.tasks[t.ID] = next
	t.Activity = append([]activity.Entry(nil), next.Activity...)
	return nil
}

func (m *mockStore) AddComment(_ context.Context, tenantID, taskID string, c *task.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok || t.TenantID != tenantID {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	m.nextID++
	c.ID = fmt.Sprintf("comment-%d", m.nextID)
	t.Comments = append(t.Comments, *c)
	return nil
}

func (m *mockStore) AddAttachment(_ context.Context, tenantID, taskID string, att *attachment.Attachment, entry *activity.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	t, ok := m.tasks[taskID]
	if !ok || t.TenantID != tenantID {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	att.UploadedAt = time.Now().UTC()
	entry.Seq = len(t.Activity) + 1
	t.Attachments = append(t.Attachments, *att)
	t.Activity = append(t.Activity, *entry)
	t.Version++
	return nil
}

func (m *mockStore) RemoveAttachment(_ context.Context, tenantID, taskID, attachmentID string, entry *activity.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok || t.TenantID != tenantID {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	for i := range t.Attachments {
		if t.Attachments[i].ID == attachmentID {
			t.Attachments = append(t.Attachments[:i], t.Attachments[i+1:]...)
			entry.Seq = len(t.Activity) + 1
			t.Activity = append(t.Activity, *entry)
			t.Version++
			return nil
		}
	}
	return fmt.Errorf("attachment %s: %w", attachmentID, domain.ErrNotFound)
}

func (m *mockStore) ResolveUsers(_ context.Context, _ string, ids []string) ([]task.Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := make([]task.Ref, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, task.Ref{ID: id, Name: m.users[id]})
	}
	return refs, nil
}

func (m *mockStore) ResolveClient(_ context.Context, _, id string) (*task.Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", id, domain.ErrNotFound)
	}
	return &task.Ref{ID: id, Name: name}, nil
}

func (m *mockStore) stored(id string) *task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneTask(m.tasks[id])
}

func cloneTask(t *task.Task) *task.Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Assignees = append([]string(nil), t.Assignees...)
	cp.Labels = append([]string(nil), t.Labels...)
	cp.Agents = append([]task.Agent(nil), t.Agents...)
	cp.Attachments = append([]attachment.Attachment(nil), t.Attachments...)
	cp.Comments = append([]task.Comment(nil), t.Comments...)
	cp.Activity = append([]activity.Entry(nil), t.Activity...)
	return &cp
}

// mockQueue implements messagequeue.Queue for testing.
type mockQueue struct {
	mu         sync.Mutex
	published  []published
	handlers   map[string]messagequeue.Handler
	publishErr error
}

type published struct {
	subject string
	data    []byte
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, published{subject, data})
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers == nil {
		q.handlers = map[string]messagequeue.Handler{}
	}
	q.handlers[subject] = h
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.handlers, subject)
	}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

func (q *mockQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.published))
	for _, p := range q.published {
		out = append(out, p.subject)
	}
	return out
}

// mockHub records broadcast events.
type mockHub struct {
	mu     sync.Mutex
	events []hubEvent
}

type hubEvent struct {
	tenantID  string
	eventType string
	payload   any
}

func (h *mockHub) BroadcastEvent(_ context.Context, tenantID, eventType string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, hubEvent{tenantID, eventType, payload})
}

func (h *mockHub) ofType(eventType string) []hubEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []hubEvent
	for _, e := range h.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// memCache is a map-backed cache.Cache without expiry.
type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deletes int
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	delete(c.data, key)
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestTaskService() (*TaskService, *mockStore, *mockQueue, *mockHub) {
	store := newMockStore()
	q := &mockQueue{}
	hub := &mockHub{}
	svc := NewTaskService(store, q, hub, task.NewDetector(time.UTC), activity.NewRecorder(func() time.Time { return fixedNow }))
	return svc, store, q, hub
}

func createTask(t *testing.T, svc *TaskService) *task.Detail {
	t.Helper()
	d, err := svc.Create(context.Background(), "tenant-a", "u1", &task.CreateRequest{
		BoardID:   "b1",
		Title:     "Fix login",
		Assignees: []string{"u1"},
		ClientID:  "c1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return d
}

// --- TaskService Tests ---

func TestTaskServiceCreate(t *testing.T) {
	svc, _, q, hub := newTestTaskService()

	d := createTask(t, svc)
	if d.SequenceID != "WEB-001" {
		t.Fatalf("expected WEB-001, got %q", d.SequenceID)
	}
	if d.ColumnID != "todo" {
		t.Fatalf("expected default column todo, got %q", d.ColumnID)
	}
	if d.Priority != task.PriorityMedium {
		t.Fatalf("expected default priority medium, got %q", d.Priority)
	}
	if len(d.Activity) != 1 || d.Activity[0].Kind != activity.KindCreated || d.Activity[0].Seq != 1 {
		t.Fatalf("expected one created entry at seq 1, got %+v", d.Activity)
	}
	if d.ClientRef == nil || d.ClientRef.Name != "Acme" {
		t.Fatalf("expected resolved client, got %+v", d.ClientRef)
	}
	if len(d.AssigneeRefs) != 1 || d.AssigneeRefs[0].Name != "Ann" {
		t.Fatalf("expected resolved assignee, got %+v", d.AssigneeRefs)
	}
	if d.Column == nil || d.Column.Name != "To Do" {
		t.Fatalf("expected resolved column, got %+v", d.Column)
	}
	if got := q.subjects(); len(got) != 1 || got[0] != messagequeue.SubjectTaskCreated {
		t.Fatalf("expected one tasks.created publish, got %v", got)
	}
	if len(hub.ofType("task.created")) != 1 {
		t.Fatal("expected task.created broadcast")
	}

	second := createTask(t, svc)
	if second.SequenceID != "WEB-002" {
		t.Fatalf("expected WEB-002, got %q", second.SequenceID)
	}
}

func TestTaskServiceCreateValidation(t *testing.T) {
	svc, _, _, _ := newTestTaskService()
	ctx := context.Background()

	tests := []struct {
		name     string
		tenantID string
		actorID  string
		req      task.CreateRequest
		want     error
	}{
		{"missing tenant", "", "u1", task.CreateRequest{BoardID: "b1", Title: "x"}, domain.ErrValidation},
		{"missing actor", "tenant-a", "", task.CreateRequest{BoardID: "b1", Title: "x"}, domain.ErrValidation},
		{"blank title", "tenant-a", "u1", task.CreateRequest{BoardID: "b1", Title: "  "}, domain.ErrValidation},
		{"unknown column", "tenant-a", "u1", task.CreateRequest{BoardID: "b1", Title: "x", ColumnID: "gone"}, domain.ErrValidation},
		{"foreign board", "tenant-b", "u1", task.CreateRequest{BoardID: "b1", Title: "x"}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.tenantID, tt.actorID, &tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTaskServiceUpdateRecordsEntries(t *testing.T) {
	svc, store, q, hub := newTestTaskService()
	d := createTask(t, svc)

	d2, err := svc.Update(context.Background(), "tenant-a", d.ID, "u2", &task.UpdateRequest{
		Priority: task.Some(task.PriorityHigh),
		ColumnID: task.Some("done"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if d2.Version != 2 {
		t.Fatalf("expected version 2, got %d", d2.Version)
	}
	if len(d2.Activity) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(d2.Activity))
	}
	for i, e := range d2.Activity {
		if e.Seq != i+1 {
			t.Fatalf("entry %d has seq %d", i, e.Seq)
		}
	}
	kinds := map[activity.Kind]bool{}
	for _, e := range d2.Activity[1:] {
		kinds[e.Kind] = true
		if e.ActorID != "u2" {
			t.Fatalf("expected actor u2, got %q", e.ActorID)
		}
	}
	if !kinds[activity.KindPriorityChanged] || !kinds[activity.KindStatusChanged] {
		t.Fatalf("expected priority and status entries, got %v", kinds)
	}
	if got := store.stored(d.ID); got.Priority != task.PriorityHigh || got.ColumnID != "done" {
		t.Fatalf("snapshot not persisted: %+v", got)
	}
	if got := q.subjects(); got[len(got)-1] != messagequeue.SubjectTaskUpdated {
		t.Fatalf("expected tasks.updated publish, got %v", got)
	}
	if len(hub.ofType("task.activity")) != 1 {
		t.Fatal("expected one task.activity broadcast")
	}
}

func TestTaskServiceUpdateNoopWritesNothing(t *testing.T) {
	svc, store, q, hub := newTestTaskService()
	d := createTask(t, svc)
	published := len(q.subjects())

	got, err := svc.Update(context.Background(), "tenant-a", d.ID, "u1", &task.UpdateRequest{
		Title:     task.Some("Fix login"),
		Assignees: task.Some([]string{"u1"}),
		ClientID:  task.Some("  c1  "),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if store.updates != 0 {
		t.Fatalf("expected no store write, got %d", store.updates)
	}
	if got.Version != 1 || len(got.Activity) != 1 {
		t.Fatalf("expected unchanged task, got version %d with %d entries", got.Version, len(got.Activity))
	}
	if len(q.subjects()) != published {
		t.Fatal("expected no publish for a no-op update")
	}
	if len(hub.ofType("task.activity")) != 0 {
		t.Fatal("expected no activity broadcast for a no-op update")
	}
}

func TestTaskServiceUpdateUnauditedFieldPersists(t *testing.T) {
	svc, store, _, hub := newTestTaskService()
	d := createTask(t, svc)

	got, err := svc.Update(context.Background(), "tenant-a", d.ID, "u1", &task.UpdateRequest{
		Labels: task.Some([]string{"backend"}),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if store.updates != 1 {
		t.Fatalf("expected one store write, got %d", store.updates)
	}
	if len(got.Labels) != 1 || len(got.Activity) != 1 {
		t.Fatalf("expected label persisted without an entry, got %+v / %d entries", got.Labels, len(got.Activity))
	}
	if len(hub.ofType("task.activity")) != 0 {
		t.Fatal("expected no activity broadcast without entries")
	}
}

func TestTaskServiceUpdateStaleVersion(t *testing.T) {
	svc, store, _, _ := newTestTaskService()
	d := createTask(t, svc)
	stale := 0

	_, err := svc.Update(context.Background(), "tenant-a", d.ID, "u1", &task.UpdateRequest{
		Title:   task.Some("Other"),
		Version: &stale,
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if store.updates != 0 {
		t.Fatal("expected nothing written on conflict")
	}
	if got := store.stored(d.ID); got.Title != "Fix login" || len(got.Activity) != 1 {
		t.Fatalf("task changed on conflict: %+v", got)
	}
}

func TestTaskServiceUpdateRejectsDeadColumn(t *testing.T) {
	svc, _, _, _ := newTestTaskService()
	d := createTask(t, svc)

	_, err := svc.Update(context.Background(), "tenant-a", d.ID, "u1", &task.UpdateRequest{ColumnID: task.Some("archived")})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestTaskServiceUpdateKeepsDeletedCurrentColumn(t *testing.T) {
	svc, store, _, _ := newTestTaskService()
	d := createTask(t, svc)

	store.mu.Lock()
	store.boards["b1"].Columns = []board.Column{{ID: "done", Name: "Done"}}
	store.mu.Unlock()

	got, err := svc.Update(context.Background(), "tenant-a", d.ID, "u1", &task.UpdateRequest{
		ColumnID: task.Some("todo"),
		Priority: task.Some(task.PriorityHigh),
	})
	if err != nil {
		t.Fatalf("re-sending the current column: %v", err)
	}
	if got.ColumnID != "todo" || got.Priority != task.PriorityHigh {
		t.Fatalf("unexpected task: %+v", got.Task)
	}

	_, err = svc.Update(context.Background(), "tenant-a", d.ID, "u1", &task.UpdateRequest{ColumnID: task.Some("archived")})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for another dead column, got %v", err)
	}
}

func TestTaskServiceUpdateOtherTenant(t *testing.T) {
	svc, _, _, _ := newTestTaskService()
	d := createTask(t, svc)

	_, err := svc.Update(context.Background(), "tenant-b", d.ID, "u1", &task.UpdateRequest{Title: task.Some("x")})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTaskServiceGetCaches(t *testing.T) {
	svc, store, _, _ := newTestTaskService()
	c := newMemCache()
	svc.SetCache(c, time.Minute)
	d := createTask(t, svc)
	ctx := context.Background()

	if _, err := svc.Get(ctx, "tenant-a", d.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	calls := store.getCalls
	got, err := svc.Get(ctx, "tenant-a", d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if store.getCalls != calls {
		t.Fatal("expected second Get to be served from cache")
	}
	if got.ClientRef == nil || got.ClientRef.Name != "Acme" {
		t.Fatalf("cached detail lost references: %+v", got.ClientRef)
	}

	if _, err := svc.Update(ctx, "tenant-a", d.ID, "u1", &task.UpdateRequest{Title: task.Some("Renamed")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if c.has(detailKey("tenant-a", d.ID)) {
		t.Fatal("expected update to invalidate cached detail")
	}
	got, err = svc.Get(ctx, "tenant-a", d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Renamed" {
		t.Fatalf("expected fresh title, got %q", got.Title)
	}
}

func TestTaskServiceGetUnknownClient(t *testing.T) {
	svc, _, _, _ := newTestTaskService()
	d, err := svc.Create(context.Background(), "tenant-a", "u1", &task.CreateRequest{
		BoardID:  "b1",
		Title:    "Orphan",
		ClientID: "c9",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.ClientRef == nil || d.ClientRef.ID != "c9" || d.ClientRef.Name != "" {
		t.Fatalf("expected bare client ref, got %+v", d.ClientRef)
	}
}

func TestTaskServiceTimeline(t *testing.T) {
	clock := fixedNow
	svc := NewTaskService(newMockStore(), &mockQueue{}, &mockHub{}, task.NewDetector(time.UTC),
		activity.NewRecorder(func() time.Time { return clock }))
	d := createTask(t, svc)
	ctx := context.Background()
	clock = clock.Add(time.Minute)

	if _, err := svc.AddComment(ctx, "tenant-a", d.ID, "u2", "looks good"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	items, err := svc.Timeline(ctx, "tenant-a", d.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Activity == nil || items[1].Comment == nil {
		t.Fatalf("expected created entry before the later comment, got %+v", items)
	}
}

func TestTaskServiceAddComment(t *testing.T) {
	svc, _, _, hub := newTestTaskService()
	svc.SetMaxCommentLength(10)
	d := createTask(t, svc)
	ctx := context.Background()

	if _, err := svc.AddComment(ctx, "tenant-a", d.ID, "u1", "   "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for blank text, got %v", err)
	}
	if _, err := svc.AddComment(ctx, "tenant-a", d.ID, "u1", strings.Repeat("x", 11)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for long text, got %v", err)
	}
	if _, err := svc.AddComment(ctx, "tenant-a", "missing", "u1", "hi"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	c, err := svc.AddComment(ctx, "tenant-a", d.ID, "u1", "hi")
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if c.ID == "" || !c.CreatedAt.Equal(fixedNow) {
		t.Fatalf("expected stored comment stamped by the service clock, got %+v", c)
	}
	d, err = svc.Get(ctx, "tenant-a", d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(d.Comments) != 1 || !d.Comments[0].CreatedAt.Equal(d.Activity[0].CreatedAt) {
		t.Fatalf("comment and activity clocks disagree: %+v / %+v", d.Comments, d.Activity)
	}
	if len(hub.ofType("task.comment")) != 1 {
		t.Fatal("expected task.comment broadcast")
	}
}

func TestTaskServicePublishFailureIsNotFatal(t *testing.T) {
	svc, _, q, _ := newTestTaskService()
	q.publishErr = errors.New("nats down")

	if _, err := svc.Create(context.Background(), "tenant-a", "u1", &task.CreateRequest{BoardID: "b1", Title: "x"}); err != nil {
		t.Fatalf("expected create to succeed despite publish failure, got %v", err)
	}
}

func TestTaskServiceStartInvalidation(t *testing.T) {
	svc, _, q, _ := newTestTaskService()
	c := newMemCache()
	svc.SetCache(c, time.Minute)
	ctx := context.Background()

	stop, err := svc.StartInvalidation(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	key := detailKey("tenant-a", "t9")
	_ = c.Set(ctx, key, []byte(`{}`), time.Minute)
	data, _ := json.Marshal(messagequeue.TaskUpdatedPayload{TenantID: "tenant-a", TaskID: "t9"})

	q.mu.Lock()
	h := q.handlers[messagequeue.SubjectTaskUpdated]
	q.mu.Unlock()
	if h == nil {
		t.Fatal("expected tasks.updated subscription")
	}
	if err := h(ctx, messagequeue.SubjectTaskUpdated, data); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if c.has(key) {
		t.Fatal("expected cached detail to be dropped")
	}

	stop()
	q.mu.Lock()
	left := len(q.handlers)
	q.mu.Unlock()
	if left != 0 {
		t.Fatalf("expected all subscriptions stopped, %d left", left)
	}
}
