package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/TrackForge/internal/domain"
	"github.com/Strob0t/TrackForge/internal/domain/activity"
	"github.com/Strob0t/TrackForge/internal/domain/attachment"
	"github.com/Strob0t/TrackForge/internal/domain/board"
	"github.com/Strob0t/TrackForge/internal/domain/task"
	"github.com/Strob0t/TrackForge/internal/port/database"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ database.Store = (*Store)(nil)

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Boards ---

func (s *Store) GetBoard(ctx context.Context, tenantID, id string) (*board.Board, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, project_id, name, prefix, task_counter, columns
		 FROM boards WHERE id = $1 AND tenant_id = $2`, id, tenantID)

	b, err := scanBoard(row)
	if err != nil {
		return nil, notFoundWrap(err, "get board %s", id)
	}
	return &b, nil
}

// CreateBoard inserts a board. Boards are managed outside the task engine;
// this exists for seeding and tests.
func (s *Store) CreateBoard(ctx context.Context, b *board.Board) error {
	cols, err := json.Marshal(orEmpty(b.Columns))
	if err != nil {
		return fmt.Errorf("marshal columns: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO boards (tenant_id, project_id, name, prefix, task_counter, columns)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		b.TenantID, b.ProjectID, b.Name, b.Prefix, b.TaskCounter, cols,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("create board: %w", err)
	}
	return nil
}

// --- Tasks ---

const taskColumns = `id, tenant_id, project_id, board_id, column_id, sequence_id, title, description,
	priority, due_date, start_date, assignees, client_id, agents, labels, sort_order,
	version, created_at, updated_at`

func (s *Store) GetTask(ctx context.Context, tenantID, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND tenant_id = $2`, id, tenantID)

	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundWrap(err, "get task %s", id)
	}

	if t.Comments, err = s.listComments(ctx, tenantID, id); err != nil {
		return nil, err
	}
	if t.Attachments, err = s.listAttachments(ctx, tenantID, id); err != nil {
		return nil, err
	}
	if t.Activity, err = s.listActivity(ctx, tenantID, id); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) CreateTask(ctx context.Context, t *task.Task, created activity.Entry) error {
	agents, err := json.Marshal(orEmpty(t.Agents))
	if err != nil {
		return fmt.Errorf("marshal agents: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var prefix string
	var counter int
	err = tx.QueryRow(ctx,
		`UPDATE boards SET task_counter = task_counter + 1
		 WHERE id = $1 AND tenant_id = $2
		 RETURNING prefix, task_counter, project_id`,
		t.BoardID, t.TenantID,
	).Scan(&prefix, &counter, &t.ProjectID)
	if err != nil {
		return notFoundWrap(err, "advance counter of board %s", t.BoardID)
	}
	t.SequenceID = task.SequenceID(prefix, counter)

	err = tx.QueryRow(ctx,
		`INSERT INTO tasks (tenant_id, project_id, board_id, column_id, sequence_id, title, description,
		 priority, due_date, start_date, assignees, client_id, agents, labels, sort_order)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING id, version, created_at, updated_at`,
		t.TenantID, t.ProjectID, t.BoardID, t.ColumnID, t.SequenceID, t.Title, t.Description,
		t.Priority, t.DueDate, t.StartDate, pgTextArray(t.Assignees), t.ClientID, agents,
		pgTextArray(t.Labels), t.SortOrder,
	).Scan(&t.ID, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	if err := insertActivity(ctx, tx, t.TenantID, t.ID, &created); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit task: %w", err)
	}
	t.Activity = []activity.Entry{created}
	t.Comments = []task.Comment{}
	t.Attachments = []attachment.Attachment{}
	return nil
}

func (s *Store) UpdateTask(ctx context.Context, t *task.Task, entries []activity.Entry) error {
	agents, err := json.Marshal(orEmpty(t.Agents))
	if err != nil {
		return fmt.Errorf("marshal agents: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var version int
	err = tx.QueryRow(ctx,
		`UPDATE tasks SET column_id = $3, title = $4, description = $5, priority = $6,
		 due_date = $7, start_date = $8, assignees = $9, client_id = $10, agents = $11,
		 labels = $12, sort_order = $13, version = version + 1, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND version = $14
		 RETURNING version, updated_at`,
		t.ID, t.TenantID, t.ColumnID, t.Title, t.Description, t.Priority,
		t.DueDate, t.StartDate, pgTextArray(t.Assignees), t.ClientID, agents,
		pgTextArray(t.Labels), t.SortOrder, t.Version,
	).Scan(&version, &t.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return fmt.Errorf("update task %s: %w", t.ID, domain.ErrConflict)
		}
		return notFoundWrap(err, "update task %s", t.ID)
	}

	for i := range entries {
		if err := insertActivity(ctx, tx, t.TenantID, t.ID, &entries[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit task update: %w", err)
	}
	t.Version = version
	t.Activity = append(t.Activity, entries...)
	return nil
}

// --- Comments ---

// AddComment stores c with the timestamp the caller stamped it with.
func (s *Store) AddComment(ctx context.Context, tenantID, taskID string, c *task.Comment) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO task_comments (tenant_id, task_id, author_id, text, created_at)
		 SELECT tenant_id, id, $3, $4, $5 FROM tasks WHERE id = $1 AND tenant_id = $2
		 RETURNING id`,
		taskID, tenantID, c.AuthorID, c.Text, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return notFoundWrap(err, "add comment to task %s", taskID)
	}
	return nil
}

func (s *Store) listComments(ctx context.Context, tenantID, taskID string) ([]task.Comment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, author_id, text, created_at FROM task_comments
		 WHERE task_id = $1 AND tenant_id = $2 ORDER BY created_at, id`, taskID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := []task.Comment{}
	for rows.Next() {
		var c task.Comment
		if err := rows.Scan(&c.ID, &c.AuthorID, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// --- Attachments ---

func (s *Store) AddAttachment(ctx context.Context, tenantID, taskID string, att *attachment.Attachment, entry *activity.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := bumpVersion(ctx, tx, tenantID, taskID); err != nil {
		return err
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO task_attachments (id, tenant_id, task_id, url, name, title, size, status_id, status_name, position)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING uploaded_at`,
		att.ID, tenantID, taskID, att.URL, att.Name, att.Title, att.Size, att.StatusID, att.StatusName, att.Position,
	).Scan(&att.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}

	if err := appendActivity(ctx, tx, tenantID, taskID, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit attachment: %w", err)
	}
	return nil
}

func (s *Store) RemoveAttachment(ctx context.Context, tenantID, taskID, attachmentID string, entry *activity.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := bumpVersion(ctx, tx, tenantID, taskID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM task_attachments WHERE id = $1 AND task_id = $2 AND tenant_id = $3`,
		attachmentID, taskID, tenantID)
	if err := execExpectOne(tag, err, "delete attachment %s", attachmentID); err != nil {
		return err
	}

	if err := appendActivity(ctx, tx, tenantID, taskID, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit attachment removal: %w", err)
	}
	return nil
}

func (s *Store) listAttachments(ctx context.Context, tenantID, taskID string) ([]attachment.Attachment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, name, title, size, status_id, status_name, position, uploaded_at
		 FROM task_attachments WHERE task_id = $1 AND tenant_id = $2 ORDER BY position, uploaded_at`,
		taskID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	atts := []attachment.Attachment{}
	for rows.Next() {
		var a attachment.Attachment
		if err := rows.Scan(&a.ID, &a.URL, &a.Name, &a.Title, &a.Size, &a.StatusID, &a.StatusName,
			&a.Position, &a.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		atts = append(atts, a)
	}
	return atts, rows.Err()
}

// --- Activity ---

func (s *Store) listActivity(ctx context.Context, tenantID, taskID string) ([]activity.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, seq, kind, field, actor_id, old_value, new_value, description, created_at
		 FROM task_activity WHERE task_id = $1 AND tenant_id = $2 ORDER BY seq`, taskID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	entries := []activity.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// bumpVersion locks the task row and advances its version so concurrent
// field updates holding the old version are rejected.
func bumpVersion(ctx context.Context, tx pgx.Tx, tenantID, taskID string) error {
	tag, err := tx.Exec(ctx,
		`UPDATE tasks SET version = version + 1, updated_at = now() WHERE id = $1 AND tenant_id = $2`,
		taskID, tenantID)
	return execExpectOne(tag, err, "bump version of task %s", taskID)
}

// appendActivity assigns entry the next free sequence number of the task and
// inserts it. The caller must hold the task row lock.
func appendActivity(ctx context.Context, tx pgx.Tx, tenantID, taskID string, entry *activity.Entry) error {
	err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM task_activity WHERE task_id = $1`, taskID,
	).Scan(&entry.Seq)
	if err != nil {
		return fmt.Errorf("next activity seq: %w", err)
	}
	return insertActivity(ctx, tx, tenantID, taskID, entry)
}

func insertActivity(ctx context.Context, tx pgx.Tx, tenantID, taskID string, e *activity.Entry) error {
	oldVal, err := jsonValue(e.OldValue)
	if err != nil {
		return fmt.Errorf("marshal old value: %w", err)
	}
	newVal, err := jsonValue(e.NewValue)
	if err != nil {
		return fmt.Errorf("marshal new value: %w", err)
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO task_activity (tenant_id, task_id, seq, kind, field, actor_id, old_value, new_value, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		tenantID, taskID, e.Seq, e.Kind, e.Field, e.ActorID, oldVal, newVal, e.Description, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert activity seq %d: %w", e.Seq, err)
	}
	return nil
}

// --- Display references ---

// ResolveUsers returns one ref per id in input order. Unknown ids keep an
// empty name.
func (s *Store) ResolveUsers(ctx context.Context, tenantID string, ids []string) ([]task.Ref, error) {
	if len(ids) == 0 {
		return []task.Ref{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name FROM users WHERE tenant_id = $1 AND id = ANY($2)`, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve users: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string, len(ids))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	refs := make([]task.Ref, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, task.Ref{ID: id, Name: names[id]})
	}
	return refs, nil
}

func (s *Store) ResolveClient(ctx context.Context, tenantID, id string) (*task.Ref, error) {
	var ref task.Ref
	err := s.pool.QueryRow(ctx,
		`SELECT id, name FROM clients WHERE tenant_id = $1 AND id = $2`, tenantID, id,
	).Scan(&ref.ID, &ref.Name)
	if err != nil {
		return nil, notFoundWrap(err, "resolve client %s", id)
	}
	return &ref, nil
}

// --- Scanners ---

func scanBoard(row scannable) (board.Board, error) {
	var b board.Board
	var cols []byte
	if err := row.Scan(&b.ID, &b.TenantID, &b.ProjectID, &b.Name, &b.Prefix, &b.TaskCounter, &cols); err != nil {
		return b, err
	}
	if err := json.Unmarshal(cols, &b.Columns); err != nil {
		return b, fmt.Errorf("unmarshal columns: %w", err)
	}
	return b, nil
}

func scanTask(row scannable) (task.Task, error) {
	var t task.Task
	var agents []byte
	err := row.Scan(&t.ID, &t.TenantID, &t.ProjectID, &t.BoardID, &t.ColumnID, &t.SequenceID, &t.Title,
		&t.Description, &t.Priority, &t.DueDate, &t.StartDate, &t.Assignees, &t.ClientID, &agents,
		&t.Labels, &t.SortOrder, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal(agents, &t.Agents); err != nil {
		return t, fmt.Errorf("unmarshal agents: %w", err)
	}
	t.Assignees = orEmpty(t.Assignees)
	t.Labels = orEmpty(t.Labels)
	return t, nil
}

func scanEntry(row scannable) (activity.Entry, error) {
	var e activity.Entry
	var oldVal, newVal []byte
	err := row.Scan(&e.ID, &e.Seq, &e.Kind, &e.Field, &e.ActorID, &oldVal, &newVal, &e.Description, &e.CreatedAt)
	if err != nil {
		return e, fmt.Errorf("scan activity: %w", err)
	}
	if e.OldValue, err = scanJSONValue(oldVal); err != nil {
		return e, fmt.Errorf("unmarshal old value: %w", err)
	}
	if e.NewValue, err = scanJSONValue(newVal); err != nil {
		return e, fmt.Errorf("unmarshal new value: %w", err)
	}
	return e, nil
}
