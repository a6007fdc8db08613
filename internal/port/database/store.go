// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/TrackForge/internal/domain/activity"
	"github.com/Strob0t/TrackForge/internal/domain/attachment"
	"github.com/Strob0t/TrackForge/internal/domain/board"
	"github.com/Strob0t/TrackForge/internal/domain/task"
)

// Store is the port interface for database operations. Every method is
// scoped by tenant; a row of another tenant is reported as not found.
type Store interface {
	// Boards
	GetBoard(ctx context.Context, tenantID, id string) (*board.Board, error)

	// Tasks
	GetTask(ctx context.Context, tenantID, id string) (*task.Task, error)

	// CreateTask advances the board's task counter, inserts t with the
	// resulting sequence id and appends the created entry, all in one
	// transaction. t is filled with the stored values.
	CreateTask(ctx context.Context, t *task.Task, created activity.Entry) error

	// UpdateTask persists t if its stored version still equals t.Version and
	// appends entries in the same transaction. A stale version yields
	// domain.ErrConflict and nothing is written. On success t.Version is bumped.
	UpdateTask(ctx context.Context, t *task.Task, entries []activity.Entry) error

	// Comments
	AddComment(ctx context.Context, tenantID, taskID string, c *task.Comment) error

	// Attachments. Both calls bump the task version and append entry with
	// the next free sequence number in the same transaction.
	AddAttachment(ctx context.Context, tenantID, taskID string, att *attachment.Attachment, entry *activity.Entry) error
	RemoveAttachment(ctx context.Context, tenantID, taskID, attachmentID string, entry *activity.Entry) error

	// Display references
	ResolveUsers(ctx context.Context, tenantID string, ids []string) ([]task.Ref, error)
	ResolveClient(ctx context.Context, tenantID, id string) (*task.Ref, error)
}
