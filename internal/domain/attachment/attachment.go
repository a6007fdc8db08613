// Package attachment defines task file attachments, their upload lifecycle
// and the status-scoped grouping view.
package attachment

import (
	"strings"
	"time"
)

// Unassigned is the reserved group key for attachments without a live status.
const Unassigned = "unassigned"

// TempPrefix marks identifiers issued before the server confirmed persistence.
const TempPrefix = "tmp-"

// Attachment is a file reference attached to a task.
type Attachment struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Name       string    `json:"name"`
	Title      string    `json:"title"`
	Size       int64     `json:"size"`
	StatusID   string    `json:"status_id,omitempty"`
	StatusName string    `json:"status_name,omitempty"`
	Position   int64     `json:"position"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// IsTemporary reports whether the attachment still carries a client-side id.
func (a *Attachment) IsTemporary() bool {
	return a.ID == "" || strings.HasPrefix(a.ID, TempPrefix)
}

// State is the upload lifecycle state of a registry entry.
type State string

const (
	StateUploading State = "uploading"
	StateCommitted State = "committed"
	StateFailed    State = "failed"
)

// Entry is an attachment together with its lifecycle state.
type Entry struct {
	Attachment
	State State `json:"state"`
}

// Outcome is the caller-visible result of one upload, keyed by temporary id.
type Outcome struct {
	TempID     string      `json:"temp_id"`
	TaskID     string      `json:"task_id"`
	State      State       `json:"state"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Error      string      `json:"error,omitempty"`
	Retryable  bool        `json:"retryable,omitempty"`
}

// Group is one status bucket of the grouping view.
type Group struct {
	StatusID string  `json:"status_id"`
	Entries  []Entry `json:"entries"`
}
