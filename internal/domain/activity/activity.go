// Package activity defines the append-only audit trail of a task.
package activity

import "time"

// Kind identifies the kind of change an entry records.
type Kind string

const (
	KindCreated            Kind = "created"
	KindStatusChanged      Kind = "status_changed"
	KindPriorityChanged    Kind = "priority_changed"
	KindAssigneesChanged   Kind = "assignees_changed"
	KindClientChanged      Kind = "client_changed"
	KindDueDateChanged     Kind = "due_date_changed"
	KindStartDateChanged   Kind = "start_date_changed"
	KindTitleChanged       Kind = "title_changed"
	KindDescriptionChanged Kind = "description_changed"
	KindAttachmentAdded    Kind = "attachment_added"
	KindAttachmentRemoved  Kind = "attachment_removed"
)

var validKinds = map[Kind]bool{
	KindCreated:            true,
	KindStatusChanged:      true,
	KindPriorityChanged:    true,
	KindAssigneesChanged:   true,
	KindClientChanged:      true,
	KindDueDateChanged:     true,
	KindStartDateChanged:   true,
	KindTitleChanged:       true,
	KindDescriptionChanged: true,
	KindAttachmentAdded:    true,
	KindAttachmentRemoved:  true,
}

// IsValid reports whether k belongs to the closed kind enumeration.
func (k Kind) IsValid() bool {
	return validKinds[k]
}

// Change is a detected field change that has not been persisted yet.
type Change struct {
	Kind        Kind   `json:"kind"`
	Field       string `json:"field"`
	OldValue    any    `json:"old_value,omitempty"`
	NewValue    any    `json:"new_value,omitempty"`
	Description string `json:"description"`
}

// Entry is one immutable audit record. Seq is the 1-based append position within the task.
type Entry struct {
	ID          string    `json:"id,omitempty"`
	Seq         int       `json:"seq"`
	Kind        Kind      `json:"kind"`
	Field       string    `json:"field,omitempty"`
	ActorID     string    `json:"actor_id"`
	OldValue    any       `json:"old_value,omitempty"`
	NewValue    any       `json:"new_value,omitempty"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
