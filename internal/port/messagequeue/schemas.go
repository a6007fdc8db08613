package messagequeue

import "github.com/Strob0t/TrackForge/internal/domain/activity"

// TaskCreatedPayload is the schema for tasks.created messages.
type TaskCreatedPayload struct {
	TenantID   string `json:"tenant_id"`
	TaskID     string `json:"task_id"`
	BoardID    string `json:"board_id"`
	SequenceID string `json:"sequence_id,omitempty"`
	Title      string `json:"title"`
	ActorID    string `json:"actor_id"`
}

// TaskUpdatedPayload is the schema for tasks.updated messages. Entries holds
// the audit entries appended by the update.
type TaskUpdatedPayload struct {
	TenantID string           `json:"tenant_id"`
	TaskID   string           `json:"task_id"`
	Version  int              `json:"version"`
	ActorID  string           `json:"actor_id"`
	Entries  []activity.Entry `json:"entries"`
}

// AttachmentPayload is the schema for tasks.attachments messages.
type AttachmentPayload struct {
	TenantID     string `json:"tenant_id"`
	TaskID       string `json:"task_id"`
	TempID       string `json:"temp_id,omitempty"`
	AttachmentID string `json:"attachment_id,omitempty"`
	State        string `json:"state"`
	Error        string `json:"error,omitempty"`
}
