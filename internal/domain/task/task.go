// Package task defines the Task domain entity, its partial update request
// and the change detector that diffs an update against a snapshot.
package task

import (
	"time"

	"github.com/Strob0t/TrackForge/internal/domain/activity"
	"github.com/Strob0t/TrackForge/internal/domain/attachment"
)

// Priority is the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValid reports whether p is one of the known priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Agent is a contact person at a company-type client.
type Agent struct {
	ID   string `json:"agent_id"`
	Name string `json:"agent_name"`
}

// Comment is an immutable free-text note on a task.
type Comment struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is the mutable work item. The snapshot is authoritative; Activity is
// derived history and only ever grows.
type Task struct {
	ID          string                  `json:"id"`
	TenantID    string                  `json:"tenant_id"`
	ProjectID   string                  `json:"project_id,omitempty"`
	BoardID     string                  `json:"board_id"`
	ColumnID    string                  `json:"column_id"`
	SequenceID  string                  `json:"sequence_id,omitempty"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Priority    Priority                `json:"priority"`
	DueDate     *time.Time              `json:"due_date,omitempty"`
	StartDate   *time.Time              `json:"start_date,omitempty"`
	Assignees   []string                `json:"assignees"`
	ClientID    string                  `json:"client_id,omitempty"`
	Agents      []Agent                 `json:"agents,omitempty"`
	Labels      []string                `json:"labels"`
	Attachments []attachment.Attachment `json:"attachments"`
	Comments    []Comment               `json:"comments"`
	Activity    []activity.Entry        `json:"activity"`
	SortOrder   float64                 `json:"sort_order"`
	Version     int                     `json:"version"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// AgentIDs returns the ids of the task's client contacts.
func (t *Task) AgentIDs() []string {
	ids := make([]string, 0, len(t.Agents))
	for _, a := range t.Agents {
		ids = append(ids, a.ID)
	}
	return ids
}

// Ref is a display reference to another entity.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Detail is a task with its references expanded for display.
type Detail struct {
	Task
	AssigneeRefs     []Ref              `json:"assignee_refs"`
	ClientRef        *Ref               `json:"client_ref,omitempty"`
	Column           *Ref               `json:"column,omitempty"`
	AttachmentGroups []attachment.Group `json:"attachment_groups"`
}

// CreateRequest holds the fields needed to create a new task.
type CreateRequest struct {
	BoardID     string     `json:"board_id"`
	ColumnID    string     `json:"column_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	Assignees   []string   `json:"assignees"`
	ClientID    string     `json:"client_id,omitempty"`
	Agents      []Agent    `json:"agents,omitempty"`
	Labels      []string   `json:"labels"`
	SortOrder   float64    `json:"sort_order"`
}
