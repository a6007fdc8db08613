package task

import (
	"encoding/json"
	"time"
)

// Optional is a JSON field whose presence is significant. A field missing
// from the payload leaves Set false; an explicit null sets it with the zero value.
type Optional[T any] struct {
	Set   bool
	Value T
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		var zero T
		o.Value = zero
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// MarshalJSON implements json.Marshaler.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// UpdateRequest is a partial update. Presence, not value, signals that a
// field is changing.
type UpdateRequest struct {
	Title       Optional[string]     `json:"title"`
	Description Optional[string]     `json:"description"`
	Priority    Optional[Priority]   `json:"priority"`
	Assignees   Optional[[]string]   `json:"assignees"`
	DueDate     Optional[*time.Time] `json:"due_date"`
	StartDate   Optional[*time.Time] `json:"start_date"`
	ClientID    Optional[string]     `json:"client_id"`
	AgentIDs    Optional[[]string]   `json:"agent_ids"`
	AgentNames  Optional[[]string]   `json:"agent_names"`
	ColumnID    Optional[string]     `json:"column_id"`
	Labels      Optional[[]string]   `json:"labels"`
	SortOrder   Optional[float64]    `json:"sort_order"`

	// Version is the task version the caller last observed. When set, the
	// update is rejected if the task has moved on since.
	Version *int `json:"version,omitempty"`
}

// IsEmpty reports whether the request carries no field at all.
func (u *UpdateRequest) IsEmpty() bool {
	return !u.Title.Set && !u.Description.Set && !u.Priority.Set && !u.Assignees.Set &&
		!u.DueDate.Set && !u.StartDate.Set && !u.ClientID.Set && !u.AgentIDs.Set &&
		!u.AgentNames.Set && !u.ColumnID.Set && !u.Labels.Set && !u.SortOrder.Set
}

// Apply writes every present field onto t.
func (u *UpdateRequest) Apply(t *Task) {
	if u.Title.Set {
		t.Title = u.Title.Value
	}
	if u.Description.Set {
		t.Description = u.Description.Value
	}
	if u.Priority.Set {
		t.Priority = u.Priority.Value
	}
	if u.Assignees.Set {
		t.Assignees = append([]string{}, u.Assignees.Value...)
	}
	if u.DueDate.Set {
		t.DueDate = u.DueDate.Value
	}
	if u.StartDate.Set {
		t.StartDate = u.StartDate.Value
	}
	if u.ClientID.Set {
		t.ClientID = u.ClientID.Value
	}
	if u.ColumnID.Set {
		t.ColumnID = u.ColumnID.Value
	}
	if u.Labels.Set {
		t.Labels = append([]string{}, u.Labels.Value...)
	}
	if u.SortOrder.Set {
		t.SortOrder = u.SortOrder.Value
	}
	u.applyAgents(t)
}

// applyAgents pairs agent ids with names. Names come from agent_names by
// index when present, otherwise from the existing contact with the same id.
func (u *UpdateRequest) applyAgents(t *Task) {
	if !u.AgentIDs.Set && !u.AgentNames.Set {
		return
	}

	known := make(map[string]string, len(t.Agents))
	for _, a := range t.Agents {
		known[a.ID] = a.Name
	}

	ids := t.AgentIDs()
	if u.AgentIDs.Set {
		ids = u.AgentIDs.Value
	}

	agents := make([]Agent, 0, len(ids))
	for i, id := range ids {
		name := known[id]
		if u.AgentNames.Set && i < len(u.AgentNames.Value) {
			name = u.AgentNames.Value[i]
		}
		agents = append(agents, Agent{ID: id, Name: name})
	}
	t.Agents = agents
}
