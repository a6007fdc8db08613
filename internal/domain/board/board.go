// Package board defines the Kanban board a task lives on.
package board

// Column is one status column of a board.
type Column struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Board groups tasks into columns and issues their sequence ids.
type Board struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenant_id"`
	ProjectID   string   `json:"project_id,omitempty"`
	Name        string   `json:"name"`
	Prefix      string   `json:"prefix,omitempty"`
	TaskCounter int      `json:"task_counter"`
	Columns     []Column `json:"columns"`
}

// Column returns the column with the given id or name.
// Tasks may reference a column by either.
func (b *Board) Column(ref string) (Column, bool) {
	for _, c := range b.Columns {
		if c.ID == ref || c.Name == ref {
			return c, true
		}
	}
	return Column{}, false
}

// IsLive reports whether ref still names a column of the board.
func (b *Board) IsLive(ref string) bool {
	_, ok := b.Column(ref)
	return ok
}

// DefaultColumn is the column new tasks land in when none is given.
func (b *Board) DefaultColumn() string {
	if len(b.Columns) == 0 {
		return ""
	}
	return b.Columns[0].ID
}
