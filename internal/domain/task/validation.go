package task

import (
	"strings"
	"unicode"

	"github.com/Strob0t/TrackForge/internal/domain"
)

const maxTitleLength = 500

// ValidateCreateRequest validates the fields of a task creation request.
func ValidateCreateRequest(req *CreateRequest) error {
	if req.BoardID == "" {
		return domain.Invalid("board_id", "is required")
	}
	if err := validateTitle(req.Title); err != nil {
		return err
	}
	if req.Priority != "" && !req.Priority.IsValid() {
		return domain.Invalid("priority", "must be one of low, medium, high, urgent (got %q)", req.Priority)
	}
	if req.DueDate != nil && req.StartDate != nil && req.DueDate.Before(*req.StartDate) {
		return domain.Invalid("due_date", "must not be before start_date")
	}
	return nil
}

// ValidateUpdateRequest validates the present fields of a partial update.
func ValidateUpdateRequest(u *UpdateRequest) error {
	if u.Title.Set {
		if err := validateTitle(u.Title.Value); err != nil {
			return err
		}
	}
	if u.Priority.Set && !u.Priority.Value.IsValid() {
		return domain.Invalid("priority", "must be one of low, medium, high, urgent (got %q)", u.Priority.Value)
	}
	if u.ColumnID.Set && strings.TrimSpace(u.ColumnID.Value) == "" {
		return domain.Invalid("column_id", "cannot be empty")
	}
	if u.AgentIDs.Set && u.AgentNames.Set && len(u.AgentIDs.Value) != len(u.AgentNames.Value) {
		return domain.Invalid("agent_names", "must have one entry per agent id")
	}
	if u.Version != nil && *u.Version < 0 {
		return domain.Invalid("version", "must not be negative")
	}
	return nil
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return domain.Invalid("title", "is required")
	}
	if len(title) > maxTitleLength {
		return domain.Invalid("title", "exceeds %d characters", maxTitleLength)
	}
	for _, r := range title {
		if unicode.IsControl(r) {
			return domain.Invalid("title", "contains control characters")
		}
	}
	return nil
}
