package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/TrackForge/internal/domain/activity"
	"github.com/Strob0t/TrackForge/internal/domain/attachment"
	"github.com/Strob0t/TrackForge/internal/domain/task"
	"github.com/Strob0t/TrackForge/internal/port/broadcast"
)

// Event type constants for WebSocket messages.
const (
	EventTaskCreated      = broadcast.EventTaskCreated
	EventTaskActivity     = broadcast.EventTaskActivity
	EventTaskComment      = broadcast.EventTaskComment
	EventAttachmentStatus = broadcast.EventAttachmentStatus
)

// TaskCreatedEvent is broadcast when a task is created on a board.
type TaskCreatedEvent struct {
	TaskID     string `json:"task_id"`
	BoardID    string `json:"board_id"`
	SequenceID string `json:"sequence_id,omitempty"`
	Title      string `json:"title"`
	ActorID    string `json:"actor_id"`
}

// TaskActivityEvent carries the audit entries appended by one mutation.
type TaskActivityEvent struct {
	TaskID  string           `json:"task_id"`
	Version int              `json:"version"`
	Entries []activity.Entry `json:"entries"`
}

// TaskCommentEvent is broadcast when a comment is added to a task.
type TaskCommentEvent struct {
	TaskID  string       `json:"task_id"`
	Comment task.Comment `json:"comment"`
}

// AttachmentStatusEvent reports a state change of one upload.
type AttachmentStatusEvent struct {
	TaskID  string             `json:"task_id"`
	Outcome attachment.Outcome `json:"outcome"`
}

// BroadcastEvent marshals a typed event and sends it to the clients of tenantID.
func (h *Hub) BroadcastEvent(ctx context.Context, tenantID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.BroadcastToTenant(ctx, tenantID, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}

var _ broadcast.Broadcaster = (*Hub)(nil)
