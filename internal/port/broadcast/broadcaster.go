// Package broadcast defines the port for broadcasting real-time events to connected clients.
package broadcast

import "context"

// Event types pushed to clients.
const (
	EventTaskCreated      = "task.created"
	EventTaskActivity     = "task.activity"
	EventTaskComment      = "task.comment"
	EventAttachmentStatus = "attachment.status"
)

// Broadcaster sends real-time events to the connected clients of one tenant.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to every client of tenantID.
	BroadcastEvent(ctx context.Context, tenantID, eventType string, payload any)
}
