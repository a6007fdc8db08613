// Package messagequeue is the port for task event delivery: subjects,
// payload schemas and their validation.
package messagequeue

import "context"

// Handler consumes one message. Its context carries the publisher's request
// id. Returning an error asks for redelivery until the retry budget is spent,
// after which the message is dead-lettered.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue publishes task events and delivers them to every instance.
type Queue interface {
	Publish(ctx context.Context, subject string, data []byte) error
	// Subscribe consumes subject on this instance until cancel is called.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)
	// Drain lets in-flight handlers finish, then closes the connection.
	Drain() error
	Close() error
	// IsConnected backs the health check.
	IsConnected() bool
}

// Subjects published by the task engine.
const (
	SubjectTaskCreated     = "tasks.created"
	SubjectTaskUpdated     = "tasks.updated"
	SubjectTaskAttachments = "tasks.attachments"
)
