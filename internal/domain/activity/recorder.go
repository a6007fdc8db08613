package activity

import (
	"fmt"
	"time"
)

// Recorder shapes change descriptors into audit entries. It never decides
// whether something changed; it only assigns kind, actor, timestamp and
// append position.
type Recorder struct {
	now func() time.Time
}

// NewRecorder creates a Recorder using the given clock. A nil clock means time.Now.
func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

// Now reads the recorder's clock in UTC. Writes that are not audit entries,
// such as comments, use it so every timestamp of a task shares one clock.
func (r *Recorder) Now() time.Time {
	return r.now().UTC()
}

// Record returns one entry per change, appended after the base existing entries.
// All entries of one call share the same timestamp.
func (r *Recorder) Record(base int, actorID string, changes []Change) []Entry {
	if len(changes) == 0 {
		return nil
	}
	at := r.now().UTC()
	entries := make([]Entry, 0, len(changes))
	for i, c := range changes {
		entries = append(entries, Entry{
			Seq:         base + i + 1,
			Kind:        c.Kind,
			Field:       c.Field,
			ActorID:     actorID,
			OldValue:    c.OldValue,
			NewValue:    c.NewValue,
			Description: c.Description,
			CreatedAt:   at,
		})
	}
	return entries
}

// Created returns the synthetic first entry of a new task.
func (r *Recorder) Created(actorID, title string) Entry {
	return Entry{
		Seq:         1,
		Kind:        KindCreated,
		ActorID:     actorID,
		NewValue:    title,
		Description: "created the task",
		CreatedAt:   r.now().UTC(),
	}
}

// Attachment returns the entry for an attachment being added or removed.
func (r *Recorder) Attachment(base int, actorID string, kind Kind, name string) Entry {
	e := Entry{
		Seq:       base + 1,
		Kind:      kind,
		Field:     "attachments",
		ActorID:   actorID,
		CreatedAt: r.now().UTC(),
	}
	switch kind {
	case KindAttachmentRemoved:
		e.OldValue = name
		e.Description = fmt.Sprintf("removed attachment %q", name)
	default:
		e.NewValue = name
		e.Description = fmt.Sprintf("added attachment %q", name)
	}
	return e
}
