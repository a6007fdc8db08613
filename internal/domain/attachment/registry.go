package attachment

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrEntryGone is returned when an upload finishes for an entry that was
// removed or already resolved in the meantime.
var ErrEntryGone = errors.New("attachment entry no longer pending")

// ErrNoSuchEntry is returned when a status group has no entry at the given index.
var ErrNoSuchEntry = errors.New("no attachment at index")

// Registry holds the ordered attachment list of one task, including entries
// that are still uploading. It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries []Entry
	nextPos int64
	isLive  func(string) bool
}

// NewRegistry seeds a registry with already stored attachments.
func NewRegistry(stored []Attachment, isLive func(string) bool) *Registry {
	r := &Registry{entries: Committed(stored), isLive: isLive}
	for i := range stored {
		if stored[i].Position >= r.nextPos {
			r.nextPos = stored[i].Position + 1
		}
	}
	return r
}

// Stage appends a pending entry under a fresh temporary id and returns it.
func (r *Registry) Stage(att Attachment) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	att.ID = TempPrefix + uuid.NewString()
	att.URL = ""
	att.Position = r.nextPos
	r.nextPos++
	e := Entry{Attachment: att, State: StateUploading}
	r.entries = append(r.entries, e)
	return e
}

// Resolve finishes a pending upload. persist runs with the registry locked
// and receives the pending attachment; its result replaces the entry in
// place as committed, keeping position and status. If persist fails the
// entry is dropped. ErrEntryGone means the entry was removed first and the
// late result must be ignored.
func (r *Registry) Resolve(tempID string, persist func(pending Attachment) (Attachment, error)) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(tempID)
	if i < 0 || r.entries[i].State != StateUploading {
		return Entry{}, ErrEntryGone
	}

	pending := r.entries[i].Attachment
	committed, err := persist(pending)
	if err != nil {
		r.entries = append(r.entries[:i], r.entries[i+1:]...)
		return Entry{}, err
	}
	committed.Position = pending.Position
	committed.StatusID = pending.StatusID
	committed.StatusName = pending.StatusName

	r.entries[i] = Entry{Attachment: committed, State: StateCommitted}
	return r.entries[i], nil
}

// Fail drops a pending entry. It reports whether an entry was dropped.
func (r *Registry) Fail(tempID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(tempID)
	if i < 0 || r.entries[i].State != StateUploading {
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return true
}

// Remove deletes the index-th entry of a status group. Committed entries
// call remote first and stay in place if it fails; entries that never got
// a server id are removed locally without calling remote.
func (r *Registry) Remove(statusID string, index int, remote func(Entry) error) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := GroupKey(statusID, r.isLive)
	n := 0
	for i := range r.entries {
		if GroupKey(r.entries[i].StatusID, r.isLive) != key {
			continue
		}
		if n != index {
			n++
			continue
		}
		e := r.entries[i]
		if e.State == StateCommitted && !e.IsTemporary() && remote != nil {
			if err := remote(e); err != nil {
				return Entry{}, err
			}
		}
		r.entries = append(r.entries[:i], r.entries[i+1:]...)
		return e, nil
	}
	return Entry{}, fmt.Errorf("%s[%d]: %w", key, index, ErrNoSuchEntry)
}

// Lookup returns the entry with the given id.
func (r *Registry) Lookup(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Entries returns a copy of all entries in order.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Pending returns the number of entries still uploading.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for i := range r.entries {
		if r.entries[i].State == StateUploading {
			n++
		}
	}
	return n
}

// PendingEntries returns a copy of the entries still uploading, in order.
func (r *Registry) PendingEntries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Entry
	for i := range r.entries {
		if r.entries[i].State == StateUploading {
			out = append(out, r.entries[i])
		}
	}
	return out
}

// Groups recomputes the status grouping of the current entries.
func (r *Registry) Groups() []Group {
	return Groups(r.Entries(), r.isLive)
}

// indexOf must be called with r.mu held.
func (r *Registry) indexOf(id string) int {
	for i := range r.entries {
		if r.entries[i].ID == id {
			return i
		}
	}
	return -1
}
