package task

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Strob0t/TrackForge/internal/domain/activity"
)

const dateLayout = "2006-01-02"

// Detector compares a partial update against the current snapshot of a task
// and yields one change descriptor per semantically changed field. It is a
// pure function of its inputs; loc fixes the calendar used for date fields.
type Detector struct {
	loc *time.Location
}

// NewDetector creates a Detector that compares dates as calendar days in loc.
// A nil loc means time.Local.
func NewDetector(loc *time.Location) *Detector {
	if loc == nil {
		loc = time.Local
	}
	return &Detector{loc: loc}
}

// Detect returns the changes update would make to current, in registry order.
// Fields absent from update never produce a change.
func (d *Detector) Detect(current *Task, update *UpdateRequest) []activity.Change {
	var changes []activity.Change
	for _, f := range diffFields {
		if c, ok := f.detect(current, update, d.loc); ok {
			changes = append(changes, c)
		}
	}
	return changes
}

// differ is one entry of the diff registry.
type differ interface {
	detect(cur *Task, u *UpdateRequest, loc *time.Location) (activity.Change, bool)
}

// fieldDiff describes one diffable field: how to read both sides, how to
// normalize them before comparison, and how to phrase the change.
type fieldDiff[T, V any] struct {
	field      string
	kind       activity.Kind
	current    func(*Task) T
	proposed   func(*UpdateRequest) Optional[T]
	normalize  func(T, *time.Location) V
	equal      func(a, b V) bool
	describe   func(old, new V) string
	emptyAsNil bool
}

func (f fieldDiff[T, V]) detect(cur *Task, u *UpdateRequest, loc *time.Location) (activity.Change, bool) {
	p := f.proposed(u)
	if !p.Set {
		return activity.Change{}, false
	}
	oldV := f.normalize(f.current(cur), loc)
	newV := f.normalize(p.Value, loc)
	if f.equal(oldV, newV) {
		return activity.Change{}, false
	}
	return activity.Change{
		Kind:        f.kind,
		Field:       f.field,
		OldValue:    f.value(oldV),
		NewValue:    f.value(newV),
		Description: f.describe(oldV, newV),
	}, true
}

func (f fieldDiff[T, V]) value(v V) any {
	if f.emptyAsNil {
		if s, ok := any(v).(string); ok && s == "" {
			return nil
		}
	}
	return v
}

// diffFields is the registry iterated by Detect. Adding a diffable field
// means adding one entry here.
var diffFields = []differ{
	fieldDiff[string, string]{
		field:     "title",
		kind:      activity.KindTitleChanged,
		current:   func(t *Task) string { return t.Title },
		proposed:  func(u *UpdateRequest) Optional[string] { return u.Title },
		normalize: exact[string],
		equal:     same[string],
		describe: func(o, n string) string {
			return fmt.Sprintf("changed title from %q to %q", o, n)
		},
	},
	fieldDiff[string, string]{
		field:     "description",
		kind:      activity.KindDescriptionChanged,
		current:   func(t *Task) string { return t.Description },
		proposed:  func(u *UpdateRequest) Optional[string] { return u.Description },
		normalize: exact[string],
		equal:     same[string],
		describe:  func(_, _ string) string { return "updated the description" },
	},
	fieldDiff[Priority, string]{
		field:     "priority",
		kind:      activity.KindPriorityChanged,
		current:   func(t *Task) Priority { return t.Priority },
		proposed:  func(u *UpdateRequest) Optional[Priority] { return u.Priority },
		normalize: func(p Priority, _ *time.Location) string { return string(p) },
		equal:     same[string],
		describe: func(o, n string) string {
			return fmt.Sprintf("changed priority from %s to %s", orNone(o), orNone(n))
		},
	},
	fieldDiff[string, string]{
		field:     "column_id",
		kind:      activity.KindStatusChanged,
		current:   func(t *Task) string { return t.ColumnID },
		proposed:  func(u *UpdateRequest) Optional[string] { return u.ColumnID },
		normalize: exact[string],
		equal:     same[string],
		describe: func(o, n string) string {
			return fmt.Sprintf("moved from %s to %s", orNone(o), orNone(n))
		},
	},
	fieldDiff[[]string, []string]{
		field:     "assignees",
		kind:      activity.KindAssigneesChanged,
		current:   func(t *Task) []string { return t.Assignees },
		proposed:  func(u *UpdateRequest) Optional[[]string] { return u.Assignees },
		normalize: idSet,
		equal:     sameSet,
		describe: func(o, n []string) string {
			return describeSetChange("assigned", "unassigned", o, n)
		},
	},
	fieldDiff[string, string]{
		field:      "client",
		kind:       activity.KindClientChanged,
		current:    func(t *Task) string { return t.ClientID },
		proposed:   func(u *UpdateRequest) Optional[string] { return u.ClientID },
		normalize:  func(s string, _ *time.Location) string { return strings.TrimSpace(s) },
		equal:      same[string],
		describe:   describeOptional("client"),
		emptyAsNil: true,
	},
	fieldDiff[[]string, []string]{
		field:     "agents",
		kind:      activity.KindClientChanged,
		current:   func(t *Task) []string { return t.AgentIDs() },
		proposed:  func(u *UpdateRequest) Optional[[]string] { return u.AgentIDs },
		normalize: idSet,
		equal:     sameSet,
		describe: func(o, n []string) string {
			return describeSetChange("added client contact", "removed client contact", o, n)
		},
	},
	fieldDiff[*time.Time, string]{
		field:      "due_date",
		kind:       activity.KindDueDateChanged,
		current:    func(t *Task) *time.Time { return t.DueDate },
		proposed:   func(u *UpdateRequest) Optional[*time.Time] { return u.DueDate },
		normalize:  calendarDay,
		equal:      same[string],
		describe:   describeOptional("due date"),
		emptyAsNil: true,
	},
	fieldDiff[*time.Time, string]{
		field:      "start_date",
		kind:       activity.KindStartDateChanged,
		current:    func(t *Task) *time.Time { return t.StartDate },
		proposed:   func(u *UpdateRequest) Optional[*time.Time] { return u.StartDate },
		normalize:  calendarDay,
		equal:      same[string],
		describe:   describeOptional("start date"),
		emptyAsNil: true,
	},
}

func exact[T any](v T, _ *time.Location) T { return v }

func same[T comparable](a, b T) bool { return a == b }

func sameSet(a, b []string) bool { return slices.Equal(a, b) }

// idSet normalizes a reference list to a sorted, de-duplicated set of
// non-empty ids so that ordering alone never counts as a change.
func idSet(ids []string, _ *time.Location) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// calendarDay reduces a timestamp to its calendar day in loc, dropping time
// of day and zone offset.
func calendarDay(t *time.Time, loc *time.Location) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.In(loc).Format(dateLayout)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func describeOptional(label string) func(o, n string) string {
	return func(o, n string) string {
		switch {
		case o == "":
			return fmt.Sprintf("set %s to %s", label, n)
		case n == "":
			return fmt.Sprintf("cleared %s (was %s)", label, o)
		default:
			return fmt.Sprintf("changed %s from %s to %s", label, o, n)
		}
	}
}

func describeSetChange(addVerb, removeVerb string, o, n []string) string {
	var added, removed []string
	for _, id := range n {
		if !slices.Contains(o, id) {
			added = append(added, id)
		}
	}
	for _, id := range o {
		if !slices.Contains(n, id) {
			removed = append(removed, id)
		}
	}
	var parts []string
	if len(added) > 0 {
		parts = append(parts, addVerb+" "+strings.Join(added, ", "))
	}
	if len(removed) > 0 {
		parts = append(parts, removeVerb+" "+strings.Join(removed, ", "))
	}
	return strings.Join(parts, "; ")
}
