// Package timeline merges task comments and audit entries into one
// chronological feed.
package timeline

import (
	"slices"
	"time"

	"github.com/Strob0t/TrackForge/internal/domain/activity"
	"github.com/Strob0t/TrackForge/internal/domain/task"
)

// Kind tells which source an item came from.
type Kind string

const (
	KindComment  Kind = "comment"
	KindActivity Kind = "activity"
)

// Item is one element of the merged feed. Exactly one of Comment and
// Activity is set, matching Kind.
type Item struct {
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Comment   *task.Comment   `json:"comment,omitempty"`
	Activity  *activity.Entry `json:"activity,omitempty"`
}

// Merge returns comments and entries ordered by timestamp ascending. The
// sort is stable; on equal timestamps comments precede activity and each
// source keeps its input order. The result is never nil.
func Merge(comments []task.Comment, entries []activity.Entry) []Item {
	items := make([]Item, 0, len(comments)+len(entries))
	for i := range comments {
		c := comments[i]
		items = append(items, Item{Kind: KindComment, Timestamp: c.CreatedAt, Comment: &c})
	}
	for i := range entries {
		e := entries[i]
		items = append(items, Item{Kind: KindActivity, Timestamp: e.CreatedAt, Activity: &e})
	}
	slices.SortStableFunc(items, func(a, b Item) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return items
}

// Of returns the merged feed of a task.
func Of(t *task.Task) []Item {
	return Merge(t.Comments, t.Activity)
}
