package attachment

// GroupKey returns the bucket an attachment belongs to. Empty or stale
// status ids fall back to Unassigned. A nil isLive treats every non-empty
// status id as live.
func GroupKey(statusID string, isLive func(string) bool) string {
	if statusID == "" || statusID == Unassigned {
		return Unassigned
	}
	if isLive != nil && !isLive(statusID) {
		return Unassigned
	}
	return statusID
}

// GroupByStatus partitions entries by status in their original order.
// No entry is ever dropped.
func GroupByStatus(entries []Entry, isLive func(string) bool) map[string][]Entry {
	groups := make(map[string][]Entry)
	for _, e := range entries {
		key := GroupKey(e.StatusID, isLive)
		groups[key] = append(groups[key], e)
	}
	return groups
}

// Groups returns the grouping as a slice ordered by first appearance of
// each status, which keeps JSON output deterministic.
func Groups(entries []Entry, isLive func(string) bool) []Group {
	byKey := GroupByStatus(entries, isLive)
	seen := make(map[string]bool, len(byKey))
	out := make([]Group, 0, len(byKey))
	for _, e := range entries {
		key := GroupKey(e.StatusID, isLive)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Group{StatusID: key, Entries: byKey[key]})
	}
	return out
}

// Committed wraps stored attachments as committed entries.
func Committed(atts []Attachment) []Entry {
	entries := make([]Entry, 0, len(atts))
	for i := range atts {
		entries = append(entries, Entry{Attachment: atts[i], State: StateCommitted})
	}
	return entries
}
