package task

import "fmt"

// SequenceID formats the human-readable identifier of the counter-th task on
// a board. Boards without a prefix do not issue sequence ids.
func SequenceID(prefix string, counter int) string {
	if prefix == "" || counter < 1 {
		return ""
	}
	return fmt.Sprintf("%s-%03d", prefix, counter)
}
