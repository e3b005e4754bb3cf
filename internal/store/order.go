package store

import (
	"sort"

	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
)

// sortByTimestamp orders events by timestamp. Events sharing a timestamp
// keep their order, creates staying ahead of the references they enable.
func sortByTimestamp(events []sample.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp() < events[j].Timestamp()
	})
}
