package inmemdb

import (
	"strings"
	"time"

	"github.com/bytedeck/deck/core"
)

// less applies ordering with cmp comparing one field of the two rows; IDs ascending by default.
func less(ordering []core.DBOrdering, cmp func(field string) int) bool {
	if len(ordering) == 0 {
		return cmp("id") < 0
	}
	for _, ord := range ordering {
		c := cmp(ord.Field)
		if c == 0 {
			continue
		}
		if ord.Ascending {
			return c < 0
		}
		return c > 0
	}
	return false
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareString(a, b string) int { return strings.Compare(a, b) }
