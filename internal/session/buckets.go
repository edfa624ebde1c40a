package session

import (
	"time"

	"github.com/nomas-app/companion-platform/internal/model"
)

// Bucket labels, in display order.
const (
	LabelToday     = "Today"
	LabelYesterday = "Yesterday"
	LabelPrevious7 = "Previous 7 Days"
	LabelOlder     = "Older"
)

var bucketOrder = []string{LabelToday, LabelYesterday, LabelPrevious7, LabelOlder}

// Bucketize partitions conversations into recency sections by calendar day
// relative to now's location. The input ordering (updated_at descending) is
// preserved within each section; empty sections are omitted. Every
// conversation lands in exactly one section.
func Bucketize(convs []model.Conversation, now time.Time) []model.Section {
	byLabel := make(map[string][]model.Conversation, len(bucketOrder))
	for _, conv := range convs {
		label := bucketLabel(conv.UpdatedAt, now)
		byLabel[label] = append(byLabel[label], conv)
	}

	sections := make([]model.Section, 0, len(bucketOrder))
	for _, label := range bucketOrder {
		if members := byLabel[label]; len(members) > 0 {
			sections = append(sections, model.Section{Label: label, Conversations: members})
		}
	}
	return sections
}

func bucketLabel(updated, now time.Time) string {
	switch days := dayNumber(now) - dayNumber(updated.In(now.Location())); {
	case days <= 0:
		return LabelToday
	case days == 1:
		return LabelYesterday
	case days <= 7:
		return LabelPrevious7
	default:
		return LabelOlder
	}
}

// dayNumber maps a wall-clock time to a monotonic calendar-day index.
// Anchoring at noon UTC keeps DST transitions from shifting the day count.
func dayNumber(t time.Time) int {
	noon := time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, time.UTC)
	return int(noon.Unix() / 86400)
}
