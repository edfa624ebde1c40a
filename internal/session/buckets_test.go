package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomas-app/companion-platform/internal/model"
)

func TestBucketLabel(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		updated time.Time
		want    string
	}{
		{name: "an hour ago", updated: now.Add(-time.Hour), want: LabelToday},
		{name: "midnight today", updated: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), want: LabelToday},
		{name: "future timestamp", updated: now.Add(time.Hour), want: LabelToday},
		{name: "just before midnight", updated: time.Date(2025, 3, 9, 23, 59, 59, 0, time.UTC), want: LabelYesterday},
		{name: "23 hours ago but yesterday", updated: time.Date(2025, 3, 9, 10, 30, 0, 0, time.UTC), want: LabelYesterday},
		{name: "two days back", updated: now.AddDate(0, 0, -2), want: LabelPrevious7},
		{name: "seven days back", updated: now.AddDate(0, 0, -7), want: LabelPrevious7},
		{name: "eight days back", updated: now.AddDate(0, 0, -8), want: LabelOlder},
		{name: "a year back", updated: now.AddDate(-1, 0, 0), want: LabelOlder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bucketLabel(tt.updated, now))
		})
	}
}

func TestBucketizeOrderAndOmission(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	convs := []model.Conversation{
		{ID: "t1", UpdatedAt: now.Add(-time.Minute)},
		{ID: "t2", UpdatedAt: now.Add(-2 * time.Hour)},
		{ID: "old", UpdatedAt: now.AddDate(0, 0, -30)},
	}

	sections := Bucketize(convs, now)
	require.Len(t, sections, 2, "empty sections are omitted")

	assert.Equal(t, LabelToday, sections[0].Label)
	assert.Equal(t, []string{"t1", "t2"}, ids(sections[0].Conversations), "input order preserved within a section")
	assert.Equal(t, LabelOlder, sections[1].Label)
}

func TestBucketizeEmpty(t *testing.T) {
	assert.Empty(t, Bucketize(nil, time.Now()))
}

func ids(convs []model.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}
