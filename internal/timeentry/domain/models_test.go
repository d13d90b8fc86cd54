package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSplitHours(t *testing.T) {
	eight := decimal.NewFromInt(8)
	cases := []struct {
		hours    string
		regular  string
		overtime string
	}{
		{"10", "8", "2"},
		{"6", "6", "0"},
		{"8", "8", "0"},
		{"8.25", "8", "0.25"},
		{"24", "8", "16"},
	}
	for _, tc := range cases {
		t.Run(tc.hours, func(t *testing.T) {
			regular, overtime := SplitHours(decimal.RequireFromString(tc.hours), eight)
			assert.True(t, regular.Equal(decimal.RequireFromString(tc.regular)), "regular %s", regular)
			assert.True(t, overtime.Equal(decimal.RequireFromString(tc.overtime)), "overtime %s", overtime)
		})
	}
}

func TestWeekStart(t *testing.T) {
	monday := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, WeekStart(time.Date(2026, 6, 1, 17, 30, 0, 0, time.UTC)))
	assert.Equal(t, monday, WeekStart(time.Date(2026, 6, 4, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, monday, WeekStart(time.Date(2026, 6, 7, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, monday.AddDate(0, 0, 7), WeekStart(time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC)))
}

func TestSummarizeUsesStoredSplits(t *testing.T) {
	week := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	entry := func(person int64, hours, regular, overtime string) TimeEntry {
		return TimeEntry{
			PersonID:      snowflake.ID(person),
			Hours:         decimal.RequireFromString(hours),
			RegularHours:  decimal.RequireFromString(regular),
			OvertimeHours: decimal.RequireFromString(overtime),
		}
	}
	// The second entry was saved under a 10 hour threshold and keeps that split.
	summary := Summarize(week, []TimeEntry{
		entry(1, "10", "8", "2"),
		entry(1, "10", "10", "0"),
		entry(2, "6", "6", "0"),
	})

	assert.Equal(t, week.AddDate(0, 0, 6), summary.WeekEnd)
	assert.Len(t, summary.People, 2)
	assert.Equal(t, 2, summary.People[0].Entries)
	assert.Equal(t, "18", summary.People[0].RegularHours.String())
	assert.Equal(t, "2", summary.People[0].OvertimeHours.String())
	assert.Equal(t, "26", summary.Totals.Hours.String())
	assert.Equal(t, 3, summary.Totals.Entries)
}
