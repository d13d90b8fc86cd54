package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// TimeEntry records one person's hours on one job order for one day.
type TimeEntry struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID    `gorm:"not null;index" json:"org_id"`
	PersonID      snowflake.ID    `gorm:"not null;index" json:"person_id"`
	JobOrderID    snowflake.ID    `gorm:"not null;index" json:"job_order_id"`
	WorkDate      time.Time       `gorm:"not null;index" json:"work_date"`
	Hours         decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"hours"`
	RegularHours  decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"regular_hours"`
	OvertimeHours decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"overtime_hours"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
	DeletedAt     *time.Time      `gorm:"index" json:"deleted_at,omitempty"`
	DeletedBy     *string         `json:"deleted_by,omitempty"`
}

func (TimeEntry) TableName() string { return "time_entries" }

// SplitHours divides hours at threshold into regular and overtime.
func SplitHours(hours, threshold decimal.Decimal) (regular, overtime decimal.Decimal) {
	regular = decimal.Min(hours, threshold)
	overtime = decimal.Max(decimal.Zero, hours.Sub(threshold))
	return regular, overtime
}

// Apply stores hours on the entry together with its split.
func (e *TimeEntry) Apply(hours, threshold decimal.Decimal) {
	e.Hours = hours
	e.RegularHours, e.OvertimeHours = SplitHours(hours, threshold)
}

// WorkDay truncates t to a UTC calendar day.
func WorkDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeekStart returns the Monday of the week containing t.
func WeekStart(t time.Time) time.Time {
	day := WorkDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// WeeklyTotals are the stored splits of one person's entries in one week.
type WeeklyTotals struct {
	PersonID      snowflake.ID    `json:"person_id"`
	PersonName    string          `json:"person_name,omitempty"`
	Entries       int             `json:"entries"`
	Hours         decimal.Decimal `json:"hours"`
	RegularHours  decimal.Decimal `json:"regular_hours"`
	OvertimeHours decimal.Decimal `json:"overtime_hours"`
}

type WeeklySummary struct {
	WeekStart time.Time      `json:"week_start"`
	WeekEnd   time.Time      `json:"week_end"`
	People    []WeeklyTotals `json:"people"`
	Totals    WeeklyTotals   `json:"totals"`
}

// Summarize aggregates entries per person. It never re-splits hours.
func Summarize(weekStart time.Time, entries []TimeEntry) WeeklySummary {
	summary := WeeklySummary{
		WeekStart: weekStart,
		WeekEnd:   weekStart.AddDate(0, 0, 6),
		People:    []WeeklyTotals{},
		Totals:    WeeklyTotals{Hours: decimal.Zero, RegularHours: decimal.Zero, OvertimeHours: decimal.Zero},
	}
	index := make(map[snowflake.ID]int)
	for _, entry := range entries {
		i, ok := index[entry.PersonID]
		if !ok {
			i = len(summary.People)
			index[entry.PersonID] = i
			summary.People = append(summary.People, WeeklyTotals{
				PersonID:      entry.PersonID,
				Hours:         decimal.Zero,
				RegularHours:  decimal.Zero,
				OvertimeHours: decimal.Zero,
			})
		}
		summary.People[i].add(entry)
		summary.Totals.add(entry)
	}
	return summary
}

func (w *WeeklyTotals) add(entry TimeEntry) {
	w.Entries++
	w.Hours = w.Hours.Add(entry.Hours)
	w.RegularHours = w.RegularHours.Add(entry.RegularHours)
	w.OvertimeHours = w.OvertimeHours.Add(entry.OvertimeHours)
}
