package analytics

import (
	"time"

	"github.com/gosight/logflow/internal/event"
)

const (
	topLimit            = 5
	recentEventLimit    = 10
	recentSessionsLimit = 4
)

// Summary is the dashboard view model computed from one snapshot
type Summary struct {
	GeneratedAt    time.Time       `json:"generatedAt"`
	TotalEvents    int             `json:"totalEvents"`
	Sessions       SessionSummary  `json:"sessions"`
	ConversionRate float64         `json:"conversionRate"`
	Hourly         []Bucket        `json:"hourly"`
	Daily          []Bucket        `json:"daily"`
	Top            []Ranked        `json:"top"`
	Types          []TypeShare     `json:"types"`
	Today          Comparison      `json:"today"`
	ThisWeek       Comparison      `json:"thisWeek"`
	RecentEvents   []event.Event   `json:"recentEvents"`
	RecentSessions []event.Session `json:"recentSessions"`
}

// Summarize computes every dashboard metric over snap. The current session,
// when active, counts as a session everywhere.
func Summarize(snap event.Snapshot, now time.Time, loc *time.Location) Summary {
	if loc == nil {
		loc = time.Local
	}
	sessions := snap.AllSessions()

	today := startOfDay(now, loc)
	tomorrow := today.AddDate(0, 0, 1)
	yesterday := today.AddDate(0, 0, -1)
	weekStart := now.Add(-7 * 24 * time.Hour)
	lastWeekStart := now.Add(-14 * 24 * time.Hour)

	dayCmp := Compare(snap.Events, sessions,
		Window{Start: today, End: tomorrow},
		Window{Start: yesterday, End: today})
	dayCmp.Current.Label, dayCmp.Previous.Label = "today", "yesterday"

	weekCmp := Compare(snap.Events, sessions,
		Window{Start: weekStart, End: tomorrow},
		Window{Start: lastWeekStart, End: weekStart})
	weekCmp.Current.Label, weekCmp.Previous.Label = "this week", "last week"

	return Summary{
		GeneratedAt:    now,
		TotalEvents:    len(snap.Events),
		Sessions:       SessionStats(sessions),
		ConversionRate: ConversionRate(snap.Events, sessions),
		Hourly:         Hourly(snap.Events, now, loc),
		Daily:          Daily(snap.Events, now, loc),
		Top:            TopN(snap.Events, topLimit),
		Types:          TypeBreakdown(snap.Events),
		Today:          dayCmp,
		ThisWeek:       weekCmp,
		RecentEvents:   Recent(snap.Events, recentEventLimit),
		RecentSessions: RecentSessions(sessions, recentSessionsLimit),
	}
}
