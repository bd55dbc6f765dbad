package analytics

import (
	"time"

	"github.com/gosight/logflow/internal/event"
)

// Window is the half-open time range [Start, End)
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether the Unix-millisecond timestamp ts is in w
func (w Window) Contains(ts int64) bool {
	return ts >= w.Start.UnixMilli() && ts < w.End.UnixMilli()
}

// PeriodStats is the activity observed in one window
type PeriodStats struct {
	Label  string `json:"label"`
	Window Window `json:"window"`
	Events int    `json:"events"`
	Users  int    `json:"users"`
}

// Comparison pairs two periods with the percentage change between them
type Comparison struct {
	Current      PeriodStats `json:"current"`
	Previous     PeriodStats `json:"previous"`
	EventsChange float64     `json:"eventsChange"`
	UsersChange  float64     `json:"usersChange"`
}

// Period counts the events in w and the distinct visitors of the sessions
// that started in w.
func Period(events []event.Event, sessions []event.Session, w Window) PeriodStats {
	stats := PeriodStats{Window: w}
	for _, e := range events {
		if w.Contains(e.Timestamp) {
			stats.Events++
		}
	}
	users := make(map[string]struct{})
	for i := range sessions {
		if w.Contains(sessions[i].StartTime) {
			users[sessions[i].VisitorID()] = struct{}{}
		}
	}
	stats.Users = len(users)
	return stats
}

// Compare computes both periods and their deltas
func Compare(events []event.Event, sessions []event.Session, current, previous Window) Comparison {
	cur := Period(events, sessions, current)
	prev := Period(events, sessions, previous)
	return Comparison{
		Current:      cur,
		Previous:     prev,
		EventsChange: Delta(float64(cur.Events), float64(prev.Events)),
		UsersChange:  Delta(float64(cur.Users), float64(prev.Users)),
	}
}

// Delta is the percentage change from previous to current, 0 when previous
// is 0.
func Delta(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}
