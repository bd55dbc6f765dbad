package analytics

import (
	"time"

	"github.com/gosight/logflow/internal/event"
)

// SessionSummary holds the session statistics shown on the dashboard
type SessionSummary struct {
	Sessions    int           `json:"sessions"`
	UniqueUsers int           `json:"uniqueUsers"`
	AvgDuration time.Duration `json:"avgDuration"`
	AvgEvents   float64       `json:"avgEvents"`
}

// SessionStats computes duration and visitor statistics. Callers pass the
// current session along with the archived ones when it should count.
func SessionStats(sessions []event.Session) SessionSummary {
	if len(sessions) == 0 {
		return SessionSummary{}
	}

	var totalMs, totalEvents int64
	users := make(map[string]struct{}, len(sessions))
	for i := range sessions {
		s := &sessions[i]
		totalMs += s.LastActivity - s.StartTime
		totalEvents += int64(len(s.Events))
		users[s.VisitorID()] = struct{}{}
	}

	n := int64(len(sessions))
	return SessionSummary{
		Sessions:    len(sessions),
		UniqueUsers: len(users),
		AvgDuration: time.Duration(totalMs/n) * time.Millisecond,
		AvgEvents:   float64(totalEvents) / float64(n),
	}
}

// UniqueUsers counts distinct visitors (user id, else session id)
func UniqueUsers(sessions []event.Session) int {
	users := make(map[string]struct{}, len(sessions))
	for i := range sessions {
		users[sessions[i].VisitorID()] = struct{}{}
	}
	return len(users)
}

// ConversionRate is form submissions per session, as a percentage. It is 0
// when there are no sessions.
func ConversionRate(events []event.Event, sessions []event.Session) float64 {
	conversions := 0
	for _, e := range events {
		if e.Type == event.TypeFormSubmit {
			conversions++
		}
	}
	return percent(conversions, len(sessions))
}

// RecentSessions returns up to n sessions, newest first
func RecentSessions(sessions []event.Session, n int) []event.Session {
	if n <= 0 || n > len(sessions) {
		n = len(sessions)
	}
	out := make([]event.Session, 0, n)
	for i := len(sessions) - 1; i >= len(sessions)-n; i-- {
		out = append(out, sessions[i])
	}
	return out
}

// FunnelStep is the number of sessions that reached a step of a funnel
type FunnelStep struct {
	Step       string  `json:"step"`
	Sessions   int     `json:"sessions"`
	Dropoff    int     `json:"dropoff"`
	Conversion float64 `json:"conversion"`
}

// Funnel counts the sessions whose visited paths contain steps[0..i] in
// order. Conversion is relative to the first step; drop-off is the loss
// from the previous step.
func Funnel(sessions []event.Session, steps []string) []FunnelStep {
	out := make([]FunnelStep, len(steps))
	for i, step := range steps {
		out[i].Step = step
	}
	if len(steps) == 0 {
		return out
	}

	for i := range sessions {
		reached := 0
		for _, p := range sessions[i].Path {
			if reached < len(steps) && p == steps[reached] {
				reached++
			}
		}
		for k := 0; k < reached; k++ {
			out[k].Sessions++
		}
	}

	for i := range out {
		if i > 0 {
			out[i].Dropoff = out[i-1].Sessions - out[i].Sessions
		}
		out[i].Conversion = percent(out[i].Sessions, out[0].Sessions)
	}
	return out
}
