// Package insights detects UX friction patterns in the recorded event log:
// rage clicks, dead clicks, clicks followed by failing API calls, U-turn
// navigation and slow pages.
package insights

import (
	"encoding/json"
	"sort"

	"github.com/gosight/logflow/internal/event"
)

type Kind string

const (
	KindRageClick  Kind = "rage_click"
	KindDeadClick  Kind = "dead_click"
	KindErrorClick Kind = "error_click"
	KindUTurn      Kind = "u_turn"
	KindSlowPage   Kind = "slow_page"
)

// Insight represents a detected UX insight
type Insight struct {
	Kind            Kind           `json:"kind"`
	SessionID       string         `json:"sessionId"`
	Timestamp       int64          `json:"timestamp"`
	Path            string         `json:"path,omitempty"`
	ElementID       string         `json:"elementId,omitempty"`
	Details         map[string]any `json:"details,omitempty"`
	RelatedEventIDs []string       `json:"relatedEventIds"`
}

// bySession groups events per session, each group ordered by timestamp.
// Session order follows first appearance.
func bySession(events []event.Event) [][]event.Event {
	index := make(map[string]int)
	var groups [][]event.Event
	for _, e := range events {
		i, ok := index[e.SessionID]
		if !ok {
			i = len(groups)
			index[e.SessionID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], e)
	}
	for _, g := range groups {
		sort.SliceStable(g, func(a, b int) bool { return g[a].Timestamp < g[b].Timestamp })
	}
	return groups
}

// number reads a numeric metadata value. JSON-decoded metadata holds float64.
func number(md map[string]any, key string) (float64, bool) {
	switch v := md[key].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
