package analytics

import (
	"sort"

	"github.com/gosight/logflow/internal/event"
)

// Ranked is one entry of a top-N ranking by element
type Ranked struct {
	ElementID   string  `json:"elementId"`
	ElementName string  `json:"elementName"`
	Count       int     `json:"count"`
	Percentage  float64 `json:"percentage"`
}

// TopN groups events by element id and returns the n most frequent, highest
// count first. Ties keep first-seen order. The name is the first one seen
// for the element. n <= 0 returns every element.
func TopN(events []event.Event, n int) []Ranked {
	index := make(map[string]int)
	ranked := []Ranked{}
	for _, e := range events {
		i, ok := index[e.ElementID]
		if !ok {
			i = len(ranked)
			index[e.ElementID] = i
			ranked = append(ranked, Ranked{ElementID: e.ElementID, ElementName: e.ElementName})
		}
		ranked[i].Count++
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Count > ranked[b].Count
	})

	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	total := len(events)
	for i := range ranked {
		ranked[i].Percentage = percent(ranked[i].Count, total)
	}
	return ranked
}

// TypeShare is the share of one event type in a set of events
type TypeShare struct {
	Type       event.Type `json:"type"`
	Count      int        `json:"count"`
	Percentage float64    `json:"percentage"`
}

// TypeBreakdown returns each type's share of the event count, in first-seen
// order. An empty input yields an empty distribution.
func TypeBreakdown(events []event.Event) []TypeShare {
	shares := []TypeShare{}
	if len(events) == 0 {
		return shares
	}

	index := make(map[event.Type]int)
	for _, e := range events {
		i, ok := index[e.Type]
		if !ok {
			i = len(shares)
			index[e.Type] = i
			shares = append(shares, TypeShare{Type: e.Type})
		}
		shares[i].Count++
	}

	for i := range shares {
		shares[i].Percentage = percent(shares[i].Count, len(events))
	}
	return shares
}

// Recent returns up to n events, newest first
func Recent(events []event.Event, n int) []event.Event {
	if n <= 0 || n > len(events) {
		n = len(events)
	}
	out := make([]event.Event, 0, n)
	for i := len(events) - 1; i >= len(events)-n; i-- {
		out = append(out, events[i])
	}
	return out
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
