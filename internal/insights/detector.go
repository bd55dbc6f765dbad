package insights

import (
	"sort"

	"github.com/gosight/logflow/internal/config"
	"github.com/gosight/logflow/internal/event"
)

// Detector runs every detector over an event log
type Detector struct {
	rageClick  *RageClickDetector
	deadClick  *DeadClickDetector
	errorClick *ErrorClickDetector
	uTurn      *UTurnDetector
	slowPage   *SlowPageDetector
}

// NewDetector creates the detectors; zero thresholds take the defaults
func NewDetector(cfg config.InsightsConfig) *Detector {
	cfg.SetDefaults()
	return &Detector{
		rageClick:  NewRageClickDetector(cfg.RageClick),
		deadClick:  NewDeadClickDetector(cfg.DeadClick),
		errorClick: NewErrorClickDetector(cfg.ErrorClick),
		uTurn:      NewUTurnDetector(cfg.UTurn),
		slowPage:   NewSlowPageDetector(cfg.SlowPage),
	}
}

// Detect returns all insights ordered by timestamp. nowMs bounds dead click
// detection to clicks whose observation window is over.
func (d *Detector) Detect(events []event.Event, nowMs int64) []Insight {
	out := []Insight{}
	for _, session := range bySession(events) {
		out = append(out, d.rageClick.Detect(session)...)
		out = append(out, d.deadClick.Detect(session, nowMs)...)
		out = append(out, d.errorClick.Detect(session)...)
		out = append(out, d.uTurn.Detect(session)...)
		out = append(out, d.slowPage.Detect(session)...)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Timestamp < out[b].Timestamp })
	return out
}

// Count tallies insights per kind
func Count(found []Insight) map[Kind]int {
	counts := make(map[Kind]int)
	for _, in := range found {
		counts[in.Kind]++
	}
	return counts
}
