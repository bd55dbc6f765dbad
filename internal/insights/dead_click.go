package insights

import (
	"github.com/gosight/logflow/internal/config"
	"github.com/gosight/logflow/internal/event"
)

// DeadClickDetector detects clicks that produce no response: no navigation,
// API call or form submission in the same session within the observation
// window
type DeadClickDetector struct {
	observationWindowMs int64
}

func NewDeadClickDetector(cfg config.DeadClickConfig) *DeadClickDetector {
	return &DeadClickDetector{observationWindowMs: cfg.ObservationWindowMs}
}

// Detect only judges clicks whose window closed before nowMs
func (d *DeadClickDetector) Detect(session []event.Event, nowMs int64) []Insight {
	var out []Insight
	for i, click := range session {
		if click.Type != event.TypeClick {
			continue
		}
		deadline := click.Timestamp + d.observationWindowMs
		if deadline > nowMs {
			continue
		}
		expected := expectedBehavior(click)
		if d.answered(session[i+1:], expected, deadline) {
			continue
		}
		out = append(out, Insight{
			Kind:      KindDeadClick,
			SessionID: click.SessionID,
			Timestamp: click.Timestamp,
			Path:      click.Path,
			ElementID: click.ElementID,
			Details: map[string]any{
				"expected_behavior":     expected,
				"observation_window_ms": d.observationWindowMs,
			},
			RelatedEventIDs: []string{click.ID},
		})
	}
	return out
}

// expectedBehavior is navigate for links (an "href" in metadata) and handle
// for everything else
func expectedBehavior(click event.Event) string {
	if href, ok := click.Metadata["href"].(string); ok && href != "" {
		return "navigate"
	}
	return "handle"
}

func (d *DeadClickDetector) answered(after []event.Event, expected string, deadline int64) bool {
	for _, e := range after {
		if e.Timestamp > deadline {
			return false
		}
		switch expected {
		case "navigate":
			if e.Type == event.TypePageView {
				return true
			}
		default:
			if e.Type == event.TypePageView || e.Type == event.TypeAPICall || e.Type == event.TypeFormSubmit {
				return true
			}
		}
	}
	return false
}
