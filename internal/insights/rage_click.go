package insights

import (
	"github.com/gosight/logflow/internal/config"
	"github.com/gosight/logflow/internal/event"
)

// RageClickDetector detects rapid repeated clicks on one element indicating
// user frustration
type RageClickDetector struct {
	minClicks    int
	timeWindowMs int64
}

func NewRageClickDetector(cfg config.RageClickConfig) *RageClickDetector {
	return &RageClickDetector{
		minClicks:    cfg.MinClicks,
		timeWindowMs: cfg.TimeWindowMs,
	}
}

// Detect reports one insight per burst of at least minClicks clicks on the
// same element within the time window
func (d *RageClickDetector) Detect(session []event.Event) []Insight {
	var out []Insight
	burst := []event.Event{}

	flush := func() {
		if len(burst) >= d.minClicks {
			out = append(out, d.insight(burst))
		}
		burst = burst[:0]
	}

	for _, e := range session {
		if e.Type != event.TypeClick {
			continue
		}
		if len(burst) > 0 {
			first := burst[0]
			if e.ElementID != first.ElementID || e.Timestamp-first.Timestamp > d.timeWindowMs {
				flush()
			}
		}
		burst = append(burst, e)
	}
	flush()
	return out
}

func (d *RageClickDetector) insight(burst []event.Event) Insight {
	ids := make([]string, len(burst))
	for i, e := range burst {
		ids[i] = e.ID
	}
	last := burst[len(burst)-1]
	return Insight{
		Kind:      KindRageClick,
		SessionID: last.SessionID,
		Timestamp: last.Timestamp,
		Path:      last.Path,
		ElementID: last.ElementID,
		Details: map[string]any{
			"click_count":    len(burst),
			"time_window_ms": d.timeWindowMs,
			"duration_ms":    last.Timestamp - burst[0].Timestamp,
		},
		RelatedEventIDs: ids,
	}
}
