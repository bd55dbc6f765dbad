package insights

import (
	"github.com/gosight/logflow/internal/config"
	"github.com/gosight/logflow/internal/event"
)

// UTurnDetector detects when users navigate away and quickly return to a page
type UTurnDetector struct {
	maxTimeAwayMs int64
}

func NewUTurnDetector(cfg config.UTurnConfig) *UTurnDetector {
	return &UTurnDetector{maxTimeAwayMs: cfg.MaxTimeAwayMs}
}

// Detect looks for A -> B -> A page views within the time window
func (d *UTurnDetector) Detect(session []event.Event) []Insight {
	var out []Insight
	var pages []event.Event

	for _, e := range session {
		if e.Type != event.TypePageView {
			continue
		}
		page := pagePath(e)
		if n := len(pages); n > 0 && pagePath(pages[n-1]) == page {
			// reload, not a navigation
			continue
		}

		if n := len(pages); n >= 2 {
			last, secondLast := pages[n-1], pages[n-2]
			timeAway := e.Timestamp - last.Timestamp
			if page == pagePath(secondLast) && timeAway > 0 && timeAway <= d.maxTimeAwayMs {
				out = append(out, Insight{
					Kind:      KindUTurn,
					SessionID: e.SessionID,
					Timestamp: e.Timestamp,
					Path:      page,
					Details: map[string]any{
						"original_page": pagePath(secondLast),
						"navigated_to":  pagePath(last),
						"time_away_ms":  timeAway,
					},
					RelatedEventIDs: []string{secondLast.ID, last.ID, e.ID},
				})
			}
		}
		pages = append(pages, e)
	}
	return out
}

func pagePath(e event.Event) string {
	if e.Path != "" {
		return e.Path
	}
	return e.ElementID
}
