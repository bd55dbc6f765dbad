package insights

import (
	"github.com/gosight/logflow/internal/config"
	"github.com/gosight/logflow/internal/event"
)

// ErrorClickDetector detects clicks that are followed by a failing API call
type ErrorClickDetector struct {
	errorWindowMs int64
}

func NewErrorClickDetector(cfg config.ErrorClickConfig) *ErrorClickDetector {
	return &ErrorClickDetector{errorWindowMs: cfg.ErrorWindowMs}
}

// Failed reports whether an api_call event describes a failure: an "error"
// metadata entry or a "status" of 400 or more.
func Failed(e event.Event) bool {
	if e.Type != event.TypeAPICall {
		return false
	}
	if v, ok := e.Metadata["error"]; ok && v != nil && v != "" && v != false {
		return true
	}
	status, ok := number(e.Metadata, "status")
	return ok && status >= 400
}

// Detect pairs every failing API call with the most recent click before it
// in the error window
func (d *ErrorClickDetector) Detect(session []event.Event) []Insight {
	var out []Insight
	var lastClick *event.Event

	for i := range session {
		e := session[i]
		switch {
		case e.Type == event.TypeClick:
			lastClick = &session[i]
		case Failed(e) && lastClick != nil:
			diff := e.Timestamp - lastClick.Timestamp
			if diff < 0 || diff > d.errorWindowMs {
				continue
			}
			details := map[string]any{
				"api":           e.ElementID,
				"time_to_error": diff,
			}
			if v, ok := e.Metadata["error"]; ok {
				details["error_message"] = v
			}
			if v, ok := e.Metadata["status"]; ok {
				details["status"] = v
			}
			out = append(out, Insight{
				Kind:            KindErrorClick,
				SessionID:       e.SessionID,
				Timestamp:       e.Timestamp,
				Path:            lastClick.Path,
				ElementID:       lastClick.ElementID,
				Details:         details,
				RelatedEventIDs: []string{lastClick.ID, e.ID},
			})
			lastClick = nil
		}
	}
	return out
}
