package event

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of interaction an event records
type Type string

const (
	TypeClick      Type = "click"
	TypeAPICall    Type = "api_call"
	TypePageView   Type = "page_view"
	TypeFormSubmit Type = "form_submit"
	TypeCustom     Type = "custom"
)

// Types lists every known event type in display order
var Types = []Type{TypeClick, TypeAPICall, TypePageView, TypeFormSubmit, TypeCustom}

// Valid reports whether t is one of the known event types
func (t Type) Valid() bool {
	switch t {
	case TypeClick, TypeAPICall, TypePageView, TypeFormSubmit, TypeCustom:
		return true
	}
	return false
}

// Event is a single recorded interaction. Values are never mutated once
// appended to the event store.
type Event struct {
	ID          string         `json:"id"`
	Type        Type           `json:"type"`
	ElementID   string         `json:"elementId"`
	ElementName string         `json:"elementName"`
	Timestamp   int64          `json:"timestamp"`
	SessionID   string         `json:"sessionId"`
	UserID      string         `json:"userId,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Path        string         `json:"path"`
}

// Time returns the event timestamp as a time.Time
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Clone returns a copy that shares no maps with e
func (e Event) Clone() Event {
	if e.Metadata != nil {
		md := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		e.Metadata = md
	}
	return e
}

// NormalizeMetadata returns a deep copy of md in the form it takes after a
// JSON round-trip: numbers become json.Number, nested values become maps and
// slices. Metadata that cannot be encoded is copied as given.
func NormalizeMetadata(md map[string]any) map[string]any {
	if len(md) == 0 {
		return nil
	}
	if data, err := json.Marshal(md); err == nil {
		var out map[string]any
		if err := DecodeJSON(data, &out); err == nil {
			return out
		}
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

// DecodeJSON unmarshals data keeping numbers as json.Number, so integers
// survive persistence without float64 rounding
func DecodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// IDGenerator produces unique identifiers for events and sessions
type IDGenerator func() string

// NewEventID returns an id of the form event_<uuid v7>
func NewEventID() string {
	return "event_" + uuid.Must(uuid.NewV7()).String()
}

// NewSessionID returns an id of the form session_<uuid v7>
func NewSessionID() string {
	return "session_" + uuid.Must(uuid.NewV7()).String()
}
