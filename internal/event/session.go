package event

import "time"

// State is the lifecycle state of a session
type State string

const (
	StateActive State = "active"
	StateEnded  State = "ended"
)

// Session is one continuous visit: the events recorded while it was current
// and the distinct page paths visited, in order.
type Session struct {
	ID           string   `json:"id"`
	UserID       string   `json:"userId,omitempty"`
	StartTime    int64    `json:"startTime"`
	LastActivity int64    `json:"lastActivity"`
	Events       []Event  `json:"events"`
	Path         []string `json:"path"`
	State        State    `json:"state,omitempty"`
}

// NewSession creates an active session starting at ts, seeded with path
func NewSession(id string, ts int64, path string) *Session {
	s := &Session{
		ID:           id,
		StartTime:    ts,
		LastActivity: ts,
		Events:       []Event{},
		Path:         []string{},
		State:        StateActive,
	}
	if path != "" {
		s.Path = append(s.Path, path)
	}
	return s
}

// Duration is the time between the session start and its last activity
func (s *Session) Duration() time.Duration {
	return time.Duration(s.LastActivity-s.StartTime) * time.Millisecond
}

// VisitorID identifies the visitor behind the session, falling back to the
// session id when no user id was ever set.
func (s *Session) VisitorID() string {
	if s.UserID != "" {
		return s.UserID
	}
	return s.ID
}

// HasPath reports whether path was already visited in the session
func (s *Session) HasPath(path string) bool {
	for _, p := range s.Path {
		if p == path {
			return true
		}
	}
	return false
}

// Append adds e to the session, bumps the last activity and records the path
// if it is new.
func (s *Session) Append(e Event) {
	s.Events = append(s.Events, e)
	if e.Timestamp > s.LastActivity {
		s.LastActivity = e.Timestamp
	}
	if e.Path != "" && !s.HasPath(e.Path) {
		s.Path = append(s.Path, e.Path)
	}
}

// Clone returns a deep copy of the session
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Events = make([]Event, len(s.Events))
	for i, e := range s.Events {
		c.Events[i] = e.Clone()
	}
	c.Path = append([]string(nil), s.Path...)
	if c.Path == nil {
		c.Path = []string{}
	}
	return &c
}
