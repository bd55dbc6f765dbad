package event

// Snapshot is a point-in-time copy of the tracker state handed to readers
type Snapshot struct {
	Events   []Event   `json:"events"`
	Sessions []Session `json:"sessions"`
	Current  *Session  `json:"currentSession,omitempty"`
}

// AllSessions returns the archived sessions followed by the current one, if
// a session is active.
func (s Snapshot) AllSessions() []Session {
	all := make([]Session, 0, len(s.Sessions)+1)
	all = append(all, s.Sessions...)
	if s.Current != nil {
		all = append(all, *s.Current)
	}
	return all
}

// CloneEvents deep-copies an event list
func CloneEvents(events []Event) []Event {
	out := make([]Event, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	return out
}

// CloneSessions deep-copies a session list
func CloneSessions(sessions []Session) []Session {
	out := make([]Session, len(sessions))
	for i := range sessions {
		out[i] = *sessions[i].Clone()
	}
	return out
}
