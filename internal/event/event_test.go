package event

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_Valid(t *testing.T) {
	for _, typ := range Types {
		assert.True(t, typ.Valid(), typ)
	}
	assert.False(t, Type("button_click").Valid())
	assert.False(t, Type("").Valid())
}

func TestIDs(t *testing.T) {
	e := NewEventID()
	s := NewSessionID()
	assert.True(t, strings.HasPrefix(e, "event_"))
	assert.True(t, strings.HasPrefix(s, "session_"))
	assert.NotEqual(t, e, NewEventID())
}

func TestSession_Append(t *testing.T) {
	s := NewSession("s1", 1000, "/")

	s.Append(Event{ID: "e1", SessionID: "s1", Timestamp: 1500, Path: "/"})
	s.Append(Event{ID: "e2", SessionID: "s1", Timestamp: 2500, Path: "/products"})
	s.Append(Event{ID: "e3", SessionID: "s1", Timestamp: 3000, Path: "/"})

	require.Len(t, s.Events, 3)
	assert.Equal(t, []string{"/", "/products"}, s.Path)
	assert.Equal(t, int64(3000), s.LastActivity)
	assert.Equal(t, 2*time.Second, s.Duration())
	assert.Equal(t, "s1", s.VisitorID())

	s.UserID = "u1"
	assert.Equal(t, "u1", s.VisitorID())
}

func TestSession_CloneIsDeep(t *testing.T) {
	s := NewSession("s1", 1000, "/")
	s.Append(Event{ID: "e1", Metadata: map[string]any{"k": "v"}, Path: "/"})

	c := s.Clone()
	c.Events[0].Metadata["k"] = "changed"
	c.Path[0] = "/other"
	c.Events = append(c.Events, Event{ID: "e2"})

	assert.Equal(t, "v", s.Events[0].Metadata["k"])
	assert.Equal(t, "/", s.Path[0])
	assert.Len(t, s.Events, 1)

	var nilSession *Session
	assert.Nil(t, nilSession.Clone())
}

func TestSnapshot_AllSessions(t *testing.T) {
	snap := Snapshot{Sessions: []Session{{ID: "a"}, {ID: "b"}}}
	assert.Len(t, snap.AllSessions(), 2)

	snap.Current = NewSession("c", 0, "")
	all := snap.AllSessions()
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[2].ID)
}
