package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosight/logflow/internal/event"
	"github.com/gosight/logflow/internal/metrics"
	"github.com/gosight/logflow/internal/storage"
)

// SessionPolicy decides what happens to events tracked after the current
// session has ended.
type SessionPolicy string

const (
	// PolicyAutoStart lazily starts a brand-new session on the next event
	PolicyAutoStart SessionPolicy = "auto_start"
	// PolicyDrop records the event globally but attaches it to no session
	// until StartSession is called (once per page load in a browser host)
	PolicyDrop SessionPolicy = "drop"
)

// ParsePolicy maps a config value to a policy, defaulting to auto start
func ParsePolicy(s string) SessionPolicy {
	if SessionPolicy(s) == PolicyDrop {
		return PolicyDrop
	}
	return PolicyAutoStart
}

// Hit describes one interaction to record. An empty Path means the host's
// current location.
type Hit struct {
	Type        event.Type
	ElementID   string
	ElementName string
	Metadata    map[string]any
	Path        string
}

// Tracker owns the event store, the session history and the current
// session. All operations are total: storage problems are logged and the
// in-memory state stays authoritative.
type Tracker struct {
	host    Host
	store   *storage.Store
	metrics *metrics.Metrics
	policy  SessionPolicy

	now          func() time.Time
	newEventID   event.IDGenerator
	newSessionID event.IDGenerator

	mu            sync.Mutex
	userID        string
	events        []event.Event
	sessions      []event.Session
	current       *event.Session
	lastSessionID string
	lastTimestamp int64

	feed *feed
}

type Option func(*Tracker)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDs replaces the event and session id generators
func WithIDs(eventID, sessionID event.IDGenerator) Option {
	return func(t *Tracker) {
		t.newEventID = eventID
		t.newSessionID = sessionID
	}
}

// WithPolicy sets the post-end session policy
func WithPolicy(p SessionPolicy) Option {
	return func(t *Tracker) { t.policy = p }
}

// WithMetrics instruments the tracker
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// New creates a tracker, restores persisted state and, inside a client
// context, starts the first session at the current location.
func New(ctx context.Context, host Host, store *storage.Store, opts ...Option) *Tracker {
	if host == nil {
		host = Headless{}
	}
	if store == nil {
		store = storage.NewStore(nil)
	}

	t := &Tracker{
		host:         host,
		store:        store,
		policy:       PolicyAutoStart,
		now:          time.Now,
		newEventID:   event.NewEventID,
		newSessionID: event.NewSessionID,
		events:       []event.Event{},
		sessions:     []event.Session{},
		feed:         newFeed(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if _, ok := t.host.Location(); !ok {
		return t
	}

	events, sessions, err := t.store.Load(ctx)
	if err != nil {
		t.metrics.StorageFailure("load")
		log.Warn().Err(err).Msg("Discarded unreadable persisted state")
	}
	t.events = events
	t.sessions = sessions
	for _, e := range events {
		if e.Timestamp > t.lastTimestamp {
			t.lastTimestamp = e.Timestamp
		}
	}

	t.mu.Lock()
	t.startSessionLocked()
	t.mu.Unlock()

	log.Info().
		Int("events", len(t.events)).
		Int("sessions", len(t.sessions)).
		Str("session_id", t.lastSessionID).
		Str("policy", string(t.policy)).
		Msg("Tracker initialized")

	return t
}

// Track records an interaction at the host's current location
func (t *Tracker) Track(ctx context.Context, typ event.Type, elementID, elementName string, metadata map[string]any) {
	t.Record(ctx, Hit{
		Type:        typ,
		ElementID:   elementID,
		ElementName: elementName,
		Metadata:    metadata,
	})
}

func (t *Tracker) TrackClick(ctx context.Context, elementID, elementName string, metadata map[string]any) {
	t.Track(ctx, event.TypeClick, elementID, elementName, metadata)
}

func (t *Tracker) TrackAPICall(ctx context.Context, apiID, apiName string, metadata map[string]any) {
	t.Track(ctx, event.TypeAPICall, apiID, apiName, metadata)
}

// TrackPageView records a page view keyed by the current path
func (t *Tracker) TrackPageView(ctx context.Context, pageName string, metadata map[string]any) {
	path, ok := t.host.Location()
	if !ok {
		path = pageName
	}
	t.Track(ctx, event.TypePageView, path, pageName, metadata)
}

func (t *Tracker) TrackFormSubmit(ctx context.Context, formID, formName string, metadata map[string]any) {
	t.Track(ctx, event.TypeFormSubmit, formID, formName, metadata)
}

func (t *Tracker) TrackCustom(ctx context.Context, elementID, elementName string, metadata map[string]any) {
	t.Track(ctx, event.TypeCustom, elementID, elementName, metadata)
}

// Record appends one event to the store and to the current session, then
// writes the state through to storage.
func (t *Tracker) Record(ctx context.Context, hit Hit) {
	location, ok := t.host.Location()
	if !ok {
		t.metrics.EventDropped("no_client")
		return
	}
	if !hit.Type.Valid() {
		t.metrics.EventDropped("invalid_type")
		log.Warn().Str("type", string(hit.Type)).Str("element_id", hit.ElementID).Msg("Ignoring event with unknown type")
		return
	}

	path := hit.Path
	if path == "" {
		path = location
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil && t.policy == PolicyAutoStart {
		t.startSessionLocked()
	}

	sessionID := t.lastSessionID
	if t.current != nil {
		sessionID = t.current.ID
	}

	e := event.Event{
		ID:          t.newEventID(),
		Type:        hit.Type,
		ElementID:   hit.ElementID,
		ElementName: hit.ElementName,
		Timestamp:   t.timestampLocked(),
		SessionID:   sessionID,
		UserID:      t.userID,
		Metadata:    event.NormalizeMetadata(hit.Metadata),
		Path:        path,
	}

	t.events = append(t.events, e)
	if t.current != nil {
		t.current.Append(e.Clone())
	} else {
		t.metrics.EventUnattached()
	}

	t.persistLocked(ctx)
	t.metrics.EventTracked(string(e.Type))

	log.Debug().
		Str("event_id", e.ID).
		Str("type", string(e.Type)).
		Str("element_id", e.ElementID).
		Str("session_id", e.SessionID).
		Str("path", e.Path).
		Msg("Event tracked")

	tracked := e.Clone()
	t.feed.publish(Change{Kind: ChangeEventTracked, SessionID: sessionID, Event: &tracked, At: e.Timestamp})
}

// SetUserID tags the tracker and the active session with a user id. Events
// already recorded keep whatever user id they had.
func (t *Tracker) SetUserID(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.userID = userID
	sessionID := ""
	if t.current != nil {
		t.current.UserID = userID
		sessionID = t.current.ID
	}
	t.feed.publish(Change{Kind: ChangeUserSet, SessionID: sessionID, At: t.now().UnixMilli()})
}

// StartSession starts a new session when none is active. Hosts call it when
// the page is re-initialized; with PolicyAutoStart it is rarely needed.
func (t *Tracker) StartSession(ctx context.Context) {
	if _, ok := t.host.Location(); !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil {
		return
	}
	t.startSessionLocked()
}

// EndSession archives the active session into the history. It is a no-op
// when no session is active.
func (t *Tracker) EndSession(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return
	}

	ended := t.current
	ended.State = event.StateEnded
	t.sessions = append(t.sessions, *ended)
	t.current = nil

	t.persistLocked(ctx)
	t.metrics.SessionEnded()

	log.Info().
		Str("session_id", ended.ID).
		Int("events", len(ended.Events)).
		Dur("duration", ended.Duration()).
		Msg("Session ended")

	t.feed.publish(Change{Kind: ChangeSessionEnded, SessionID: ended.ID, At: ended.LastActivity})
}

// Events returns a copy of the event store in recording order
func (t *Tracker) Events() []event.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return event.CloneEvents(t.events)
}

// Sessions returns a copy of the archived sessions
func (t *Tracker) Sessions() []event.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return event.CloneSessions(t.sessions)
}

// CurrentSession returns a copy of the active session, or nil
func (t *Tracker) CurrentSession() *event.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current.Clone()
}

// Snapshot returns a consistent copy of the whole state
func (t *Tracker) Snapshot() event.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return event.Snapshot{
		Events:   event.CloneEvents(t.events),
		Sessions: event.CloneSessions(t.sessions),
		Current:  t.current.Clone(),
	}
}

// UserID returns the user id set on the tracker, if any
func (t *Tracker) UserID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.userID
}

// ClearData drops every event and session and erases the persisted state
func (t *Tracker) ClearData(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.events = []event.Event{}
	t.sessions = []event.Session{}
	t.current = nil
	t.lastSessionID = ""

	if err := t.store.Clear(ctx); err != nil {
		t.metrics.StorageFailure("clear")
		log.Warn().Err(err).Msg("Failed to clear persisted state")
	}

	log.Info().Msg("Tracker data cleared")
	t.feed.publish(Change{Kind: ChangeCleared, At: t.now().UnixMilli()})
}

// Subscribe registers for change notifications. The channel is closed by
// cancel or when the tracker is closed.
func (t *Tracker) Subscribe(buffer int) (<-chan Change, func()) {
	return t.feed.subscribe(buffer)
}

// Close ends the active session and releases subscribers
func (t *Tracker) Close(ctx context.Context) {
	t.EndSession(ctx)
	t.feed.close()
}

func (t *Tracker) startSessionLocked() {
	path, _ := t.host.Location()
	s := event.NewSession(t.newSessionID(), t.timestampLocked(), path)
	s.UserID = t.userID
	t.current = s
	t.lastSessionID = s.ID
	t.metrics.SessionStarted()

	log.Debug().Str("session_id", s.ID).Str("path", path).Msg("Session started")
	t.feed.publish(Change{Kind: ChangeSessionStarted, SessionID: s.ID, At: s.StartTime})
}

// timestampLocked reads the clock but never goes backwards, so timestamps
// are non-decreasing in recording order.
func (t *Tracker) timestampLocked() int64 {
	ts := t.now().UnixMilli()
	if ts < t.lastTimestamp {
		ts = t.lastTimestamp
	}
	t.lastTimestamp = ts
	return ts
}

func (t *Tracker) persistLocked(ctx context.Context) {
	if err := t.store.Save(ctx, t.events, t.sessions); err != nil {
		t.metrics.StorageFailure("save")
		log.Warn().Err(err).Int("events", len(t.events)).Msg("Failed to persist tracker state, keeping it in memory")
	}
}
