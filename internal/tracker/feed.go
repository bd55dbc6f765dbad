package tracker

import (
	"sync"

	"github.com/gosight/logflow/internal/event"
)

// ChangeKind names what happened to the tracker state
type ChangeKind string

const (
	ChangeEventTracked   ChangeKind = "event_tracked"
	ChangeSessionStarted ChangeKind = "session_started"
	ChangeSessionEnded   ChangeKind = "session_ended"
	ChangeUserSet        ChangeKind = "user_set"
	ChangeCleared        ChangeKind = "cleared"
)

// Change is a notification sent to subscribers after a mutation
type Change struct {
	Kind      ChangeKind
	SessionID string
	Event     *event.Event
	At        int64
}

// feed fans changes out to subscribers without ever blocking the publisher.
// A subscriber whose buffer is full misses the notification; subscribers
// read state from snapshots, so the next change covers the missed one.
type feed struct {
	mu     sync.Mutex
	subs   map[int]chan Change
	next   int
	closed bool
}

func newFeed() *feed {
	return &feed{subs: make(map[int]chan Change)}
}

func (f *feed) subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.next
	f.next++
	f.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if c, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

func (f *feed) publish(c Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

func (f *feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
