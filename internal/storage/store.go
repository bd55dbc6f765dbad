package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gosight/logflow/internal/event"
)

const (
	EventsKey   = "logflow_events"
	SessionsKey = "logflow_sessions"
)

// Store serializes the event store and session history to a Backend. It
// never mutates what it is given. A Store without a backend behaves as if no
// durable storage exists: saves are dropped and loads return empty state.
type Store struct {
	backend Backend
}

// NewStore creates a persistence adapter over backend, which may be nil
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Available reports whether the store has a durable backend
func (s *Store) Available() bool {
	return s != nil && s.backend != nil
}

// Save writes both blobs. When either write fails the call persists nothing:
// the events blob is restored to its previous value.
func (s *Store) Save(ctx context.Context, events []event.Event, sessions []event.Session) error {
	if !s.Available() {
		return nil
	}

	if events == nil {
		events = []event.Event{}
	}
	if sessions == nil {
		sessions = []event.Session{}
	}

	eventsData, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode events: %w", err)
	}
	sessionsData, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}

	prevEvents, prevErr := s.backend.Get(ctx, EventsKey)
	if err := s.backend.Set(ctx, EventsKey, eventsData); err != nil {
		return fmt.Errorf("failed to save events: %w", err)
	}
	if err := s.backend.Set(ctx, SessionsKey, sessionsData); err != nil {
		s.restore(ctx, EventsKey, prevEvents, prevErr)
		return fmt.Errorf("failed to save sessions: %w", err)
	}
	return nil
}

// restore puts key back to the value read before a failed save, so the two
// blobs never mix generations
func (s *Store) restore(ctx context.Context, key string, prev []byte, prevErr error) {
	switch {
	case prevErr == nil:
		_ = s.backend.Set(ctx, key, prev)
	case errors.Is(prevErr, ErrNotFound):
		_ = s.backend.Delete(ctx, key)
	}
}

// Load reads both blobs. A payload that fails to decode is discarded and
// that half of the state comes back empty; the returned error then wraps
// ErrCorrupt while the other half is still returned.
func (s *Store) Load(ctx context.Context) ([]event.Event, []event.Session, error) {
	events := []event.Event{}
	sessions := []event.Session{}
	if !s.Available() {
		return events, sessions, nil
	}

	var errs []error

	if data, err := s.backend.Get(ctx, EventsKey); err == nil {
		if err := event.DecodeJSON(data, &events); err != nil {
			events = []event.Event{}
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrCorrupt, EventsKey, err))
		}
	} else if !errors.Is(err, ErrNotFound) {
		errs = append(errs, fmt.Errorf("failed to load events: %w", err))
	}

	if data, err := s.backend.Get(ctx, SessionsKey); err == nil {
		if err := event.DecodeJSON(data, &sessions); err != nil {
			sessions = []event.Session{}
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrCorrupt, SessionsKey, err))
		}
	} else if !errors.Is(err, ErrNotFound) {
		errs = append(errs, fmt.Errorf("failed to load sessions: %w", err))
	}

	if events == nil {
		events = []event.Event{}
	}
	if sessions == nil {
		sessions = []event.Session{}
	}
	return events, sessions, errors.Join(errs...)
}

// Clear erases the persisted state
func (s *Store) Clear(ctx context.Context) error {
	if !s.Available() {
		return nil
	}
	return s.backend.Delete(ctx, EventsKey, SessionsKey)
}

// Close releases the backend
func (s *Store) Close() error {
	if !s.Available() {
		return nil
	}
	return s.backend.Close()
}
