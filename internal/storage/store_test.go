package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosight/logflow/internal/config"
	"github.com/gosight/logflow/internal/event"
)

func sampleState() ([]event.Event, []event.Session) {
	e1 := event.Event{
		ID: "event_1", Type: event.TypeClick, ElementID: "btn_a", ElementName: "Buy",
		Timestamp: 1000, SessionID: "session_1", Path: "/",
		Metadata: event.NormalizeMetadata(map[string]any{
			"variant": "blue", "price": 12.5, "qty": 3, "order_id": int64(9007199254740993),
		}),
	}
	e2 := event.Event{
		ID: "event_2", Type: event.TypePageView, ElementID: "/cart", ElementName: "Cart",
		Timestamp: 2000, SessionID: "session_1", UserID: "u1", Path: "/cart",
	}
	s := event.NewSession("session_1", 900, "/")
	s.UserID = "u1"
	s.Append(e1)
	s.Append(e2)
	s.State = event.StateEnded
	return []event.Event{e1, e2}, []event.Session{*s}
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "logflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Backend{
		"memory": NewMemory(0),
		"sqlite": sqlite,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	events, sessions := sampleState()

	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(backend)
			require.True(t, store.Available())
			require.NoError(t, store.Save(ctx, events, sessions))

			gotEvents, gotSessions, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, events, gotEvents)
			assert.Equal(t, sessions, gotSessions)
			assert.Equal(t, json.Number("9007199254740993"), gotEvents[0].Metadata["order_id"])
			assert.Equal(t, json.Number("3"), gotSessions[0].Events[0].Metadata["qty"])

			// Saving what was loaded is idempotent
			require.NoError(t, store.Save(ctx, gotEvents, gotSessions))
			again, againSessions, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, gotEvents, again)
			assert.Equal(t, gotSessions, againSessions)
		})
	}
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	events, sessions := sampleState()

	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(backend)
			require.NoError(t, store.Save(ctx, events, sessions))
			require.NoError(t, store.Clear(ctx))

			_, err := backend.Get(ctx, EventsKey)
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = backend.Get(ctx, SessionsKey)
			assert.ErrorIs(t, err, ErrNotFound)

			gotEvents, gotSessions, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, gotEvents)
			assert.Empty(t, gotSessions)
		})
	}
}

func TestStore_NoBackend(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	events, sessions := sampleState()

	assert.False(t, store.Available())
	assert.NoError(t, store.Save(ctx, events, sessions))
	assert.NoError(t, store.Clear(ctx))
	assert.NoError(t, store.Close())

	gotEvents, gotSessions, err := store.Load(ctx)
	require.NoError(t, err)
	assert.NotNil(t, gotEvents)
	assert.Empty(t, gotEvents)
	assert.Empty(t, gotSessions)
}

func TestStore_CorruptPayload(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory(0)
	store := NewStore(backend)
	_, sessions := sampleState()

	require.NoError(t, store.Save(ctx, nil, sessions))
	require.NoError(t, backend.Set(ctx, EventsKey, []byte("{not json")))

	gotEvents, gotSessions, err := store.Load(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.Empty(t, gotEvents)
	assert.Equal(t, sessions, gotSessions)
}

func TestStore_Quota(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemory(64))
	events, sessions := sampleState()

	err := store.Save(ctx, events, sessions)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

// failingBackend rejects writes to one key
type failingBackend struct {
	Backend
	key string
}

func (b failingBackend) Set(ctx context.Context, key string, value []byte) error {
	if key == b.key {
		return ErrQuotaExceeded
	}
	return b.Backend.Set(ctx, key, value)
}

func TestStore_FailedEventsWriteLeavesSessionsUntouched(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(0)
	require.NoError(t, mem.Set(ctx, SessionsKey, []byte("[]")))

	store := NewStore(failingBackend{Backend: mem, key: EventsKey})
	events, sessions := sampleState()
	err := store.Save(ctx, events, sessions)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	got, err := mem.Get(ctx, SessionsKey)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))
	_, err = mem.Get(ctx, EventsKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_FailedSessionsWriteRestoresEvents(t *testing.T) {
	ctx := context.Background()
	events, sessions := sampleState()

	t.Run("previous value", func(t *testing.T) {
		mem := NewMemory(0)
		require.NoError(t, NewStore(mem).Save(ctx, events[:1], nil))
		before, err := mem.Get(ctx, EventsKey)
		require.NoError(t, err)

		err = NewStore(failingBackend{Backend: mem, key: SessionsKey}).Save(ctx, events, sessions)
		require.ErrorIs(t, err, ErrQuotaExceeded)

		after, err := mem.Get(ctx, EventsKey)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("no previous value", func(t *testing.T) {
		mem := NewMemory(0)
		err := NewStore(failingBackend{Backend: mem, key: SessionsKey}).Save(ctx, events, sessions)
		require.ErrorIs(t, err, ErrQuotaExceeded)
		assert.Equal(t, 0, mem.Len())
	})
}

func TestMemory_CopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	value := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", value))
	value[0] = 'x'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, 1, m.Len())
}

func TestOpen(t *testing.T) {
	b, err := Open(config.StorageConfig{Driver: "none"})
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = Open(config.StorageConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, b)

	b, err = Open(config.StorageConfig{Driver: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "x.db")}})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, b)
	require.NoError(t, b.Close())

	_, err = Open(config.StorageConfig{Driver: "indexeddb"})
	assert.Error(t, err)
}
