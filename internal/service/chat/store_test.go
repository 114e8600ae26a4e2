package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/chargate/internal/model/chat"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.Put(chat.Session{ID: "a", ChatID: "chat-a"}))
	require.NoError(t, store.Put(chat.Session{ID: "b", ChatID: "chat-b"}))

	got, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, "chat-a", got.ChatID)

	ids := func() []string {
		var out []string
		for _, s := range store.List() {
			out = append(out, s.ID)
		}
		return out
	}
	assert.Equal(t, []string{"a", "b"}, ids())

	removed, ok := store.Remove("a")
	require.True(t, ok)
	assert.Equal(t, "a", removed.ID)

	_, ok = store.Remove("a")
	assert.False(t, ok)
	_, ok = store.Get("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, ids())
}

func TestMemoryStoreRejectsReusedIDs(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.Put(chat.Session{ID: "a"}))
	assert.ErrorIs(t, store.Put(chat.Session{ID: "a"}), ErrDuplicateSessionID)

	store.Remove("a")
	assert.ErrorIs(t, store.Put(chat.Session{ID: "a"}), ErrDuplicateSessionID)

	store.Clear()
	assert.ErrorIs(t, store.Put(chat.Session{ID: "a"}), ErrDuplicateSessionID)
}

func TestMemoryStoreClear(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Put(chat.Session{ID: "a"}))
	require.NoError(t, store.Put(chat.Session{ID: "b"}))

	cleared := store.Clear()
	assert.Len(t, cleared, 2)
	assert.Empty(t, store.List())
}

func TestServiceRegenerateOnCollision(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Put(chat.Session{ID: "taken"}))

	ids := []string{"taken", "taken", "fresh"}
	svc := &Service{store: store, newID: func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}}

	session := chat.Session{ChatID: "c"}
	require.NoError(t, svc.register(&session))
	assert.Equal(t, "fresh", session.ID)
}
