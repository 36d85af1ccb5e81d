// ABOUTME: Tests for session and message store operations
// ABOUTME: Covers ownership scoping, recency ordering, seq assignment, and cascade deletes

package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestSession inserts a session for the given owner.
func createTestSession(t *testing.T, store *SQLiteStore, id, ownerID, title string) *Session {
	t.Helper()
	s := &Session{
		ID:       id,
		OwnerID:  ownerID,
		Title:    title,
		IsActive: true,
	}
	require.NoError(t, store.CreateSession(context.Background(), s))
	return s
}

func TestSessionStore_CreateAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	owner := createTestPrincipal(t, store, "owner-1", "alice", "alice@example.com")
	createTestSession(t, store, "session-1", owner.ID, "My Chat")

	got, err := store.GetSession(ctx, "session-1", owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "session-1", got.ID)
	assert.Equal(t, owner.ID, got.OwnerID)
	assert.Equal(t, "My Chat", got.Title)
	assert.True(t, got.IsActive)
}

func TestSessionStore_Get_WrongOwnerLooksLikeMissing(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	owner := createTestPrincipal(t, store, "owner-1", "alice", "alice@example.com")
	other := createTestPrincipal(t, store, "owner-2", "bob", "bob@example.com")
	createTestSession(t, store, "session-1", owner.ID, "Private")

	// Another principal's session and a nonexistent session return the
	// same error, so existence cannot be probed across owners.
	_, errWrongOwner := store.GetSession(ctx, "session-1", other.ID)
	_, errMissing := store.GetSession(ctx, "no-such-session", other.ID)
	assert.ErrorIs(t, errWrongOwner, ErrSessionNotFound)
	assert.ErrorIs(t, errMissing, ErrSessionNotFound)
	assert.Equal(t, errMissing, errWrongOwner)
}

func TestSessionStore_List_OrderedByRecency(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	owner := createTestPrincipal(t, store, "owner-1", "alice", "alice@example.com")
	createTestSession(t, store, "session-1", owner.ID, "First")
	createTestSession(t, store, "session-2", owner.ID, "Second")
	createTestSession(t, store, "session-3", owner.ID, "Third")

	// Touching session-1 with a message makes it the most recent.
	msg := &Message{ID: "msg-1", Role: MessageRoleUser, Content: "hello"}
	require.NoError(t, store.AppendMessage(ctx, "session-1", owner.ID, msg))

	sessions, err := store.ListSessions(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "session-1", sessions[0].ID)
}

func TestSessionStore_List_ScopedToOwner(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := createTestPrincipal(t, store, "owner-1", "alice", "alice@example.com")
	bob := createTestPrincipal(t, store, "owner-2", "bob", "bob@example.com")
	createTestSession(t, store, "session-a", alice.ID, "Alice's")
	createTestSession(t, store, "session-b", bob.ID, "Bob's")

	sessions, err := store.ListSessions(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "session-a", sessions[0].ID)
}

func TestSessionStore_Update(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	owner := createTestPrincipal(t, store, "owner-1", "alice", "alice@example.com")
	createTestSession(t, store, "session-1", owner.ID, "Old Title")

	newTitle := "New Title"
	updated, err := store.UpdateSession(ctx, "session-1", owner.ID, SessionUpdate{Title: &newTitle})
	require.NoError(t, err)
	assert.Equal(t, "New Title", updated.Title)
}

func TestSessionStore_Update_WrongOwner(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	owner := createTestPrincipal(t, store, "owner-1", "alice", "alice@example.com")
	other := createTestPrincipal(t, store, "owner-2", "bob", "bob@example.com")
	createTestSession(t, store, "session-1", owner.ID, "Private")

	newTitle := "Hijacked"
	_, err := store.UpdateSession(ctx, "session-1", other.ID, SessionUpdate{Title: &newTitle})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Unchanged for the real owner.
	got, err := store.GetSession(ctx, "session-1", owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "Private", got.Title)
}

func TestSessionStore_Delete_CascadesToMessages(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	owner := createTestPrincipal(t, store, "owner-1", "alice", "alice@example.com")
	createTestSession(t, store, "session-1", owner.ID, "Doomed")

	for i := 0; i < 3; i++ {
		msg := &Message{ID: fmt.Sprintf("msg-%d", i), Role: MessageRoleUser, Content: "hi"}
		require.NoError(t, store.AppendMessage(ctx, "session-1", owner.ID, msg))
	}

	require.NoError(t, store.DeleteSession(ctx, "session-1", owner.ID))

	_, err := store.GetSession(ctx, "session-1", owner.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Messages went with the session.
	var count int
	err = store.db.QueryRow("SELECT COUNT(*) FROM messages WHERE session_id = ?", "session-1").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSessionStore_Delete_CascadesOnEveryPoolConnection(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	owner := createTestPrincipal(t, store, "owner-1", "alice", "alice@example.com")
	createTestSession(t, store, "session-1", owner.ID, "Doomed")

	msg := &Message{ID: "msg-1", Role: MessageRoleUser, Content: "hi"}
	require.NoError(t, store.AppendMessage(ctx, "session-1", owner.ID, msg))

	// Pin the connection everything above ran on, so the delete below is
	// served by a freshly opened one. foreign_keys is a per-connection
	// pragma; the cascade must still fire there.
	conn, err := store.db.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, store.DeleteSession(ctx, "session-1", owner.ID))

	var count int
	err = store.db.QueryRow("SELECT COUNT(*) FROM messages WHERE session_id = ?", "session-1").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSessionStore_Delete_WrongOwner(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	owner := createTestPrincipal(t, store, "owner-1", "alice", "alice@example.com")
	other := createTestPrincipal(t, store, "owner-2", "bob", "bob@example.com")
	createTestSession(t, store, "session-1", owner.ID, "Private")

	err := store.DeleteSession(ctx, "session-1", other.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = store.GetSession(ctx, "session-1", owner.ID)
	assert.NoError(t, err)
}

func TestSessionStore_AppendMessage_AssignsSeq(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	owner := createTestPrincipal(t, store, "owner-1", "alice", "alice@example.com")
	createTestSession(t, store, "session-1", owner.ID, "Chat")

	for i := 1; i <= 5; i++ {
		msg := &Message{ID: fmt.Sprintf("msg-%d", i), Role: MessageRoleUser, Content: fmt.Sprintf("message %d", i)}
		require.NoError(t, store.AppendMessage(ctx, "session-1", owner.ID, msg))
		assert.Equal(t, int64(i), msg.Seq)
		assert.Equal(t, "session-1", msg.SessionID)
		assert.False(t, msg.CreatedAt.IsZero())
	}
}

func TestSessionStore_AppendMessage_ConcurrentAppendsSerialize(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	owner := createTestPrincipal(t, store, "owner-1", "alice", "alice@example.com")
	createTestSession(t, store, "session-1", owner.ID, "Busy Chat")

	const n = 10
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := &Message{ID: fmt.Sprintf("msg-%d", i), Role: MessageRoleUser, Content: fmt.Sprintf("message %d", i)}
			errs <- store.AppendMessage(ctx, "session-1", owner.ID, msg)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	// Every append landed with a distinct consecutive seq.
	msgs, err := store.ListMessages(ctx, "session-1", owner.ID)
	require.NoError(t, err)
	require.Len(t, msgs, n)
	for i, m := range msgs {
		assert.Equal(t, int64(i+1), m.Seq)
	}
}

func TestSessionStore_AppendMessage_WrongOwner(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	owner := createTestPrincipal(t, store, "owner-1", "alice", "alice@example.com")
	other := createTestPrincipal(t, store, "owner-2", "bob", "bob@example.com")
	createTestSession(t, store, "session-1", owner.ID, "Private")

	msg := &Message{ID: "msg-1", Role: MessageRoleUser, Content: "intrusion"}
	err := store.AppendMessage(ctx, "session-1", other.ID, msg)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	msgs, err := store.ListMessages(ctx, "session-1", owner.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSessionStore_ListMessages_InSeqOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	owner := createTestPrincipal(t, store, "owner-1", "alice", "alice@example.com")
	createTestSession(t, store, "session-1", owner.ID, "Chat")

	roles := []string{MessageRoleUser, MessageRoleAssistant, MessageRoleUser}
	for i, role := range roles {
		msg := &Message{ID: fmt.Sprintf("msg-%d", i), Role: role, Content: fmt.Sprintf("message %d", i)}
		require.NoError(t, store.AppendMessage(ctx, "session-1", owner.ID, msg))
	}

	msgs, err := store.ListMessages(ctx, "session-1", owner.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, msg := range msgs {
		assert.Equal(t, int64(i+1), msg.Seq)
	}
	assert.Equal(t, MessageRoleAssistant, msgs[1].Role)
}

func TestSessionStore_ListMessages_EmptySession(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	owner := createTestPrincipal(t, store, "owner-1", "alice", "alice@example.com")
	createTestSession(t, store, "session-1", owner.ID, "Empty")

	msgs, err := store.ListMessages(ctx, "session-1", owner.ID)
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestSessionStore_ClearMessages(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	owner := createTestPrincipal(t, store, "owner-1", "alice", "alice@example.com")
	createTestSession(t, store, "session-1", owner.ID, "Chat")

	for i := 0; i < 3; i++ {
		msg := &Message{ID: fmt.Sprintf("msg-%d", i), Role: MessageRoleUser, Content: "hi"}
		require.NoError(t, store.AppendMessage(ctx, "session-1", owner.ID, msg))
	}

	require.NoError(t, store.ClearMessages(ctx, "session-1", owner.ID))

	msgs, err := store.ListMessages(ctx, "session-1", owner.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// The session itself survives.
	_, err = store.GetSession(ctx, "session-1", owner.ID)
	assert.NoError(t, err)

	// Seq restarts after a clear.
	msg := &Message{ID: "msg-new", Role: MessageRoleUser, Content: "fresh start"}
	require.NoError(t, store.AppendMessage(ctx, "session-1", owner.ID, msg))
	assert.Equal(t, int64(1), msg.Seq)
}

func TestSessionStore_ClearMessages_WrongOwner(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	owner := createTestPrincipal(t, store, "owner-1", "alice", "alice@example.com")
	other := createTestPrincipal(t, store, "owner-2", "bob", "bob@example.com")
	createTestSession(t, store, "session-1", owner.ID, "Private")

	msg := &Message{ID: "msg-1", Role: MessageRoleUser, Content: "keep me"}
	require.NoError(t, store.AppendMessage(ctx, "session-1", owner.ID, msg))

	err := store.ClearMessages(ctx, "session-1", other.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	msgs, err := store.ListMessages(ctx, "session-1", owner.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
