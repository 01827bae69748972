// Package storetest holds behaviour tests shared by every store backend.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/fin-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/fin-advisor/backend/internal/model/user"
	"github.com/zhouzirui/fin-advisor/backend/internal/store"
)

// Factory returns a fresh, empty store for one test.
type Factory func(t *testing.T) store.Store

// Run executes the shared behaviour suite against a backend.
func Run(t *testing.T, newStore Factory) {
	t.Run("SaveAndListMessages", func(t *testing.T) { testSaveAndListMessages(t, newStore(t)) })
	t.Run("UpsertKeepsOneRow", func(t *testing.T) { testUpsert(t, newStore(t)) })
	t.Run("OwnersAreIsolated", func(t *testing.T) { testOwnerIsolation(t, newStore(t)) })
	t.Run("ListConversations", func(t *testing.T) { testListConversations(t, newStore(t)) })
	t.Run("DeleteConversation", func(t *testing.T) { testDeleteConversation(t, newStore(t)) })
	t.Run("UserCRUD", func(t *testing.T) { testUserCRUD(t, newStore(t)) })
	t.Run("UserUniqueness", func(t *testing.T) { testUserUniqueness(t, newStore(t)) })
}

func message(text string, sender chat.Sender, at time.Time) chat.Message {
	return chat.Message{ID: uuid.NewString(), Text: text, Sender: sender, Timestamp: at.UTC().Truncate(time.Millisecond)}
}

func compareMessages(t *testing.T, want, got []chat.Message) {
	t.Helper()
	opt := cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })
	if diff := cmp.Diff(want, got, opt); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}
}

func testSaveAndListMessages(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)
	first := message("I want to save 50 lakh for a house", chat.SenderUser, base)
	second := message("Let's work out a monthly SIP.", chat.SenderBot, base.Add(time.Second))

	// Written out of order; listing must follow timestamps.
	require.NoError(t, s.SaveMessage(ctx, "alice@example.com", "conv_1", second))
	require.NoError(t, s.SaveMessage(ctx, "alice@example.com", "conv_1", first))

	got, err := s.ListMessages(ctx, "alice@example.com", "conv_1")
	require.NoError(t, err)
	compareMessages(t, []chat.Message{first, second}, got)

	_, err = s.ListMessages(ctx, "alice@example.com", "missing")
	require.ErrorIs(t, err, store.ErrConversationNotFound)
}

func testUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	msg := message("hello", chat.SenderUser, time.Now())
	require.NoError(t, s.SaveMessage(ctx, "alice@example.com", "conv_1", msg))

	msg.Text = "hello again"
	require.NoError(t, s.SaveMessage(ctx, "alice@example.com", "conv_1", msg))

	got, err := s.ListMessages(ctx, "alice@example.com", "conv_1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hello again", got[0].Text)
}

func testOwnerIsolation(t *testing.T, s store.Store) {
	ctx := context.Background()
	msg := message("same id, two owners", chat.SenderUser, time.Now())
	require.NoError(t, s.SaveMessage(ctx, "guest+conv_1@guest.test", "conv_1", msg))
	require.NoError(t, s.SaveMessage(ctx, "alice@example.com", "conv_1", msg))

	guest, err := s.ListMessages(ctx, "guest+conv_1@guest.test", "conv_1")
	require.NoError(t, err)
	owned, err := s.ListMessages(ctx, "alice@example.com", "conv_1")
	require.NoError(t, err)
	assert.Len(t, guest, 1)
	assert.Len(t, owned, 1)

	_, err = s.ListMessages(ctx, "bob@example.com", "conv_1")
	require.ErrorIs(t, err, store.ErrConversationNotFound)
}

func testListConversations(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.SaveMessage(ctx, "alice@example.com", "conv_old", message("a", chat.SenderUser, now)))
	require.NoError(t, s.SaveMessage(ctx, "alice@example.com", "conv_old", message("b", chat.SenderBot, now)))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.SaveMessage(ctx, "alice@example.com", "conv_new", message("c", chat.SenderUser, now)))
	require.NoError(t, s.SaveMessage(ctx, "bob@example.com", "conv_bob", message("d", chat.SenderUser, now)))

	summaries, err := s.ListConversations(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "conv_new", summaries[0].ID)
	assert.Equal(t, 1, summaries[0].MessageCount)
	assert.Equal(t, "conv_old", summaries[1].ID)
	assert.Equal(t, 2, summaries[1].MessageCount)

	empty, err := s.ListConversations(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testDeleteConversation(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveMessage(ctx, "alice@example.com", "conv_1", message("a", chat.SenderUser, time.Now())))
	require.NoError(t, s.SaveMessage(ctx, "guest+conv_1@guest.test", "conv_1", message("a", chat.SenderUser, time.Now())))

	require.NoError(t, s.DeleteConversation(ctx, "alice@example.com", "conv_1"))
	_, err := s.ListMessages(ctx, "alice@example.com", "conv_1")
	require.ErrorIs(t, err, store.ErrConversationNotFound)

	// The guest copy is a separate conversation row.
	guest, err := s.ListMessages(ctx, "guest+conv_1@guest.test", "conv_1")
	require.NoError(t, err)
	assert.Len(t, guest, 1)

	require.ErrorIs(t, s.DeleteConversation(ctx, "alice@example.com", "conv_1"), store.ErrConversationNotFound)
}

func newUser(name string) *user.User {
	return &user.User{
		ID:           uuid.NewString(),
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "hash",
		Role:         user.RoleUser,
		IsActive:     true,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

func testUserCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := newUser("alice")
	require.NoError(t, s.CreateUser(ctx, alice))

	got, err := s.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	got, err = s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.Email, got.Email)

	login := time.Now().UTC().Truncate(time.Millisecond)
	got.Role = user.RoleAdmin
	got.LastLogin = &login
	require.NoError(t, s.UpdateUser(ctx, got))

	got, err = s.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, got.Role)
	require.NotNil(t, got.LastLogin)
	assert.True(t, got.LastLogin.Equal(login))

	require.NoError(t, s.CreateUser(ctx, newUser("bob")))
	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	count, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, s.DeleteUser(ctx, alice.ID))
	_, err = s.GetUserByID(ctx, alice.ID)
	require.ErrorIs(t, err, store.ErrUserNotFound)
	require.ErrorIs(t, s.DeleteUser(ctx, alice.ID), store.ErrUserNotFound)
	require.ErrorIs(t, s.UpdateUser(ctx, alice), store.ErrUserNotFound)

	// ids come straight from the URL path
	_, err = s.GetUserByID(ctx, "not-a-uuid")
	require.ErrorIs(t, err, store.ErrUserNotFound)
	require.ErrorIs(t, s.DeleteUser(ctx, "not-a-uuid"), store.ErrUserNotFound)
	ghost := *alice
	ghost.ID = "not-a-uuid"
	require.ErrorIs(t, s.UpdateUser(ctx, &ghost), store.ErrUserNotFound)
}

func testUserUniqueness(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, newUser("alice")))

	dup := newUser("alice")
	require.ErrorIs(t, s.CreateUser(ctx, dup), store.ErrDuplicateUser)

	_, err := s.GetUserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, store.ErrUserNotFound)
}
