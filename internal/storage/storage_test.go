package storage_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/supportdesk/internal/kv"
	"github.com/wuwenbin0122/supportdesk/internal/models"
	"github.com/wuwenbin0122/supportdesk/internal/storage"
)

func newSeededRepository(t *testing.T) (*storage.Repository, *kv.Memory) {
	t.Helper()

	store := kv.NewMemory()
	repo := storage.NewRepository(store, zap.NewNop())
	if err := repo.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return repo, store
}

func TestInitializeSeedsOnce(t *testing.T) {
	ctx := context.Background()
	repo, store := newSeededRepository(t)

	users, err := repo.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 seeded users, got %d", len(users))
	}
	if users[0].ID != storage.AgentID || users[0].Role != models.RoleAgent {
		t.Fatalf("expected agent first, got %+v", users[0])
	}
	if users[1].ID != storage.GuestID || users[1].Email != "guest@example.com" {
		t.Fatalf("expected guest second, got %+v", users[1])
	}

	conversation, err := repo.GetConversation(ctx, storage.SeedConversationID)
	if err != nil {
		t.Fatalf("get seeded conversation: %v", err)
	}
	if conversation.UserID != storage.GuestID || conversation.AgentID != storage.AgentID {
		t.Fatalf("unexpected seeded conversation %+v", conversation)
	}
	if conversation.UnreadCount != 0 {
		t.Fatalf("expected zero unread count, got %d", conversation.UnreadCount)
	}

	if err := repo.UpsertMessage(ctx, models.Message{ID: "m1", ConversationID: "1", SenderID: "2", Content: "hi", Timestamp: 10}); err != nil {
		t.Fatalf("upsert message: %v", err)
	}

	again := storage.NewRepository(store, zap.NewNop())
	if err := again.Initialize(ctx); err != nil {
		t.Fatalf("second initialize: %v", err)
	}

	messages, err := again.ListMessages(ctx)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected existing message to survive re-initialisation, got %d", len(messages))
	}

	conversation, err = again.GetConversation(ctx, storage.SeedConversationID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if conversation.UnreadCount != 1 {
		t.Fatalf("expected conversation bookkeeping to survive, got unread %d", conversation.UnreadCount)
	}
}

func TestLookupsReportAbsence(t *testing.T) {
	ctx := context.Background()
	repo, _ := newSeededRepository(t)

	if _, err := repo.GetUser(ctx, "404"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for user, got %v", err)
	}
	if _, err := repo.GetConversation(ctx, "404"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for conversation, got %v", err)
	}
	if _, err := repo.LoadSession(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for session, got %v", err)
	}
}

func TestUpsertConversationPreservesOrder(t *testing.T) {
	ctx := context.Background()
	repo, _ := newSeededRepository(t)

	second := models.Conversation{ID: "c2", UserID: "u2", CreatedAt: 5, UpdatedAt: 5}
	if err := repo.UpsertConversation(ctx, second); err != nil {
		t.Fatalf("append conversation: %v", err)
	}

	seeded, err := repo.GetConversation(ctx, storage.SeedConversationID)
	if err != nil {
		t.Fatalf("get seeded: %v", err)
	}
	seeded.UnreadCount = 7
	if err := repo.UpsertConversation(ctx, *seeded); err != nil {
		t.Fatalf("replace conversation: %v", err)
	}

	conversations, err := repo.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(conversations) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(conversations))
	}
	if conversations[0].ID != storage.SeedConversationID || conversations[0].UnreadCount != 7 {
		t.Fatalf("expected replaced conversation in first slot, got %+v", conversations[0])
	}
	if conversations[1].ID != "c2" {
		t.Fatalf("expected appended conversation last, got %+v", conversations[1])
	}
}

func TestUpsertMessageUpdatesConversation(t *testing.T) {
	ctx := context.Background()
	repo, _ := newSeededRepository(t)

	later := models.Message{ID: "m2", ConversationID: "1", SenderID: "1", Content: "second", Timestamp: 200}
	earlier := models.Message{ID: "m1", ConversationID: "1", SenderID: "2", Content: "first", Timestamp: 100}
	other := models.Message{ID: "x", ConversationID: "other", SenderID: "2", Content: "elsewhere", Timestamp: 150}

	for _, msg := range []models.Message{later, earlier, other} {
		if err := repo.UpsertMessage(ctx, msg); err != nil {
			t.Fatalf("upsert %s: %v", msg.ID, err)
		}
	}

	messages, err := repo.GetMessagesFor(ctx, "1")
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0] != earlier || messages[1] != later {
		t.Fatalf("expected ascending timestamp order, got %+v", messages)
	}

	conversation, err := repo.GetConversation(ctx, "1")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if conversation.UnreadCount != 2 {
		t.Fatalf("expected unread count 2, got %d", conversation.UnreadCount)
	}
	if conversation.UpdatedAt != earlier.Timestamp {
		t.Fatalf("expected updatedAt to follow the last write, got %d", conversation.UpdatedAt)
	}
	if conversation.LastMessage == nil || conversation.LastMessage.ID != "m1" {
		t.Fatalf("expected last message m1, got %+v", conversation.LastMessage)
	}

	earlier.Read = true
	if err := repo.UpsertMessage(ctx, earlier); err != nil {
		t.Fatalf("re-upsert read message: %v", err)
	}

	all, err := repo.ListMessages(ctx)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected replace in place, got %d messages", len(all))
	}
	if all[1].ID != "m1" || !all[1].Read {
		t.Fatalf("expected m1 replaced in its original slot, got %+v", all[1])
	}

	conversation, err = repo.GetConversation(ctx, "1")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if conversation.UnreadCount != 2 {
		t.Fatalf("read message must not bump unread count, got %d", conversation.UnreadCount)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	repo, _ := newSeededRepository(t)

	if err := repo.SaveSession(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound saving unknown user, got %v", err)
	}

	if err := repo.SaveSession(ctx, storage.AgentID); err != nil {
		t.Fatalf("save session: %v", err)
	}

	session, err := repo.LoadSession(ctx)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if session.UserID != storage.AgentID || session.Role != models.RoleAgent {
		t.Fatalf("unexpected session %+v", session)
	}

	if err := repo.ClearSession(ctx); err != nil {
		t.Fatalf("clear session: %v", err)
	}
	if _, err := repo.LoadSession(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected session cleared, got %v", err)
	}
}

func TestResetRemovesEverything(t *testing.T) {
	ctx := context.Background()
	repo, store := newSeededRepository(t)

	if err := repo.SaveSession(ctx, storage.GuestID); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := repo.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	for _, key := range []string{storage.UsersKey, storage.ConversationsKey, storage.MessagesKey, storage.AuthKey} {
		if _, err := store.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("expected %s removed, got %v", key, err)
		}
	}
}

func TestCorruptCollectionSurfacesError(t *testing.T) {
	ctx := context.Background()
	repo, store := newSeededRepository(t)

	if err := store.Set(ctx, storage.MessagesKey, "{not json"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := repo.ListMessages(ctx); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestMarkReadFlipsOnlyOtherSenders(t *testing.T) {
	ctx := context.Background()
	repo, _ := newSeededRepository(t)

	for _, msg := range []models.Message{
		{ID: "m1", ConversationID: storage.SeedConversationID, SenderID: storage.GuestID, Content: "help", Timestamp: 10},
		{ID: "m2", ConversationID: storage.SeedConversationID, SenderID: storage.AgentID, Content: "sure", Timestamp: 30},
		{ID: "m3", ConversationID: storage.SeedConversationID, SenderID: storage.GuestID, Content: "thanks", Timestamp: 20},
		{ID: "other", ConversationID: "elsewhere", SenderID: storage.GuestID, Content: "ignored", Timestamp: 40},
	} {
		if err := repo.UpsertMessage(ctx, msg); err != nil {
			t.Fatalf("upsert %s: %v", msg.ID, err)
		}
	}

	flipped, err := repo.MarkRead(ctx, storage.SeedConversationID, storage.AgentID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if flipped != 2 {
		t.Fatalf("expected 2 messages flipped, got %d", flipped)
	}

	messages, err := repo.ListMessages(ctx)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	for _, msg := range messages {
		want := msg.ConversationID == storage.SeedConversationID && msg.SenderID == storage.GuestID
		if msg.Read != want {
			t.Fatalf("message %s read=%v, want %v", msg.ID, msg.Read, want)
		}
	}

	conversation, err := repo.GetConversation(ctx, storage.SeedConversationID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if conversation.UnreadCount != 0 {
		t.Fatalf("expected unread count reset, got %d", conversation.UnreadCount)
	}
	if conversation.LastMessage == nil || conversation.LastMessage.ID != "m2" || conversation.UpdatedAt != 30 {
		t.Fatalf("expected newest message m2 as last message, got %+v", conversation.LastMessage)
	}

	again, err := repo.MarkRead(ctx, storage.SeedConversationID, storage.AgentID)
	if err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected idempotent second pass, flipped %d", again)
	}

	if _, err := repo.MarkRead(ctx, "missing", storage.AgentID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDumpReturnsRawRecords(t *testing.T) {
	ctx := context.Background()
	repo, store := newSeededRepository(t)

	dump, err := repo.Dump(ctx)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if _, ok := dump[storage.AuthKey]; ok {
		t.Fatalf("expected absent session to be omitted")
	}
	for _, key := range []string{storage.UsersKey, storage.ConversationsKey, storage.MessagesKey} {
		raw, err := store.Get(ctx, key)
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		if dump[key] != raw {
			t.Fatalf("dump of %s = %q, want %q", key, dump[key], raw)
		}
	}

	if err := repo.SaveSession(ctx, storage.GuestID); err != nil {
		t.Fatalf("save session: %v", err)
	}
	dump, err = repo.Dump(ctx)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if len(dump) != len(storage.Keys) {
		t.Fatalf("expected every record after login, got %d", len(dump))
	}
}
