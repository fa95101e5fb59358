// Package storage is the only code that touches the key-value store directly.
// It keeps the users, conversations and messages collections plus the persisted
// auth session, each serialised as JSON under a fixed key.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/supportdesk/internal/kv"
	"github.com/wuwenbin0122/supportdesk/internal/models"
)

const (
	UsersKey         = "intercom_users"
	ConversationsKey = "intercom_conversations"
	MessagesKey      = "intercom_messages"
	AuthKey          = "intercom_auth"
)

var ErrNotFound = errors.New("storage: record not found")

// Keys lists every persisted record in a stable order.
var Keys = []string{UsersKey, ConversationsKey, MessagesKey, AuthKey}

// Repository gives typed access to the persisted collections. A single mutex
// serialises every read-modify-write so a message write and the conversation
// bookkeeping it triggers are never observed apart.
type Repository struct {
	store  kv.Store
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

func NewRepository(store kv.Store, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{store: store, logger: logger, now: time.Now}
}

// Initialize seeds each collection whose key is still absent. Existing data is never touched.
func (r *Repository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	createdAt := r.now().UnixMilli()
	seeds := []struct {
		key   string
		value any
	}{
		{UsersKey, SeedUsers()},
		{ConversationsKey, SeedConversations(createdAt)},
		{MessagesKey, []models.Message{}},
	}

	for _, seed := range seeds {
		if _, err := r.store.Get(ctx, seed.key); err == nil {
			continue
		} else if !errors.Is(err, kv.ErrNotFound) {
			return fmt.Errorf("storage: check %s: %w", seed.key, err)
		}

		if err := writeJSON(ctx, r.store, seed.key, seed.value); err != nil {
			return err
		}
		r.logger.Info("seeded collection", zap.String("key", seed.key))
	}

	return nil
}

// Reset removes every persisted record, including the auth session.
func (r *Repository) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range Keys {
		if err := r.store.Remove(ctx, key); err != nil {
			return fmt.Errorf("storage: remove %s: %w", key, err)
		}
	}
	return nil
}

// Dump returns the raw stored text of each record. Absent keys are omitted.
func (r *Repository) Dump(ctx context.Context) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string, len(Keys))
	for _, key := range Keys {
		raw, err := r.store.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("storage: read %s: %w", key, err)
		}
		out[key] = raw
	}
	return out, nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return readList[models.User](ctx, r.store, UsersKey)
}

func (r *Repository) GetUser(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.getUserLocked(ctx, id)
}

func (r *Repository) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return readList[models.Conversation](ctx, r.store, ConversationsKey)
}

func (r *Repository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversations, err := readList[models.Conversation](ctx, r.store, ConversationsKey)
	if err != nil {
		return nil, err
	}

	for i := range conversations {
		if conversations[i].ID == id {
			return &conversations[i], nil
		}
	}
	return nil, ErrNotFound
}

// UpsertConversation replaces the conversation with the same id in place or appends it.
func (r *Repository) UpsertConversation(ctx context.Context, conversation models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.upsertConversationLocked(ctx, conversation)
}

func (r *Repository) ListMessages(ctx context.Context) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return readList[models.Message](ctx, r.store, MessagesKey)
}

// GetMessagesFor returns the conversation's messages in ascending timestamp order.
// Messages sharing a timestamp keep their insertion order.
func (r *Repository) GetMessagesFor(ctx context.Context, conversationID string) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	messages, err := readList[models.Message](ctx, r.store, MessagesKey)
	if err != nil {
		return nil, err
	}

	filtered := make([]models.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.ConversationID == conversationID {
			filtered = append(filtered, msg)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp < filtered[j].Timestamp
	})

	return filtered, nil
}

// UpsertMessage stores the message and, when its conversation exists, refreshes
// the conversation's last message and updatedAt. Unread messages bump the
// conversation's unread counter by one.
func (r *Repository) UpsertMessage(ctx context.Context, message models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	messages, err := readList[models.Message](ctx, r.store, MessagesKey)
	if err != nil {
		return err
	}

	if err := writeJSON(ctx, r.store, MessagesKey, upsert(messages, message, func(m models.Message) string { return m.ID })); err != nil {
		return err
	}

	conversations, err := readList[models.Conversation](ctx, r.store, ConversationsKey)
	if err != nil {
		return err
	}

	for i := range conversations {
		if conversations[i].ID != message.ConversationID {
			continue
		}

		last := message
		conversations[i].LastMessage = &last
		conversations[i].UpdatedAt = message.Timestamp
		if !message.Read {
			conversations[i].UnreadCount++
		}
		return writeJSON(ctx, r.store, ConversationsKey, conversations)
	}

	r.logger.Warn("message stored for unknown conversation",
		zap.String("message_id", message.ID),
		zap.String("conversation_id", message.ConversationID),
	)
	return nil
}

// MarkRead flips every unread message in the conversation not sent by readerID,
// then zeroes the conversation's unread counter and points its last message at
// the newest message. It returns the number of messages flipped and
// ErrNotFound when the conversation does not exist.
func (r *Repository) MarkRead(ctx context.Context, conversationID, readerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversations, err := readList[models.Conversation](ctx, r.store, ConversationsKey)
	if err != nil {
		return 0, err
	}

	index := -1
	for i := range conversations {
		if conversations[i].ID == conversationID {
			index = i
			break
		}
	}
	if index < 0 {
		return 0, ErrNotFound
	}

	messages, err := readList[models.Message](ctx, r.store, MessagesKey)
	if err != nil {
		return 0, err
	}

	flipped := 0
	var latest *models.Message
	for i := range messages {
		msg := &messages[i]
		if msg.ConversationID != conversationID {
			continue
		}
		if msg.SenderID != readerID && !msg.Read {
			msg.Read = true
			flipped++
		}
		if latest == nil || msg.Timestamp >= latest.Timestamp {
			latest = msg
		}
	}

	if flipped > 0 {
		if err := writeJSON(ctx, r.store, MessagesKey, messages); err != nil {
			return 0, err
		}
	}

	conversation := &conversations[index]
	conversation.UnreadCount = 0
	if latest != nil {
		last := *latest
		conversation.LastMessage = &last
		conversation.UpdatedAt = last.Timestamp
	}

	if err := writeJSON(ctx, r.store, ConversationsKey, conversations); err != nil {
		return 0, err
	}
	return flipped, nil
}

// SaveSession persists {userId, role} for a known user.
func (r *Repository) SaveSession(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.getUserLocked(ctx, userID)
	if err != nil {
		return err
	}

	return writeJSON(ctx, r.store, AuthKey, models.Session{UserID: user.ID, Role: user.Role})
}

// LoadSession returns the persisted session or ErrNotFound when none is stored.
func (r *Repository) LoadSession(ctx context.Context) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := r.store.Get(ctx, AuthKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", AuthKey, err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", AuthKey, err)
	}
	return &session, nil
}

func (r *Repository) ClearSession(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Remove(ctx, AuthKey); err != nil {
		return fmt.Errorf("storage: remove %s: %w", AuthKey, err)
	}
	return nil
}

func (r *Repository) getUserLocked(ctx context.Context, id string) (*models.User, error) {
	users, err := readList[models.User](ctx, r.store, UsersKey)
	if err != nil {
		return nil, err
	}

	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, ErrNotFound
}

func (r *Repository) upsertConversationLocked(ctx context.Context, conversation models.Conversation) error {
	conversations, err := readList[models.Conversation](ctx, r.store, ConversationsKey)
	if err != nil {
		return err
	}

	return writeJSON(ctx, r.store, ConversationsKey, upsert(conversations, conversation, func(c models.Conversation) string { return c.ID }))
}

func upsert[T any](items []T, item T, id func(T) string) []T {
	for i := range items {
		if id(items[i]) == id(item) {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

// readList decodes the collection under key; an absent key reads as empty.
func readList[T any](ctx context.Context, store kv.Store, key string) ([]T, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}

	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", key, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func writeJSON(ctx context.Context, store kv.Store, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	if err := store.Set(ctx, key, string(payload)); err != nil {
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	return nil
}
