package chat

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/supportdesk/internal/models"
	"github.com/wuwenbin0122/supportdesk/internal/storage"
)

var (
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrAgentIdentity        = errors.New("chat: agents do not own conversations")
)

// CreateConversation opens a conversation for userID assigned to the single
// agent. It does not deduplicate; callers check for an existing one first.
func (s *Service) CreateConversation(ctx context.Context, userID string) (*models.Conversation, error) {
	now := s.nowMillis()
	conversation := models.Conversation{
		ID:          s.newID(),
		UserID:      userID,
		AgentID:     storage.AgentID,
		UnreadCount: 0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.UpsertConversation(ctx, conversation); err != nil {
		return nil, err
	}

	s.logger.Info("conversation created",
		zap.String("conversation_id", conversation.ID),
		zap.String("user_id", userID),
	)

	if err := s.refresh(ctx, conversation.ID); err != nil {
		return nil, err
	}
	return &conversation, nil
}

// ConversationForCurrentUser returns the current identity's own conversation,
// creating it on first use. Only non-agent identities own conversations.
func (s *Service) ConversationForCurrentUser(ctx context.Context) (*models.Conversation, error) {
	user := s.identity.CurrentUser()
	if user == nil {
		return nil, ErrNoIdentity
	}
	if user.IsAgent() {
		return nil, ErrAgentIdentity
	}

	if err := s.refresh(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	for _, conv := range s.conversations {
		if conv.UserID == user.ID {
			found := conv
			s.mu.RUnlock()
			return &found, nil
		}
	}
	s.mu.RUnlock()

	return s.CreateConversation(ctx, user.ID)
}

// SendMessage appends a message from the current identity. Blank content or a
// missing identity is a silent no-op. Messages from non-agent identities
// schedule a simulated agent reply.
func (s *Service) SendMessage(ctx context.Context, content, conversationID string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	user := s.identity.CurrentUser()
	if user == nil {
		return nil
	}

	if _, err := s.repo.GetConversation(ctx, conversationID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrConversationNotFound
		}
		return err
	}

	message := models.Message{
		ID:             s.newID(),
		ConversationID: conversationID,
		SenderID:       user.ID,
		Content:        content,
		Timestamp:      s.nowMillis(),
		Read:           false,
	}

	if err := s.repo.UpsertMessage(ctx, message); err != nil {
		return err
	}

	s.logger.Debug("message sent",
		zap.String("conversation_id", conversationID),
		zap.String("sender_id", user.ID),
	)

	if err := s.refresh(ctx, conversationID); err != nil {
		s.logger.Warn("refresh after send failed", zap.Error(err))
	}

	if !user.IsAgent() {
		s.scheduleReply(conversationID)
	}
	return nil
}

// MarkAsRead acknowledges every unread message in the conversation that the
// current identity did not send and zeroes its unread counter. Conversations
// the identity cannot see are left alone.
func (s *Service) MarkAsRead(ctx context.Context, conversationID string) error {
	user := s.identity.CurrentUser()
	if user == nil {
		return nil
	}

	conversation, err := s.repo.GetConversation(ctx, conversationID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !user.IsAgent() && conversation.UserID != user.ID {
		return nil
	}

	flipped, err := s.repo.MarkRead(ctx, conversationID, user.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Debug("conversation marked read",
		zap.String("conversation_id", conversationID),
		zap.String("reader_id", user.ID),
		zap.Int("flipped", flipped),
	)

	return s.refresh(ctx, conversationID)
}

// GetUserInfo looks a user up by id.
func (s *Service) GetUserInfo(ctx context.Context, userID string) (*models.User, bool) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("user lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, false
	}
	return user, true
}
