package chat

import (
	"sort"

	"github.com/wuwenbin0122/supportdesk/internal/models"
)

const previewLength = 30

// Conversations returns the conversations visible to the current identity, in store order.
func (s *Service) Conversations() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// SortedConversations returns the visible conversations, most recently updated first.
func (s *Service) SortedConversations() []models.Conversation {
	out := s.Conversations()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt > out[j].UpdatedAt
	})
	return out
}

// Messages returns the cached message sequence for a conversation.
func (s *Service) Messages(conversationID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out
}

// IsTyping reports whether a simulated agent reply is pending.
func (s *Service) IsTyping() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.replies) > 0
}

// Preview summarises the latest cached message of a conversation for list views.
func (s *Service) Preview(conversationID string) string {
	s.mu.RLock()
	msgs := s.messages[conversationID]
	s.mu.RUnlock()

	if len(msgs) == 0 {
		return "No messages yet"
	}

	content := []rune(msgs[len(msgs)-1].Content)
	if len(content) > previewLength {
		return string(content[:previewLength]) + "..."
	}
	return string(content)
}

// SetActiveConversation selects a conversation; an empty id clears the selection.
func (s *Service) SetActiveConversation(conversationID string) {
	s.mu.Lock()
	s.activeID = conversationID
	s.mu.Unlock()
}

// ActiveConversation returns the selected conversation if it is still visible.
func (s *Service) ActiveConversation() (*models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.activeID == "" {
		return nil, false
	}
	for _, conv := range s.conversations {
		if conv.ID == s.activeID {
			found := conv
			return &found, true
		}
	}
	return nil, false
}

// EnsureActiveConversation selects the first visible conversation when nothing is selected.
func (s *Service) EnsureActiveConversation() (*models.Conversation, bool) {
	s.mu.Lock()
	if s.activeID == "" && len(s.conversations) > 0 {
		s.activeID = s.conversations[0].ID
	}
	s.mu.Unlock()

	return s.ActiveConversation()
}
