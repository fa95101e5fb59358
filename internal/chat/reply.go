package chat

import (
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/supportdesk/internal/models"
	"github.com/wuwenbin0122/supportdesk/internal/storage"
)

const (
	minReplyDelay    = 1000 * time.Millisecond
	replyDelaySpread = 2000
)

// CannedResponses are the lines the simulated agent answers with.
var CannedResponses = []string{
	"I'll look into that for you right away.",
	"Thanks for reaching out. How can I help further?",
	"I understand your concern. Let me check what I can do.",
	"Is there anything else you'd like to know?",
	"That's a great question. Here's what you need to know...",
}

// randomReplyDelay draws whole milliseconds uniformly from [1000, 3000).
func randomReplyDelay() time.Duration {
	return minReplyDelay + time.Duration(rand.Intn(replyDelaySpread))*time.Millisecond
}

func randomResponse() string {
	return CannedResponses[rand.Intn(len(CannedResponses))]
}

// scheduleReply arms a one-shot timer for a simulated agent reply. Replies
// overlap: each send gets its own timer and the composing flag stays up while
// any timer is pending.
func (s *Service) scheduleReply(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	id := s.nextReplyID
	s.nextReplyID++

	delay := s.replyDelay()
	s.wg.Add(1)
	s.replies[id] = time.AfterFunc(delay, func() {
		s.fireReply(id, conversationID)
	})

	s.logger.Debug("agent reply scheduled",
		zap.String("conversation_id", conversationID),
		zap.Duration("delay", delay),
	)
}

func (s *Service) fireReply(id uint64, conversationID string) {
	defer s.wg.Done()

	s.mu.Lock()
	delete(s.replies, id)
	stopped := s.stopped
	s.mu.Unlock()

	if stopped {
		return
	}

	ctx := s.lifeCtx
	log := s.logger.With(zap.String("conversation_id", conversationID))

	conversation, err := s.repo.GetConversation(ctx, conversationID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Debug("agent reply dropped: conversation missing")
		return
	}
	if err != nil {
		log.Warn("agent reply dropped: conversation lookup failed", zap.Error(err))
		return
	}
	if conversation.AgentID == "" {
		log.Debug("agent reply dropped: no assigned agent")
		return
	}

	content := s.pickResponse()
	current := s.identity.CurrentUser()
	reply := models.Message{
		ID:             s.newID(),
		ConversationID: conversationID,
		SenderID:       conversation.AgentID,
		Content:        content,
		Timestamp:      s.nowMillis(),
		Read:           current != nil && current.IsAgent(),
	}

	if err := s.repo.UpsertMessage(ctx, reply); err != nil {
		log.Warn("agent reply not stored", zap.Error(err))
		return
	}

	log.Debug("agent reply delivered", zap.String("message_id", reply.ID))

	if err := s.refresh(ctx, conversationID); err != nil {
		log.Warn("refresh after agent reply failed", zap.Error(err))
	}
}
