// Package chat keeps the current identity's view of conversations and messages
// in sync with the store. The view is a cache: it is rebuilt from the store on
// identity change and on a fixed two-second refresh loop.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/supportdesk/internal/models"
	"github.com/wuwenbin0122/supportdesk/internal/storage"
)

// RefreshInterval is the fixed polling period of the refresh loop.
const RefreshInterval = 2 * time.Second

var ErrNoIdentity = errors.New("chat: no current identity")

// Identity supplies the current user and notifies on identity changes.
type Identity interface {
	CurrentUser() *models.User
	Subscribe(fn func(*models.User)) func()
}

type Option func(*Service)

// WithClock overrides the time source used for message and conversation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides how message and conversation ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithReplyDelay overrides the delay before a simulated agent reply.
func WithReplyDelay(delay func() time.Duration) Option {
	return func(s *Service) { s.replyDelay = delay }
}

// WithResponsePicker overrides how the simulated agent chooses its reply.
func WithResponsePicker(pick func() string) Option {
	return func(s *Service) { s.pickResponse = pick }
}

// Service is the chat synchronization component.
type Service struct {
	repo     *storage.Repository
	identity Identity
	logger   *zap.Logger

	now          func() time.Time
	newID        func() string
	replyDelay   func() time.Duration
	pickResponse func() string

	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	// beforeCommit runs between a refresh's store reads and its commit.
	beforeCommit func()

	mu            sync.RWMutex
	generation    uint64
	refreshSeq    uint64
	committedSeq  uint64
	conversations []models.Conversation
	messages      map[string][]models.Message
	activeID      string
	replies       map[uint64]*time.Timer
	nextReplyID   uint64
	running       bool
	stopped       bool
	unsubscribe   func()

	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewService(repo *storage.Repository, identity Identity, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	lifeCtx, lifeCancel := context.WithCancel(context.Background())

	s := &Service{
		repo:         repo,
		identity:     identity,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
		replyDelay:   randomReplyDelay,
		pickResponse: randomResponse,
		lifeCtx:      lifeCtx,
		lifeCancel:   lifeCancel,
		messages:     make(map[string][]models.Message),
		replies:      make(map[uint64]*time.Timer),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start subscribes to identity changes, performs an initial refresh and runs
// the refresh loop until ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	unsubscribe := s.identity.Subscribe(s.handleIdentityChange)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("initial refresh failed", zap.Error(err))
	}

	s.wg.Add(1)
	go s.loop(ctx)

	return nil
}

// Stop ends the refresh loop, cancels pending simulated replies and waits for
// in-flight callbacks to finish. It is safe to call more than once.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		unsubscribe := s.unsubscribe
		s.unsubscribe = nil
		for id, timer := range s.replies {
			if timer.Stop() {
				delete(s.replies, id)
				s.wg.Done()
			}
		}
		s.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
		s.lifeCancel()
		s.wg.Wait()
	})
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.lifeCtx.Done():
			return
		case <-ticker.C:
			if s.identity.CurrentUser() == nil {
				continue
			}
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("refresh failed", zap.Error(err))
			}
		}
	}
}

// handleIdentityChange drops the previous identity's cached view and reloads.
func (s *Service) handleIdentityChange(user *models.User) {
	s.mu.Lock()
	s.generation++
	s.conversations = nil
	s.messages = make(map[string][]models.Message)
	s.activeID = ""
	s.mu.Unlock()

	if user == nil {
		return
	}

	if err := s.Refresh(s.lifeCtx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("refresh after identity change failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

// Refresh re-derives the visible conversation list and re-fetches messages for
// every visible or already tracked conversation.
func (s *Service) Refresh(ctx context.Context) error {
	return s.refresh(ctx)
}

func (s *Service) refresh(ctx context.Context, include ...string) error {
	s.mu.Lock()
	generation := s.generation
	s.refreshSeq++
	seq := s.refreshSeq
	tracked := make([]string, 0, len(s.messages)+len(include))
	for id := range s.messages {
		tracked = append(tracked, id)
	}
	s.mu.Unlock()
	tracked = append(tracked, include...)

	user := s.identity.CurrentUser()
	if user == nil {
		return nil
	}

	all, err := s.repo.ListConversations(ctx)
	if err != nil {
		return err
	}
	visible := visibleTo(user, all)

	ids := make([]string, 0, len(visible)+len(tracked))
	seen := make(map[string]struct{}, cap(ids))
	for _, conv := range visible {
		ids = append(ids, conv.ID)
		seen[conv.ID] = struct{}{}
	}
	for _, id := range tracked {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	fetched := make(map[string][]models.Message, len(ids))
	for _, id := range ids {
		msgs, err := s.repo.GetMessagesFor(ctx, id)
		if err != nil {
			return err
		}
		fetched[id] = msgs
	}

	if s.beforeCommit != nil {
		s.beforeCommit()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		return nil
	}

	// A refresh that started later has already committed: keep its snapshot
	// and only fill in threads it did not fetch.
	if seq < s.committedSeq {
		for id, msgs := range fetched {
			if _, ok := s.messages[id]; !ok {
				s.messages[id] = msgs
			}
		}
		return nil
	}
	s.committedSeq = seq

	s.conversations = visible
	for id, msgs := range fetched {
		s.messages[id] = msgs
	}

	s.logger.Debug("chat view refreshed",
		zap.String("user_id", user.ID),
		zap.Int("conversations", len(visible)),
		zap.Int("tracked", len(fetched)),
	)
	return nil
}

// visibleTo applies the visibility rule: agents see every conversation, other
// identities only their own.
func visibleTo(user *models.User, conversations []models.Conversation) []models.Conversation {
	if user.IsAgent() {
		return conversations
	}

	visible := make([]models.Conversation, 0, len(conversations))
	for _, conv := range conversations {
		if conv.UserID == user.ID {
			visible = append(visible, conv)
		}
	}
	return visible
}

func (s *Service) nowMillis() int64 {
	return s.now().UnixMilli()
}
