package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/wuwenbin0122/supportdesk/internal/models"
	"github.com/wuwenbin0122/supportdesk/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUnknownUser        = errors.New("auth: user not found")
)

// AgentPassword is the single accepted password, paired with storage.AgentEmail.
const AgentPassword = "agent123"

// State is the identity snapshot exposed to the rest of the app.
type State struct {
	IsLoggedIn  bool         `json:"isLoggedIn"`
	CurrentUser *models.User `json:"currentUser"`
}

// Service tracks the one current identity and mirrors it into the persisted session record.
type Service struct {
	repo      *storage.Repository
	logger    *zap.Logger
	agentHash []byte

	mu        sync.RWMutex
	current   *models.User
	listeners map[int]func(*models.User)
	nextID    int
}

func NewService(repo *storage.Repository, logger *zap.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("auth: repository required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(AgentPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash agent password: %w", err)
	}

	return &Service{
		repo:      repo,
		logger:    logger,
		agentHash: hash,
		listeners: make(map[int]func(*models.User)),
	}, nil
}

// Login accepts only the fixed agent credentials. A failed attempt leaves the
// current identity and the persisted session untouched.
func (s *Service) Login(ctx context.Context, email, password string) error {
	if email != storage.AgentEmail {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.agentHash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}

	return s.loginAs(ctx, storage.AgentID)
}

// LoginAsGuest switches to the seeded guest identity.
func (s *Service) LoginAsGuest(ctx context.Context) error {
	return s.loginAs(ctx, storage.GuestID)
}

func (s *Service) Logout(ctx context.Context) error {
	if err := s.repo.ClearSession(ctx); err != nil {
		return err
	}

	s.setCurrent(nil)
	s.logger.Info("logged out")
	return nil
}

// Restore reloads the persisted session. Without one it falls back to the guest
// identity so an identity exists before the first request. A session naming an
// unknown user leaves the service logged out.
func (s *Service) Restore(ctx context.Context) error {
	session, err := s.repo.LoadSession(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Info("no persisted session, logging in as guest")
		return s.LoginAsGuest(ctx)
	}
	if err != nil {
		return err
	}

	user, err := s.repo.GetUser(ctx, session.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("persisted session references unknown user", zap.String("user_id", session.UserID))
		return nil
	}
	if err != nil {
		return err
	}

	s.setCurrent(user)
	s.logger.Info("session restored", zap.String("user_id", user.ID), zap.String("role", user.Role))
	return nil
}

// CurrentUser returns a copy of the current identity, or nil when logged out.
func (s *Service) CurrentUser() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil
	}
	user := *s.current
	return &user
}

func (s *Service) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current != nil
}

func (s *Service) State() State {
	user := s.CurrentUser()
	return State{IsLoggedIn: user != nil, CurrentUser: user}
}

// Subscribe registers fn to run after every identity change. The returned
// function removes the registration.
func (s *Service) Subscribe(fn func(*models.User)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Service) loginAs(ctx context.Context, userID string) error {
	user, err := s.repo.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrUnknownUser
	}
	if err != nil {
		return err
	}

	if err := s.repo.SaveSession(ctx, user.ID); err != nil {
		return err
	}

	s.setCurrent(user)
	s.logger.Info("logged in", zap.String("user_id", user.ID), zap.String("role", user.Role))
	return nil
}

// setCurrent swaps the identity and notifies listeners outside the lock.
func (s *Service) setCurrent(user *models.User) {
	s.mu.Lock()
	s.current = user
	listeners := make([]func(*models.User), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		var snapshot *models.User
		if user != nil {
			copied := *user
			snapshot = &copied
		}
		fn(snapshot)
	}
}
