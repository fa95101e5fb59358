package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/supportdesk/internal/auth"
	"github.com/wuwenbin0122/supportdesk/internal/chat"
	"github.com/wuwenbin0122/supportdesk/internal/models"
	"github.com/wuwenbin0122/supportdesk/internal/utils"
)

var (
	errNotLoggedIn       = errors.New("not logged in")
	errAgentOnly         = errors.New("agent identity required")
	errAgentTarget       = errors.New("conversations belong to non-agent users")
	errMissingID         = errors.New("id is required")
	errConversationScope = errors.New("conversation not visible to current user")
	errUserNotFound      = errors.New("user not found")
	errNoActive          = errors.New("no active conversation")
)

type Handler struct {
	authService *auth.Service
	chatService *chat.Service
	logger      *zap.Logger
}

func NewHandler(authService *auth.Service, chatService *chat.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = utils.Logger()
	}
	return &Handler{authService: authService, chatService: chatService, logger: logger}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	apiGroup := router.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/login", h.handleLogin)
	authGroup.POST("/guest", h.handleGuest)
	authGroup.POST("/logout", h.handleLogout)
	authGroup.GET("/session", h.handleSession)

	convGroup := apiGroup.Group("/conversations")
	convGroup.GET("", h.handleListConversations)
	convGroup.POST("", h.handleOpenConversation)
	convGroup.GET("/active", h.handleGetActive)
	convGroup.PUT("/active", h.handleSetActive)
	convGroup.GET("/:id/messages", h.handleListMessages)
	convGroup.POST("/:id/messages", h.handleSendMessage)
	convGroup.POST("/:id/read", h.handleMarkRead)

	apiGroup.GET("/chat/typing", h.handleTyping)
	apiGroup.GET("/users/:id", h.handleGetUser)
}

// RequestLogger logs one line per request through zap.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request failed", fields...)
		default:
			logger.Debug("request served", fields...)
		}
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type openConversationRequest struct {
	UserID string `json:"userId"`
}

type activeRequest struct {
	ID string `json:"id"`
}

type conversationView struct {
	models.Conversation
	Preview string `json:"preview"`
}

func (h *Handler) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	if err := h.authService.Login(c.Request.Context(), req.Email, req.Password); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(c, http.StatusUnauthorized, "invalid email or password", err)
		default:
			writeError(c, http.StatusInternalServerError, "failed to login", err)
		}
		return
	}

	c.JSON(http.StatusOK, h.authService.State())
}

func (h *Handler) handleGuest(c *gin.Context) {
	if err := h.authService.LoginAsGuest(c.Request.Context()); err != nil {
		writeError(c, http.StatusInternalServerError, "failed to login as guest", err)
		return
	}
	c.JSON(http.StatusOK, h.authService.State())
}

func (h *Handler) handleLogout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context()); err != nil {
		writeError(c, http.StatusInternalServerError, "failed to logout", err)
		return
	}
	c.JSON(http.StatusOK, h.authService.State())
}

func (h *Handler) handleSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.authService.State())
}

func (h *Handler) handleListConversations(c *gin.Context) {
	if !h.requireIdentity(c) {
		return
	}

	sorted := h.chatService.SortedConversations()
	views := make([]conversationView, 0, len(sorted))
	for _, conv := range sorted {
		views = append(views, conversationView{Conversation: conv, Preview: h.chatService.Preview(conv.ID)})
	}

	c.JSON(http.StatusOK, gin.H{"conversations": views})
}

// handleOpenConversation lets an agent open a conversation for an explicit
// userId, or finds or creates a user's own conversation when none is given.
func (h *Handler) handleOpenConversation(c *gin.Context) {
	if !h.requireIdentity(c) {
		return
	}

	var req openConversationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid payload", err)
			return
		}
	}

	ctx := c.Request.Context()
	var (
		conv *models.Conversation
		err  error
	)
	if req.UserID != "" {
		if !h.requireAgent(c) {
			return
		}
		target, ok := h.chatService.GetUserInfo(ctx, req.UserID)
		if !ok {
			writeError(c, http.StatusNotFound, errUserNotFound.Error(), errUserNotFound)
			return
		}
		if target.IsAgent() {
			writeError(c, http.StatusBadRequest, errAgentTarget.Error(), errAgentTarget)
			return
		}
		conv, err = h.chatService.CreateConversation(ctx, req.UserID)
	} else {
		conv, err = h.chatService.ConversationForCurrentUser(ctx)
	}
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrAgentIdentity):
			writeError(c, http.StatusForbidden, "agents do not own conversations", err)
		default:
			writeError(c, http.StatusInternalServerError, "failed to open conversation", err)
		}
		return
	}

	c.JSON(http.StatusOK, conv)
}

func (h *Handler) handleListMessages(c *gin.Context) {
	id, ok := h.visibleConversation(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": h.chatService.Messages(id)})
}

func (h *Handler) handleSendMessage(c *gin.Context) {
	id, ok := h.visibleConversation(c)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	if err := h.chatService.SendMessage(c.Request.Context(), req.Content, id); err != nil {
		switch {
		case errors.Is(err, chat.ErrConversationNotFound):
			writeError(c, http.StatusNotFound, "conversation not found", err)
		default:
			writeError(c, http.StatusInternalServerError, "failed to send message", err)
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"messages": h.chatService.Messages(id)})
}

func (h *Handler) handleMarkRead(c *gin.Context) {
	id, ok := h.visibleConversation(c)
	if !ok {
		return
	}

	if err := h.chatService.MarkAsRead(c.Request.Context(), id); err != nil {
		writeError(c, http.StatusInternalServerError, "failed to mark conversation read", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleGetActive(c *gin.Context) {
	if !h.requireAgent(c) {
		return
	}

	conv, ok := h.chatService.EnsureActiveConversation()
	if !ok {
		writeError(c, http.StatusNotFound, errNoActive.Error(), errNoActive)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) handleSetActive(c *gin.Context) {
	if !h.requireAgent(c) {
		return
	}

	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	if req.ID != "" && !h.isVisible(req.ID) {
		writeError(c, http.StatusNotFound, "conversation not found", errConversationScope)
		return
	}

	h.chatService.SetActiveConversation(req.ID)
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleTyping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"isTyping": h.chatService.IsTyping()})
}

func (h *Handler) handleGetUser(c *gin.Context) {
	user, ok := h.chatService.GetUserInfo(c.Request.Context(), c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, errUserNotFound.Error(), errUserNotFound)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) requireIdentity(c *gin.Context) bool {
	if h.authService.CurrentUser() == nil {
		writeError(c, http.StatusUnauthorized, errNotLoggedIn.Error(), errNotLoggedIn)
		return false
	}
	return true
}

// requireAgent guards the dashboard-only routes.
func (h *Handler) requireAgent(c *gin.Context) bool {
	user := h.authService.CurrentUser()
	if user == nil {
		writeError(c, http.StatusUnauthorized, errNotLoggedIn.Error(), errNotLoggedIn)
		return false
	}
	if !user.IsAgent() {
		writeError(c, http.StatusForbidden, errAgentOnly.Error(), errAgentOnly)
		return false
	}
	return true
}

// visibleConversation resolves the :id path parameter against the current
// identity's view, refreshing once so freshly created conversations resolve.
func (h *Handler) visibleConversation(c *gin.Context) (string, bool) {
	if !h.requireIdentity(c) {
		return "", false
	}

	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, errMissingID.Error(), errMissingID)
		return "", false
	}

	if !h.isVisible(id) {
		if err := h.chatService.Refresh(c.Request.Context()); err != nil {
			writeError(c, http.StatusInternalServerError, "failed to refresh conversations", err)
			return "", false
		}
		if !h.isVisible(id) {
			writeError(c, http.StatusNotFound, "conversation not found", errConversationScope)
			return "", false
		}
	}
	return id, true
}

func (h *Handler) isVisible(id string) bool {
	for _, conv := range h.chatService.Conversations() {
		if conv.ID == id {
			return true
		}
	}
	return false
}

func writeError(c *gin.Context, status int, message string, err error) {
	_ = c.Error(err)
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}
